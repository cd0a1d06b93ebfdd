package marketdata

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hayssamhob/csr-arbitrage-mvp-sub001/internal/config"
	imetrics "github.com/hayssamhob/csr-arbitrage-mvp-sub001/internal/metrics"
	"github.com/hayssamhob/csr-arbitrage-mvp-sub001/internal/types"
)

// Submitter is where polled updates go; the orchestrator in production.
type Submitter interface {
	SubmitTicker(ctx context.Context, t types.Ticker) error
	SubmitLadder(ctx context.Context, l types.QuoteLadder) error
}

type TickerSource interface {
	Venue() string
	BookTicker(ctx context.Context, symbol, venueSymbol string) (types.Ticker, error)
}

type LadderSource interface {
	Name() string
	FetchLadder(ctx context.Context, symbol string) (types.QuoteLadder, error)
}

// fanOut bounds concurrent upstream calls per poll round.
const fanOut = 4

// Symbols lists the configured markets in a stable order.
func Symbols(cfg *config.Config) []string {
	out := make([]string, 0, len(cfg.Symbols))
	for s := range cfg.Symbols {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// RunTickers polls src for every configured symbol and submits the result.
// The gas token pair is polled too but goes straight into the store: it only
// prices gas and is never evaluated.
func RunTickers(ctx context.Context, store *Store, src TickerSource, sub Submitter, log *zap.Logger) error {
	t := time.NewTicker(store.Config().TickerPoll())
	defer t.Stop()

	for {
		pollTickers(ctx, store, src, sub, log)
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

func pollTickers(ctx context.Context, store *Store, src TickerSource, sub Submitter, log *zap.Logger) {
	cfg := store.Config()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fanOut)

	for _, sym := range Symbols(cfg) {
		sym := sym
		g.Go(func() error {
			tk, err := src.BookTicker(gctx, sym, cfg.Symbol(sym).CEXSymbol)
			if err != nil {
				imetrics.ProviderErrors.WithLabelValues(src.Venue()).Inc()
				log.Warn("ticker poll failed", zap.String("venue", src.Venue()), zap.String("symbol", sym), zap.Error(err))
				return nil
			}
			if err := sub.SubmitTicker(gctx, tk); err != nil && gctx.Err() == nil {
				log.Warn("ticker rejected", zap.String("symbol", sym), zap.Error(err))
			}
			return nil
		})
	}

	if eth := cfg.Chain.EthSymbol; eth != "" {
		if _, tracked := cfg.Symbols[eth]; !tracked {
			g.Go(func() error {
				tk, err := src.BookTicker(gctx, eth, "")
				if err != nil {
					log.Debug("gas token price poll failed", zap.String("symbol", eth), zap.Error(err))
					return nil
				}
				if err := store.UpdateTicker(tk.Venue, tk); err != nil {
					log.Debug("gas token price rejected", zap.Error(err))
				}
				return nil
			})
		}
	}
	_ = g.Wait()
}

// RunLadders fetches a ladder for every configured symbol each round.
// A symbol whose fetch fails keeps its previous ladder until it goes stale.
func RunLadders(ctx context.Context, store *Store, src LadderSource, sub Submitter, log *zap.Logger) error {
	t := time.NewTicker(store.Config().LadderPoll())
	defer t.Stop()

	for {
		pollLadders(ctx, store.Config(), src, sub, log)
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

func pollLadders(ctx context.Context, cfg *config.Config, src LadderSource, sub Submitter, log *zap.Logger) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fanOut)
	for _, sym := range Symbols(cfg) {
		sym := sym
		g.Go(func() error {
			l, err := src.FetchLadder(gctx, sym)
			if err != nil {
				log.Warn("ladder poll failed", zap.String("source", src.Name()), zap.String("symbol", sym), zap.Error(err))
				return nil
			}
			if err := sub.SubmitLadder(gctx, l); err != nil && gctx.Err() == nil {
				log.Warn("ladder rejected", zap.String("symbol", sym), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
}

// GasTokenUSD returns the current reference mid of the gas token pair, or 0
// when no fresh price is known.
func GasTokenUSD(store *Store) func() float64 {
	return func() float64 {
		ref, ok := store.ReferencePrice(store.Config().Chain.EthSymbol)
		if !ok {
			return 0
		}
		return ref.Mid
	}
}
