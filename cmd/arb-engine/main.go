package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hayssamhob/csr-arbitrage-mvp-sub001/internal/bot"
	"github.com/hayssamhob/csr-arbitrage-mvp-sub001/internal/config"
	"github.com/hayssamhob/csr-arbitrage-mvp-sub001/internal/connectors/cex/mexc"
	"github.com/hayssamhob/csr-arbitrage-mvp-sub001/internal/connectors/redisfeed"
	"github.com/hayssamhob/csr-arbitrage-mvp-sub001/internal/dash"
	"github.com/hayssamhob/csr-arbitrage-mvp-sub001/internal/dex/adapters"
	"github.com/hayssamhob/csr-arbitrage-mvp-sub001/internal/dex/core"
	"github.com/hayssamhob/csr-arbitrage-mvp-sub001/internal/dex/httpladder"
	"github.com/hayssamhob/csr-arbitrage-mvp-sub001/internal/dex/univ3"
	"github.com/hayssamhob/csr-arbitrage-mvp-sub001/internal/logging"
	"github.com/hayssamhob/csr-arbitrage-mvp-sub001/internal/marketdata"
	"github.com/hayssamhob/csr-arbitrage-mvp-sub001/internal/metrics"
	"github.com/hayssamhob/csr-arbitrage-mvp-sub001/internal/multicall"
)

type options struct {
	ConfigPath string
	Watch      bool
	CheckPools bool
	FeeTiers   []uint32
	Bootstrap  time.Duration
}

func parseFlags(args []string) (options, error) {
	var (
		o     options
		tiers string
	)
	fs := flag.NewFlagSet("arb-engine", flag.ContinueOnError)
	fs.StringVar(&o.ConfigPath, "config", "./config.yaml", "path to config")
	fs.BoolVar(&o.Watch, "watch", true, "reload config on change")
	fs.BoolVar(&o.CheckPools, "check-pools", false, "log which Uniswap v3 fee tiers have a pool for each symbol at startup")
	fs.StringVar(&tiers, "tiers", "100,500,3000,10000", "fee tiers for -check-pools, comma-separated")
	fs.DurationVar(&o.Bootstrap, "bootstrap-timeout", 30*time.Second, "how long to wait for a first CEX price per symbol")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	for _, s := range strings.Split(tiers, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		v, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			return options{}, fmt.Errorf("bad fee tier %q: %w", s, err)
		}
		o.FeeTiers = append(o.FeeTiers, uint32(v))
	}
	return o, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, cfg, log); err != nil {
		log.Fatal("engine stopped with error", zap.Error(err))
	}
	log.Info("engine stopped")
}

func run(ctx context.Context, opts options, cfg *config.Config, log *zap.Logger) error {
	store := marketdata.NewStore(cfg)

	if !cfg.Redis.Enabled {
		return serve(ctx, opts, cfg, store, bot.New(cfg, store, log), nil, log)
	}

	rdb := redisfeed.NewClient(cfg.Redis)
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping %s: %w", cfg.Redis.Addr, err)
	}
	orch := bot.New(cfg, store, log, redisfeed.NewPublisher(rdb, cfg.Redis))
	return serve(ctx, opts, cfg, store, orch, redisfeed.NewConsumer(rdb, cfg.Redis, orch, log), log)
}

func serve(ctx context.Context, opts options, cfg *config.Config, store *marketdata.Store, orch *bot.Orchestrator, consumer *redisfeed.Consumer, log *zap.Logger) error {
	chain, err := buildChain(ctx, opts, cfg, store, log)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return metrics.Serve(ctx, cfg.Metrics.ListenAddr, nil, ready(chain), log) })

	g.Go(func() error { return orch.Run(ctx) })

	if chain != nil {
		g.Go(func() error { return marketdata.RunLadders(ctx, store, chain, orch, log) })
		g.Go(func() error { return chain.RunHealth(ctx, cfg.HealthCheck()) })
	} else {
		log.Warn("no ladder providers configured; ladders only arrive from the redis feed")
	}

	cex := mexc.NewClient(cfg.MEXC, log)
	if cfg.MEXC.RestURL != "" {
		g.Go(func() error { return marketdata.RunTickers(ctx, store, cex, orch, log) })
	}
	if cfg.MEXC.UseWS && cfg.MEXC.WsURL != "" {
		subs := make(map[string]string, len(cfg.Symbols))
		for _, s := range marketdata.Symbols(cfg) {
			subs[s] = cfg.Symbol(s).CEXSymbol
		}
		ws := mexc.NewWS(cfg.MEXC.WsURL, cfg.MEXC.Venue)
		g.Go(func() error { return ws.Run(ctx, subs, orch.SubmitTicker, log) })
	}

	if consumer != nil {
		g.Go(func() error { return consumer.Run(ctx) })
	}

	if cfg.Dash.ListenAddr != "" {
		var status func() []core.ProviderStatus
		if chain != nil {
			status = chain.Status
		}
		g.Go(func() error { return dash.StartHTTP(ctx, dash.Handler(orch, status), cfg.Dash.ListenAddr, log) })
	}

	if opts.Watch {
		g.Go(func() error {
			return config.Watch(ctx, opts.ConfigPath, log, func(c *config.Config) {
				orch.SetConfig(c)
			})
		})
	}

	g.Go(func() error {
		missing := orch.WaitReferences(ctx, marketdata.Symbols(cfg), opts.Bootstrap)
		if len(missing) == 0 && ctx.Err() == nil {
			log.Info("all symbols have a CEX reference")
		}
		return nil
	})

	log.Info("engine started",
		zap.Strings("symbols", marketdata.Symbols(cfg)),
		zap.Int("providers", len(cfg.Providers)),
		zap.Bool("redis", consumer != nil),
	)
	return g.Wait()
}

// ready fails while every ladder provider is in cooldown.
func ready(chain *core.Chain) func() error {
	if chain == nil {
		return nil
	}
	return func() error { return chain.Healthy(context.Background()) }
}

// buildChain registers every configured provider and returns them as a ranked
// chain, or nil when none is configured.
func buildChain(ctx context.Context, opts options, cfg *config.Config, store *marketdata.Store, log *zap.Logger) (*core.Chain, error) {
	reg := core.NewRegistry()
	var rank []string

	for _, pc := range cfg.Providers {
		var p core.LadderProvider
		switch pc.Kind {
		case "univ3":
			ec, err := ethclient.DialContext(ctx, cfg.Chain.RPCHTTP)
			if err != nil {
				return nil, fmt.Errorf("dial rpc: %w", err)
			}
			mc, err := multicall.New(ec, common.HexToAddress(cfg.DEX.Multicall))
			if err != nil {
				return nil, fmt.Errorf("multicall: %w", err)
			}
			lp, err := univ3.NewLadder(cfg, mc, ec, ec, marketdata.GasTokenUSD(store), log)
			if err != nil {
				return nil, fmt.Errorf("provider %s: %w", pc.Name, err)
			}
			if opts.CheckPools {
				checkPools(ctx, ec, cfg, opts.FeeTiers, log)
			}
			p = lp
		case "http":
			hp, err := httpladder.New(pc)
			if err != nil {
				return nil, err
			}
			p = hp
		default:
			return nil, fmt.Errorf("provider %s: unknown kind %q", pc.Name, pc.Kind)
		}

		if reg.Get(p.Name()) != nil {
			return nil, fmt.Errorf("provider %s: duplicate source name %q", pc.Name, p.Name())
		}
		timeout := time.Duration(pc.TimeoutMs) * time.Millisecond
		p = adapters.Instrument(p, timeout)
		reg.Register(p)
		rank = append(rank, p.Name())
		log.Info("ladder provider registered", zap.String("name", p.Name()), zap.String("kind", pc.Kind))
	}

	enabled := reg.Enabled(rank)
	if len(enabled) == 0 {
		return nil, nil
	}
	return core.NewChain(enabled, cfg.ProviderCooldown(), log), nil
}

func checkPools(ctx context.Context, ec *ethclient.Client, cfg *config.Config, tiers []uint32, log *zap.Logger) {
	usdt := common.HexToAddress(cfg.DEX.USDT)
	for _, sym := range marketdata.Symbols(cfg) {
		token := common.HexToAddress(cfg.Symbol(sym).Token)
		present, pools, err := univ3.CheckAvailableFeeTiers(ctx, ec, token, usdt, tiers)
		if err != nil {
			log.Warn("pool check failed", zap.String("symbol", sym), zap.Error(err))
			continue
		}
		if len(present) == 0 {
			log.Warn("no uniswap v3 pool for symbol", zap.String("symbol", sym))
			continue
		}
		for _, fee := range present {
			log.Info("uniswap v3 pool",
				zap.String("symbol", sym),
				zap.Uint32("fee_tier", fee),
				zap.String("pool", pools[fee].Hex()),
				zap.Bool("configured", fee == cfg.DEX.FeeTier),
			)
		}
	}
}
