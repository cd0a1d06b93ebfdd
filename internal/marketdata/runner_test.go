package marketdata

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hayssamhob/csr-arbitrage-mvp-sub001/internal/config"
	"github.com/hayssamhob/csr-arbitrage-mvp-sub001/internal/types"
)

type fakeCEX struct {
	mu    sync.Mutex
	asked map[string]string
	fail  map[string]bool
}

func (f *fakeCEX) Venue() string { return "mexc" }

func (f *fakeCEX) BookTicker(_ context.Context, symbol, venueSymbol string) (types.Ticker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.asked == nil {
		f.asked = map[string]string{}
	}
	f.asked[symbol] = venueSymbol
	if f.fail[symbol] {
		return types.Ticker{}, errors.New("http 502")
	}
	bid, ask := 0.99, 1.01
	if symbol == "ETH/USDT" {
		bid, ask = 2999, 3001
	}
	return types.Ticker{Venue: "mexc", Symbol: symbol, Bid: bid, Ask: ask, ReceivedAt: time.Now()}, nil
}

type fakeLadders struct{ fail map[string]bool }

func (fakeLadders) Name() string { return "chain" }

func (f fakeLadders) FetchLadder(_ context.Context, symbol string) (types.QuoteLadder, error) {
	if f.fail[symbol] {
		return types.QuoteLadder{}, types.ErrNoLiquidityRoute
	}
	return types.QuoteLadder{Symbol: symbol, Source: "uniswap_v3_quoter", Validated: true}, nil
}

type recorder struct {
	mu      sync.Mutex
	tickers []types.Ticker
	ladders []types.QuoteLadder
}

func (r *recorder) SubmitTicker(_ context.Context, t types.Ticker) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tickers = append(r.tickers, t)
	return nil
}

func (r *recorder) SubmitLadder(_ context.Context, l types.QuoteLadder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ladders = append(r.ladders, l)
	return nil
}

func pollConfig() *config.Config {
	cfg := testConfig()
	cfg.Symbols = map[string]config.SymbolCfg{
		"CSR/USDT":   {CEXSymbol: "CSRUSDT"},
		"CSR25/USDT": {},
	}
	cfg.Chain.EthSymbol = "ETH/USDT"
	cfg.Timings = config.TimingsCfg{TickerPollMs: 10, LadderPollMs: 10}
	return cfg
}

func TestSymbols_Sorted(t *testing.T) {
	assert.Equal(t, []string{"CSR/USDT", "CSR25/USDT"}, Symbols(pollConfig()))
}

func TestPollTickers(t *testing.T) {
	store := NewStore(pollConfig())
	cex := &fakeCEX{fail: map[string]bool{"CSR25/USDT": true}}
	rec := &recorder{}

	pollTickers(context.Background(), store, cex, rec, zap.NewNop())

	require.Len(t, rec.tickers, 1)
	assert.Equal(t, "CSR/USDT", rec.tickers[0].Symbol)
	assert.Equal(t, "CSRUSDT", cex.asked["CSR/USDT"])
	assert.Equal(t, "", cex.asked["CSR25/USDT"])

	// the gas token bypasses the orchestrator
	assert.InDelta(t, 3000.0, GasTokenUSD(store)(), 1e-9)
}

func TestGasTokenUSD_Unknown(t *testing.T) {
	store := NewStore(pollConfig())
	assert.Zero(t, GasTokenUSD(store)())
}

func TestPollLadders(t *testing.T) {
	rec := &recorder{}
	pollLadders(context.Background(), pollConfig(), fakeLadders{fail: map[string]bool{"CSR25/USDT": true}}, rec, zap.NewNop())

	require.Len(t, rec.ladders, 1)
	assert.Equal(t, "CSR/USDT", rec.ladders[0].Symbol)
}

func TestRunPollers_StopOnCancel(t *testing.T) {
	store := NewStore(pollConfig())
	rec := &recorder{}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{}, 2)
	go func() { _ = RunTickers(ctx, store, &fakeCEX{}, rec, zap.NewNop()); done <- struct{}{} }()
	go func() { _ = RunLadders(ctx, store, fakeLadders{}, rec, zap.NewNop()); done <- struct{}{} }()

	require.Eventually(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return len(rec.tickers) >= 4 && len(rec.ladders) >= 4
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("poller did not stop")
		}
	}
}
