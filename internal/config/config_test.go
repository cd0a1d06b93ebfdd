package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const sampleYAML = `
engine:
  min_edge_bps: 50
  cex_trading_fee_bps: 10
  dex_lp_fee_bps: 30
  gas_cost_usdt: 0.5
  quote_size_usdt: 100
  max_trade_size_usdt: 1000
defaults:
  alignment_band_bps: 50
venues:
  - name: lbank
    stale_seconds: 10
  - name: latoken
symbols:
  CSR/USDT:
    alignment_band_bps: 100
    max_impact_cap_pct: 5
    cex_symbol: CSRUSDT
providers:
  - name: uniswap_v3_quoter
    kind: univ3
`

func TestParse_DefaultsAndSymbols(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, 50.0, cfg.Engine.MinEdgeBps)
	assert.Equal(t, 100.0, cfg.Engine.QuoteSizeUSDT)
	assert.Equal(t, 1000, cfg.Timings.ReevaluateMs)
	assert.Equal(t, "market:ticks", cfg.Redis.TickStream)

	s := cfg.Symbol("CSR/USDT")
	assert.Equal(t, 100.0, s.AlignmentBandBps)
	assert.Equal(t, 5.0, s.MaxImpactCapPct)
	assert.Equal(t, 100.0, s.MaxGasBps, "falls back to defaults")
	assert.Equal(t, 60.0, s.DEXStaleSeconds)

	other := cfg.Symbol("CSR25/USDT")
	assert.Equal(t, 50.0, other.AlignmentBandBps)
}

func TestVenueWindow(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, 10*time.Second, cfg.VenueWindow("lbank", "CSR/USDT"))
	assert.Equal(t, 30*time.Second, cfg.VenueWindow("latoken", "CSR/USDT"))
}

func TestParse_EnvOverrides(t *testing.T) {
	t.Setenv("MIN_EDGE_BPS", "75")
	t.Setenv("DEX_STALE_SECONDS", "15")
	t.Setenv("TRUSTED_QUOTE_SOURCES", "a, b")

	cfg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, 75.0, cfg.Engine.MinEdgeBps)
	assert.Equal(t, 15.0, cfg.Symbol("CSR/USDT").DEXStaleSeconds)
	assert.True(t, cfg.IsTrustedSource("b"))
	assert.False(t, cfg.IsTrustedSource("uniswap_v3_quoter"))
}

func TestParse_EnvOverrideNotANumber(t *testing.T) {
	t.Setenv("MIN_EDGE_BPS", "5O")
	t.Setenv("MAX_GAS_BPS", "lots")

	_, err := Parse([]byte(sampleYAML))
	require.Error(t, err)
	assert.ErrorContains(t, err, `MIN_EDGE_BPS="5O"`)
	assert.ErrorContains(t, err, `MAX_GAS_BPS="lots"`)
}

func TestValidate(t *testing.T) {
	_, err := Parse([]byte("engine:\n  quote_size_usdt: 100\n"))
	assert.Error(t, err, "no venues")

	_, err = Parse([]byte(sampleYAML + "\n  - name: bad\n    kind: grpc\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("venues: [{name: a}]\nengine:\n  dex_lp_fee_bps: -1\n"))
	assert.Error(t, err)
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan *Config, 1)
	go func() {
		_ = Watch(ctx, path, zap.NewNop(), func(c *Config) {
			select {
			case got <- c:
			default:
			}
		})
	}()

	// give the watcher time to register
	time.Sleep(200 * time.Millisecond)
	updated := []byte(sampleYAML + "\ntrusted_sources: [fresh]\n")
	require.NoError(t, os.WriteFile(path, updated, 0o644))

	select {
	case c := <-got:
		assert.True(t, c.IsTrustedSource("fresh"))
	case <-ctx.Done():
		t.Fatal("no reload observed")
	}
}
