package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hayssamhob/csr-arbitrage-mvp-sub001/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockProvider struct {
	name      string
	source    string
	fetchErr  error
	healthErr error
	ladderErr string
	noValid   bool
	calls     int
}

func (m *mockProvider) Name() string { return m.name }

func (m *mockProvider) FetchLadder(_ context.Context, symbol string) (types.QuoteLadder, error) {
	m.calls++
	if m.fetchErr != nil {
		return types.QuoteLadder{}, m.fetchErr
	}
	l := types.QuoteLadder{Symbol: "ignored", Source: m.source, Validated: true, Error: m.ladderErr}
	if m.ladderErr == "" {
		l.Entries = []types.LadderEntry{{SizeUSDT: 100, TokensOut: 99, ExecPrice: 100.0 / 99, Valid: !m.noValid}}
	}
	return l, nil
}

func (m *mockProvider) Healthy(context.Context) error { return m.healthErr }

func TestRegistry_EnabledKeepsRank(t *testing.T) {
	r := NewRegistry()
	a := &mockProvider{name: "a"}
	b := &mockProvider{name: "b"}
	r.Register(a)
	r.Register(b)

	got := r.Enabled([]string{"b", "missing", "a"})
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].Name())
	assert.Equal(t, "a", got[1].Name())
	assert.Nil(t, r.Get("missing"))
}

func TestChain_FallsBackAndCoolsDown(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	primary := &mockProvider{name: ProviderUniswapV3Quoter, fetchErr: errors.New("rpc down")}
	backup := &mockProvider{name: ProviderUniswapUIScraper}

	c := NewChain([]LadderProvider{primary, backup}, 30*time.Second, zap.NewNop())
	c.now = func() time.Time { return now }

	l, err := c.FetchLadder(context.Background(), "CSR/USDT")
	require.NoError(t, err)
	assert.Equal(t, ProviderUniswapUIScraper, l.Source, "source defaults to the provider name")
	assert.Equal(t, "CSR/USDT", l.Symbol)
	assert.Equal(t, 1, primary.calls)

	// primary is cooling down and not retried
	_, err = c.FetchLadder(context.Background(), "CSR/USDT")
	require.NoError(t, err)
	assert.Equal(t, 1, primary.calls)

	st := c.Status()
	require.Len(t, st, 2)
	assert.False(t, st[0].Healthy)
	assert.Equal(t, "rpc down", st[0].LastError)
	assert.True(t, st[1].Healthy)

	now = now.Add(31 * time.Second)
	primary.fetchErr = nil
	primary.source = "custom"
	l, err = c.FetchLadder(context.Background(), "CSR/USDT")
	require.NoError(t, err)
	assert.Equal(t, "custom", l.Source)
	assert.Equal(t, 2, primary.calls)
}

func TestChain_AllFail(t *testing.T) {
	a := &mockProvider{name: "a", fetchErr: errors.New("boom")}
	b := &mockProvider{name: "b", fetchErr: errors.New("bang")}
	c := NewChain([]LadderProvider{a, b}, time.Minute, zap.NewNop())

	_, err := c.FetchLadder(context.Background(), "X/USDT")
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrNoLiquidityRoute)
	assert.ErrorContains(t, err, "boom")
	assert.ErrorContains(t, err, "bang")
	assert.Error(t, c.Healthy(context.Background()))

	_, err = c.FetchLadder(context.Background(), "X/USDT")
	assert.ErrorContains(t, err, "cooling down")
}

func TestChain_CheckHealth(t *testing.T) {
	a := &mockProvider{name: "a", healthErr: errors.New("no pool")}
	b := &mockProvider{name: "b"}
	c := NewChain([]LadderProvider{a, b}, time.Minute, zap.NewNop())

	c.CheckHealth(context.Background())
	_, err := c.FetchLadder(context.Background(), "X/USDT")
	require.NoError(t, err)
	assert.Zero(t, a.calls)

	a.healthErr = nil
	c.CheckHealth(context.Background())
	l, err := c.FetchLadder(context.Background(), "X/USDT")
	require.NoError(t, err)
	assert.Equal(t, "a", l.Source)
	assert.NoError(t, c.Healthy(context.Background()))
}

func TestChain_ErrorLadderFallsBack(t *testing.T) {
	primary := &mockProvider{name: ProviderUniswapV3Quoter, ladderErr: "all quotes reverted"}
	backup := &mockProvider{name: ProviderUniswapUIScraper}
	c := NewChain([]LadderProvider{primary, backup}, time.Minute, zap.NewNop())

	l, err := c.FetchLadder(context.Background(), "CSR/USDT")
	require.NoError(t, err)
	assert.Equal(t, ProviderUniswapUIScraper, l.Source)
	assert.Empty(t, l.Error)

	st := c.Status()
	assert.False(t, st[0].Healthy)
	assert.Contains(t, st[0].LastError, "all quotes reverted")
	assert.True(t, st[1].Healthy)
}

func TestChain_NoUsableLadderReturnsFirstDegraded(t *testing.T) {
	primary := &mockProvider{name: ProviderUniswapV3Quoter, ladderErr: "all quotes reverted"}
	backup := &mockProvider{name: ProviderUniswapUIScraper, noValid: true}
	c := NewChain([]LadderProvider{primary, backup}, time.Minute, zap.NewNop())

	l, err := c.FetchLadder(context.Background(), "CSR/USDT")
	require.NoError(t, err)
	assert.Equal(t, ProviderUniswapV3Quoter, l.Source)
	assert.Equal(t, "all quotes reverted", l.Error)
	assert.Equal(t, "CSR/USDT", l.Symbol)
	assert.Equal(t, 1, backup.calls)
	assert.Error(t, c.Healthy(context.Background()))
}

func TestChain_PassingHealthCheckKeepsFetchCooldown(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	primary := &mockProvider{name: ProviderUniswapV3Quoter, fetchErr: errors.New("execution reverted")}
	backup := &mockProvider{name: ProviderUniswapUIScraper}
	c := NewChain([]LadderProvider{primary, backup}, 30*time.Second, zap.NewNop())
	c.now = func() time.Time { return now }

	_, err := c.FetchLadder(context.Background(), "CSR/USDT")
	require.NoError(t, err)

	c.CheckHealth(context.Background())
	assert.False(t, c.Status()[0].Healthy, "health check must not cut a fetch cooldown short")
	_, _ = c.FetchLadder(context.Background(), "CSR/USDT")
	assert.Equal(t, 1, primary.calls)

	now = now.Add(31 * time.Second)
	c.CheckHealth(context.Background())
	st := c.Status()
	assert.True(t, st[0].Healthy)
	assert.Empty(t, st[0].LastError)
}
