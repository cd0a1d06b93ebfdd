package adapters

import (
	"context"
	"errors"
	"testing"
	"time"

	imetrics "github.com/hayssamhob/csr-arbitrage-mvp-sub001/internal/metrics"
	"github.com/hayssamhob/csr-arbitrage-mvp-sub001/internal/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type slowProvider struct{ err error }

func (slowProvider) Name() string { return "slow_test" }

func (s slowProvider) FetchLadder(ctx context.Context, _ string) (types.QuoteLadder, error) {
	if s.err != nil {
		return types.QuoteLadder{}, s.err
	}
	select {
	case <-ctx.Done():
		return types.QuoteLadder{}, ctx.Err()
	case <-time.After(time.Second):
		return types.QuoteLadder{Source: "slow_test"}, nil
	}
}

func (s slowProvider) Healthy(context.Context) error { return s.err }

func TestInstrument_TimeoutCountsAsError(t *testing.T) {
	p := Instrument(slowProvider{}, 20*time.Millisecond)
	before := testutil.ToFloat64(imetrics.ProviderErrors.WithLabelValues("slow_test"))

	_, err := p.FetchLadder(context.Background(), "CSR/USDT")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, before+1, testutil.ToFloat64(imetrics.ProviderErrors.WithLabelValues("slow_test")))
	assert.Equal(t, "slow_test", p.Name())
}

func TestInstrument_Healthy(t *testing.T) {
	p := Instrument(slowProvider{err: errors.New("down")}, 0)
	before := testutil.ToFloat64(imetrics.ProviderErrors.WithLabelValues("slow_test"))
	assert.Error(t, p.Healthy(context.Background()))
	assert.Equal(t, before+1, testutil.ToFloat64(imetrics.ProviderErrors.WithLabelValues("slow_test")))
}
