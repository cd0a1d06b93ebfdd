// Package adapters wraps ladder providers with cross-cutting behavior.
package adapters

import (
	"context"
	"time"

	"github.com/hayssamhob/csr-arbitrage-mvp-sub001/internal/dex/core"
	imetrics "github.com/hayssamhob/csr-arbitrage-mvp-sub001/internal/metrics"
	"github.com/hayssamhob/csr-arbitrage-mvp-sub001/internal/types"
)

type instrumented struct {
	impl    core.LadderProvider
	timeout time.Duration
}

// Instrument records fetch latency and failures per provider and bounds each
// fetch by timeout (0 means no extra bound).
func Instrument(p core.LadderProvider, timeout time.Duration) core.LadderProvider {
	return instrumented{impl: p, timeout: timeout}
}

func (i instrumented) Name() string { return i.impl.Name() }

func (i instrumented) FetchLadder(ctx context.Context, symbol string) (types.QuoteLadder, error) {
	if i.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.timeout)
		defer cancel()
	}
	start := time.Now()
	l, err := i.impl.FetchLadder(ctx, symbol)
	imetrics.LadderFetch.WithLabelValues(i.impl.Name()).Observe(time.Since(start).Seconds())
	if err != nil {
		imetrics.ProviderErrors.WithLabelValues(i.impl.Name()).Inc()
	}
	return l, err
}

func (i instrumented) Healthy(ctx context.Context) error {
	err := i.impl.Healthy(ctx)
	if err != nil {
		imetrics.ProviderErrors.WithLabelValues(i.impl.Name()).Inc()
	}
	return err
}
