package bot

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"
)

// WaitReferences polls until every symbol has a fresh CEX reference or the
// timeout passes, and returns the symbols still missing one (sorted). It
// returns nil when ctx is cancelled.
func (o *Orchestrator) WaitReferences(ctx context.Context, symbols []string, timeout time.Duration) []string {
	deadline := time.Now().Add(timeout)
	missing := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		missing[s] = struct{}{}
	}
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		for s := range missing {
			if _, ok := o.store.ReferencePrice(s); ok {
				delete(missing, s)
			}
		}
		if len(missing) == 0 {
			return nil
		}
		if time.Now().After(deadline) {
			out := make([]string, 0, len(missing))
			for s := range missing {
				out = append(out, s)
			}
			sort.Strings(out)
			o.log.Warn("bootstrap timeout, continuing with partial set", zap.Strings("symbols_missing", out))
			return out
		}
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
		}
	}
}
