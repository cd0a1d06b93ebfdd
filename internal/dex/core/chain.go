package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hayssamhob/csr-arbitrage-mvp-sub001/internal/types"
	"go.uber.org/zap"
)

// ProviderStatus is the chain's view of one provider.
type ProviderStatus struct {
	Name      string    `json:"name"`
	Rank      int       `json:"rank"`
	Healthy   bool      `json:"healthy"`
	DownUntil time.Time `json:"down_until,omitempty"`
	LastError string    `json:"last_error,omitempty"`
}

// Chain walks providers in rank order. A provider that fails a fetch or a
// health probe is skipped until its cooldown passes.
type Chain struct {
	providers []LadderProvider
	cooldown  time.Duration
	log       *zap.Logger
	now       func() time.Time

	mu        sync.Mutex
	downUntil map[string]time.Time
	downBy    map[string]downCause
	lastErr   map[string]string
}

type downCause int

const (
	causeProbe downCause = iota + 1
	causeFetch
)

func NewChain(providers []LadderProvider, cooldown time.Duration, log *zap.Logger) *Chain {
	return &Chain{
		providers: providers,
		cooldown:  cooldown,
		log:       log,
		now:       time.Now,
		downUntil: make(map[string]time.Time, len(providers)),
		downBy:    make(map[string]downCause, len(providers)),
		lastErr:   make(map[string]string, len(providers)),
	}
}

func (c *Chain) Name() string { return "chain" }

// FetchLadder returns the first usable ladder a healthy provider produces.
// A ladder that carries an error or has no valid entry counts as a failed
// fetch and the next provider is tried; if none does better, the first such
// ladder is returned so its error still reaches the evaluation. The ladder's
// Source is forced to the provider name unless the provider set one.
func (c *Chain) FetchLadder(ctx context.Context, symbol string) (types.QuoteLadder, error) {
	var (
		errs     []error
		degraded *types.QuoteLadder
	)
	for i, p := range c.providers {
		if c.isDown(p.Name()) {
			continue
		}
		l, err := p.FetchLadder(ctx, symbol)
		if err == nil {
			if l.Source == "" {
				l.Source = p.Name()
			}
			l.Symbol = symbol
			err = unusable(l)
			if err == nil {
				return l, nil
			}
			if degraded == nil {
				degraded = &l
			}
		}
		if ctx.Err() != nil {
			return types.QuoteLadder{}, ctx.Err()
		}
		c.markDown(p.Name(), err, causeFetch)
		c.log.Warn("ladder provider failed, falling back",
			zap.String("provider", p.Name()),
			zap.Int("rank", i),
			zap.String("symbol", symbol),
			zap.Error(err),
		)
		errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
	}
	if degraded != nil {
		return *degraded, nil
	}
	if len(errs) == 0 {
		return types.QuoteLadder{}, fmt.Errorf("%w: every ladder provider is cooling down", types.ErrNoLiquidityRoute)
	}
	return types.QuoteLadder{}, fmt.Errorf("%w: %w", types.ErrNoLiquidityRoute, errors.Join(errs...))
}

func unusable(l types.QuoteLadder) error {
	if l.Error != "" {
		return fmt.Errorf("%w: %s", types.ErrInvalidQuote, l.Error)
	}
	if len(l.ValidEntries()) == 0 {
		return fmt.Errorf("%w: no valid ladder entry", types.ErrInvalidQuote)
	}
	return nil
}

// Healthy is nil when at least one provider is usable.
func (c *Chain) Healthy(ctx context.Context) error {
	for _, p := range c.providers {
		if !c.isDown(p.Name()) {
			return nil
		}
	}
	return errors.New("no healthy ladder provider")
}

// CheckHealth probes every provider and updates its cooldown state. A passing
// probe only lifts a cooldown that a probe set; a fetch failure serves its
// full cooldown.
func (c *Chain) CheckHealth(ctx context.Context) {
	for _, p := range c.providers {
		if err := p.Healthy(ctx); err != nil {
			c.markDown(p.Name(), err, causeProbe)
			c.log.Warn("ladder provider unhealthy", zap.String("provider", p.Name()), zap.Error(err))
			continue
		}
		c.markUp(p.Name())
	}
}

// RunHealth probes providers every interval until ctx is done.
func (c *Chain) RunHealth(ctx context.Context, every time.Duration) error {
	c.CheckHealth(ctx)
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			c.CheckHealth(ctx)
		}
	}
}

// Status reports every provider in rank order.
func (c *Chain) Status() []ProviderStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	out := make([]ProviderStatus, 0, len(c.providers))
	for i, p := range c.providers {
		until := c.downUntil[p.Name()]
		s := ProviderStatus{Name: p.Name(), Rank: i, Healthy: !now.Before(until), LastError: c.lastErr[p.Name()]}
		if !s.Healthy {
			s.DownUntil = until
		}
		out = append(out, s)
	}
	return out
}

func (c *Chain) isDown(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now().Before(c.downUntil[name])
}

func (c *Chain) markDown(name string, err error, cause downCause) {
	c.mu.Lock()
	c.downUntil[name] = c.now().Add(c.cooldown)
	c.downBy[name] = cause
	c.lastErr[name] = err.Error()
	c.mu.Unlock()
}

func (c *Chain) markUp(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.downBy[name] == causeFetch && c.now().Before(c.downUntil[name]) {
		return
	}
	delete(c.downUntil, name)
	delete(c.downBy, name)
	delete(c.lastErr, name)
}
