package marketdata

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hayssamhob/csr-arbitrage-mvp-sub001/internal/config"
	"github.com/hayssamhob/csr-arbitrage-mvp-sub001/internal/ingest"
	"github.com/hayssamhob/csr-arbitrage-mvp-sub001/internal/types"
)

// Reference is the CEX price chosen for a symbol and where it came from.
type Reference struct {
	Venue  string        `json:"venue"`
	Mid    float64       `json:"mid"`
	Age    time.Duration `json:"age"`
	Ticker types.Ticker  `json:"ticker"`
}

// MarketState is a consistent copy of everything known about one symbol.
type MarketState struct {
	Symbol     string                  `json:"symbol"`
	Tickers    map[string]types.Ticker `json:"tickers"`
	Ladder     *types.QuoteLadder      `json:"ladder"`
	LastUpdate map[string]time.Time    `json:"last_update"`
	Reference  *Reference              `json:"reference"`
	Stale      bool                    `json:"stale"`
	At         time.Time               `json:"at"`
}

type symbolState struct {
	mu         sync.RWMutex
	tickers    map[string]types.Ticker
	ladder     *types.QuoteLadder
	lastUpdate map[string]time.Time
}

// Store holds the latest ticker per (symbol, venue) and the latest ladder per
// symbol. Each symbol has its own lock, so a ladder replacement is never seen
// half-applied by a concurrent reader. Symbols are created on first update
// and never removed.
type Store struct {
	cfg atomic.Pointer[config.Config]
	now func() time.Time

	mu      sync.RWMutex
	symbols map[string]*symbolState
}

func NewStore(cfg *config.Config) *Store {
	s := &Store{
		now:     time.Now,
		symbols: make(map[string]*symbolState, 8),
	}
	s.cfg.Store(cfg)
	return s
}

// SetConfig swaps venue preference and staleness windows.
func (s *Store) SetConfig(cfg *config.Config) { s.cfg.Store(cfg) }

// Config is the configuration currently in effect.
func (s *Store) Config() *config.Config { return s.cfg.Load() }

// Now is the store's clock.
func (s *Store) Now() time.Time { return s.now() }

// SetClock replaces the wall clock; tests use it to age data.
func (s *Store) SetClock(now func() time.Time) { s.now = now }

func (s *Store) state(symbol string, create bool) *symbolState {
	s.mu.RLock()
	st := s.symbols[symbol]
	s.mu.RUnlock()
	if st != nil || !create {
		return st
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if st = s.symbols[symbol]; st == nil {
		st = &symbolState{
			tickers:    make(map[string]types.Ticker, 2),
			lastUpdate: make(map[string]time.Time, 3),
		}
		s.symbols[symbol] = st
	}
	return st
}

// UpdateTicker merges t by (symbol, venue). The receipt time is the local
// clock; a crossed or priceless ticker is rejected and the previous one kept.
func (s *Store) UpdateTicker(venue string, t types.Ticker) error {
	if venue != "" {
		t.Venue = venue
	}
	if t.ReceivedAt.IsZero() {
		t.ReceivedAt = s.now()
	}
	if err := ingest.CheckTicker(t); err != nil {
		return err
	}

	st := s.state(t.Symbol, true)
	st.mu.Lock()
	st.tickers[t.Venue] = t
	st.lastUpdate["cex:"+t.Venue] = t.ReceivedAt
	st.mu.Unlock()
	return nil
}

// UpdateLadder replaces the symbol's ladder wholesale.
func (s *Store) UpdateLadder(symbol string, l types.QuoteLadder) error {
	if symbol == "" {
		symbol = l.Symbol
	}
	if symbol == "" {
		return fmt.Errorf("%w: ladder without symbol", types.ErrInvalidPayload)
	}
	l = l.Clone()
	l.Symbol = symbol
	if l.ReceivedAt.IsZero() {
		l.ReceivedAt = s.now()
	}

	st := s.state(symbol, true)
	st.mu.Lock()
	st.ladder = &l
	st.lastUpdate["dex:"+l.Source] = l.ReceivedAt
	st.mu.Unlock()
	return nil
}

// ReferencePrice walks the configured venue preference and returns the first
// venue whose ticker is inside its staleness window.
func (s *Store) ReferencePrice(symbol string) (Reference, bool) {
	st := s.state(symbol, false)
	if st == nil {
		return Reference{}, false
	}
	now := s.now()
	st.mu.RLock()
	defer st.mu.RUnlock()
	return s.reference(symbol, st, now)
}

func (s *Store) reference(symbol string, st *symbolState, now time.Time) (Reference, bool) {
	cfg := s.cfg.Load()
	for _, v := range cfg.Venues {
		t, ok := st.tickers[v.Name]
		if !ok {
			continue
		}
		age := now.Sub(t.ReceivedAt)
		if age > cfg.VenueWindow(v.Name, symbol) {
			continue
		}
		mid := t.Mid()
		if mid <= 0 {
			continue
		}
		return Reference{Venue: v.Name, Mid: mid, Age: age, Ticker: t}, true
	}
	return Reference{}, false
}

// IsStale is true when no CEX venue is fresh, when the ladder is missing, or
// when the ladder's newest observation is older than the DEX window.
func (s *Store) IsStale(symbol string) bool {
	st := s.state(symbol, false)
	if st == nil {
		return true
	}
	now := s.now()
	st.mu.RLock()
	defer st.mu.RUnlock()
	return s.stale(symbol, st, now)
}

func (s *Store) stale(symbol string, st *symbolState, now time.Time) bool {
	if _, ok := s.reference(symbol, st, now); !ok {
		return true
	}
	if st.ladder == nil {
		return true
	}
	window := time.Duration(s.cfg.Load().Symbol(symbol).DEXStaleSeconds * float64(time.Second))
	return now.Sub(st.ladder.NewestObservation()) > window
}

// Snapshot returns a deep copy of the symbol's state taken under its lock.
func (s *Store) Snapshot(symbol string) (MarketState, bool) {
	st := s.state(symbol, false)
	if st == nil {
		return MarketState{}, false
	}
	now := s.now()
	st.mu.RLock()
	defer st.mu.RUnlock()

	ms := MarketState{
		Symbol:     symbol,
		Tickers:    make(map[string]types.Ticker, len(st.tickers)),
		LastUpdate: make(map[string]time.Time, len(st.lastUpdate)),
		Stale:      s.stale(symbol, st, now),
		At:         now,
	}
	for k, v := range st.tickers {
		ms.Tickers[k] = v
	}
	for k, v := range st.lastUpdate {
		ms.LastUpdate[k] = v
	}
	if st.ladder != nil {
		l := st.ladder.Clone()
		ms.Ladder = &l
	}
	if ref, ok := s.reference(symbol, st, now); ok {
		ms.Reference = &ref
	}
	return ms, true
}

// Symbols lists every symbol seen so far.
func (s *Store) Symbols() []string {
	s.mu.RLock()
	out := make([]string, 0, len(s.symbols))
	for sym := range s.symbols {
		out = append(out, sym)
	}
	s.mu.RUnlock()
	sort.Strings(out)
	return out
}
