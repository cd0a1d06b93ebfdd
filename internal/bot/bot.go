// Package bot is the decision orchestrator. Every symbol gets one actor
// goroutine that owns its evaluation state; updates for a symbol are applied
// and evaluated strictly in arrival order.
package bot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hayssamhob/csr-arbitrage-mvp-sub001/internal/alignment"
	"github.com/hayssamhob/csr-arbitrage-mvp-sub001/internal/config"
	"github.com/hayssamhob/csr-arbitrage-mvp-sub001/internal/detector"
	"github.com/hayssamhob/csr-arbitrage-mvp-sub001/internal/marketdata"
	imetrics "github.com/hayssamhob/csr-arbitrage-mvp-sub001/internal/metrics"
	"github.com/hayssamhob/csr-arbitrage-mvp-sub001/internal/types"
	"go.uber.org/zap"
)

type State string

const (
	StateUninitialized State = "UNINITIALIZED"
	StateEvaluating    State = "EVALUATING"
	StateDecided       State = "DECIDED"
	StateSkipped       State = "SKIPPED"
)

// SymbolView is the orchestrator's current answer for one symbol. On SKIPPED
// the Decision and Alignment of the last DECIDED evaluation are kept as they
// were; SkipReason says why the latest evaluation did not replace them.
type SymbolView struct {
	Symbol       string                 `json:"symbol"`
	State        State                  `json:"state"`
	SkipReason   types.SkipReason       `json:"skip_reason,omitempty"`
	SkipDetail   string                 `json:"skip_detail,omitempty"`
	EvaluationID string                 `json:"evaluation_id"`
	EvaluatedAt  time.Time              `json:"evaluated_at"`
	DecidedAt    time.Time              `json:"decided_at"`
	Decision     *types.Decision        `json:"decision"`
	DecisionSkip types.SkipReason       `json:"decision_skip,omitempty"`
	Alignment    *types.AlignmentResult `json:"alignment"`
	Debug        *types.AlignmentDebug  `json:"debug,omitempty"`
}

// Clone returns a copy that shares nothing with the orchestrator.
func (v SymbolView) Clone() SymbolView {
	out := v
	if v.Decision != nil {
		d := *v.Decision
		out.Decision = &d
	}
	if v.Alignment != nil {
		a := v.Alignment.Clone()
		out.Alignment = &a
	}
	if v.Debug != nil {
		d := v.Debug.Clone()
		out.Debug = &d
	}
	return out
}

// Sink receives a copy of every evaluation outcome.
type Sink interface {
	Publish(ctx context.Context, v SymbolView) error
}

type message struct {
	ticker *types.Ticker
	ladder *types.QuoteLadder
	flush  chan struct{}
}

type actor struct {
	symbol string
	inbox  chan message

	mu   sync.RWMutex
	view SymbolView
}

type Orchestrator struct {
	cfg   atomic.Pointer[config.Config]
	store *marketdata.Store
	log   *zap.Logger
	sinks []Sink
	newID func() string

	mu     sync.RWMutex
	actors map[string]*actor

	out      chan SymbolView
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func New(cfg *config.Config, store *marketdata.Store, log *zap.Logger, sinks ...Sink) *Orchestrator {
	o := &Orchestrator{
		store:  store,
		log:    log,
		sinks:  sinks,
		newID:  uuid.NewString,
		actors: make(map[string]*actor, 8),
		out:    make(chan SymbolView, 1024),
		done:   make(chan struct{}),
	}
	o.cfg.Store(cfg)
	return o
}

// Run drives periodic re-evaluation and the sinks until ctx is done, then
// stops every actor.
func (o *Orchestrator) Run(ctx context.Context) error {
	every := o.cfg.Load().Reevaluate()
	if every <= 0 {
		every = time.Second
	}
	t := time.NewTicker(every)
	defer t.Stop()

	o.wg.Add(1)
	go o.publishLoop()

	for {
		select {
		case <-ctx.Done():
			o.stop()
			return nil
		case <-t.C:
			o.reevaluateAll()
		}
	}
}

func (o *Orchestrator) stop() {
	o.mu.Lock()
	o.stopOnce.Do(func() { close(o.done) })
	o.mu.Unlock()
	o.wg.Wait()
}

func (o *Orchestrator) stopped() bool {
	select {
	case <-o.done:
		return true
	default:
		return false
	}
}

// SetConfig swaps the configuration and re-evaluates every symbol under it.
func (o *Orchestrator) SetConfig(cfg *config.Config) {
	o.cfg.Store(cfg)
	o.store.SetConfig(cfg)
	o.log.Info("orchestrator config reloaded")
	o.reevaluateAll()
}

// SubmitTicker queues a ticker for its symbol. It blocks while the symbol's
// inbox is full so arrival order is never broken by dropping.
func (o *Orchestrator) SubmitTicker(ctx context.Context, t types.Ticker) error {
	if t.Symbol == "" {
		return fmt.Errorf("%w: ticker without symbol", types.ErrInvalidPayload)
	}
	return o.submit(ctx, t.Symbol, message{ticker: &t})
}

// SubmitLadder queues a wholesale ladder replacement for its symbol.
func (o *Orchestrator) SubmitLadder(ctx context.Context, l types.QuoteLadder) error {
	if l.Symbol == "" {
		return fmt.Errorf("%w: ladder without symbol", types.ErrInvalidPayload)
	}
	l = l.Clone()
	return o.submit(ctx, l.Symbol, message{ladder: &l})
}

// Flush waits until every message queued for symbol before the call is processed.
func (o *Orchestrator) Flush(ctx context.Context, symbol string) error {
	ch := make(chan struct{})
	if err := o.submit(ctx, symbol, message{flush: ch}); err != nil {
		return err
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-o.done:
		return errors.New("orchestrator stopped")
	}
}

func (o *Orchestrator) submit(ctx context.Context, symbol string, m message) error {
	a := o.actor(symbol)
	select {
	case a.inbox <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-o.done:
		return errors.New("orchestrator stopped")
	}
}

func (o *Orchestrator) actor(symbol string) *actor {
	o.mu.RLock()
	a := o.actors[symbol]
	o.mu.RUnlock()
	if a != nil {
		return a
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if a = o.actors[symbol]; a != nil {
		return a
	}
	size := o.cfg.Load().Timings.InboxSize
	if size <= 0 {
		size = 256
	}
	a = &actor{
		symbol: symbol,
		inbox:  make(chan message, size),
		view:   SymbolView{Symbol: symbol, State: StateUninitialized},
	}
	o.actors[symbol] = a
	if !o.stopped() {
		o.wg.Add(1)
		go o.loop(a)
	}
	return a
}

func (o *Orchestrator) loop(a *actor) {
	defer o.wg.Done()
	for {
		select {
		case <-o.done:
			return
		case m := <-a.inbox:
			o.handle(a, m)
		}
	}
}

func (o *Orchestrator) handle(a *actor, m message) {
	if m.flush != nil {
		close(m.flush)
		return
	}
	switch {
	case m.ticker != nil:
		if err := o.store.UpdateTicker("", *m.ticker); err != nil {
			imetrics.RejectedUpdates.WithLabelValues("ticker").Inc()
			o.log.Warn("ticker rejected", zap.String("symbol", a.symbol), zap.String("venue", m.ticker.Venue), zap.Error(err))
			return
		}
	case m.ladder != nil:
		if err := o.store.UpdateLadder(a.symbol, *m.ladder); err != nil {
			imetrics.RejectedUpdates.WithLabelValues("ladder").Inc()
			o.log.Warn("ladder rejected", zap.String("symbol", a.symbol), zap.Error(err))
			return
		}
	}
	o.evaluate(a)
}

func (o *Orchestrator) reevaluateAll() {
	o.mu.RLock()
	actors := make([]*actor, 0, len(o.actors))
	for _, a := range o.actors {
		actors = append(actors, a)
	}
	o.mu.RUnlock()

	for _, a := range actors {
		// anything already queued triggers an evaluation anyway
		select {
		case a.inbox <- message{}:
		default:
		}
	}
}

// evaluate runs the guards and both algorithms over one store snapshot.
func (o *Orchestrator) evaluate(a *actor) {
	cfg := o.cfg.Load()
	id := o.newID()

	a.mu.Lock()
	a.view.State = StateEvaluating
	a.view.EvaluationID = id
	a.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			o.log.Error("evaluation panicked", zap.String("symbol", a.symbol), zap.Any("panic", r))
			o.skip(a, types.NewSkip(types.SkipComputationError, fmt.Errorf("%w: %v", types.ErrComputation, r)))
		}
	}()

	ms, ok := o.store.Snapshot(a.symbol)
	if !ok {
		o.skip(a, types.NewSkip(types.SkipIncompleteData, fmt.Errorf("%w: %s", types.ErrIncompleteData, a.symbol)))
		return
	}
	if err := detector.CheckInputs(cfg, ms); err != nil {
		o.skip(a, err)
		return
	}

	sc := cfg.Symbol(a.symbol)
	res, dbg := alignment.Compute(alignment.Input{
		Market:    a.symbol,
		CEXMid:    ms.Reference.Mid,
		CEXSource: ms.Reference.Venue,
		CEXAge:    ms.Reference.Age,
		Ladder:    *ms.Ladder,
		Now:       ms.At,
	}, types.AlignmentParams{
		BandBps:         sc.AlignmentBandBps,
		MaxImpactCapPct: sc.MaxImpactCapPct,
		MaxGasBps:       sc.MaxGasBps,
		DEXStaleSeconds: sc.DEXStaleSeconds,
	})

	var (
		decision *types.Decision
		decSkip  types.SkipReason
	)
	if q, err := detector.ResolveQuote(cfg, ms); err != nil {
		decSkip = types.ReasonOf(err)
	} else {
		d := detector.Evaluate(cfg.Engine, ms.Reference.Ticker, q)
		d.Symbol = a.symbol
		decision = &d
	}

	a.mu.Lock()
	a.view.State = StateDecided
	a.view.SkipReason = ""
	a.view.SkipDetail = ""
	a.view.EvaluatedAt = ms.At
	a.view.DecidedAt = ms.At
	// without a quote at the trade size the previous edge verdict stands
	if decision != nil {
		a.view.Decision = decision
	}
	a.view.DecisionSkip = decSkip
	a.view.Alignment = &res
	a.view.Debug = &dbg
	v := a.view.Clone()
	a.mu.Unlock()

	imetrics.Evaluations.WithLabelValues(a.symbol, "decided").Inc()
	imetrics.CEXMid.WithLabelValues(a.symbol).Set(ms.Reference.Mid)
	if res.DEXExecPrice != nil {
		imetrics.DEXSpot.WithLabelValues(a.symbol).Set(*res.DEXExecPrice)
	}
	if res.DeviationPct != nil {
		imetrics.AlignmentGap.WithLabelValues(a.symbol).Set(*res.DeviationPct)
	}
	required := 0.0
	if res.RequiredUSDT != nil {
		required = *res.RequiredUSDT
	}
	imetrics.RequiredUSDT.WithLabelValues(a.symbol).Set(required)

	if decision != nil {
		imetrics.EdgeBps.WithLabelValues(a.symbol).Set(decision.EdgeAfterCostsBps)
		if decision.WouldTrade {
			o.log.Info("would trade",
				zap.String("symbol", a.symbol),
				zap.String("evaluation_id", id),
				zap.String("direction", string(decision.Direction)),
				zap.Float64("edge_bps", decision.EdgeAfterCostsBps),
				zap.Float64("size_usdt", decision.SuggestedSizeUSDT),
			)
		}
	}
	fields := []zap.Field{
		zap.String("symbol", a.symbol),
		zap.String("evaluation_id", id),
		zap.String("alignment", string(res.Status)),
		zap.String("reason", res.Reason),
	}
	if err := alignment.Cause(res, dbg); err != nil {
		fields = append(fields, zap.NamedError("sizing", err))
	}
	o.log.Debug("evaluated", fields...)
	o.emit(v)
}

// skip marks the symbol SKIPPED and leaves the last decided values in place.
func (o *Orchestrator) skip(a *actor, err error) {
	reason := types.ReasonOf(err)
	if reason == "" {
		reason = types.SkipComputationError
	}

	a.mu.Lock()
	a.view.State = StateSkipped
	a.view.SkipReason = reason
	a.view.SkipDetail = err.Error()
	a.view.EvaluatedAt = o.store.Now()
	v := a.view.Clone()
	a.mu.Unlock()

	imetrics.Evaluations.WithLabelValues(a.symbol, "skipped").Inc()
	imetrics.Skips.WithLabelValues(a.symbol, string(reason)).Inc()
	o.log.Debug("evaluation skipped",
		zap.String("symbol", a.symbol),
		zap.String("evaluation_id", v.EvaluationID),
		zap.String("reason", string(reason)),
		zap.Error(err),
	)
	o.emit(v)
}

func (o *Orchestrator) emit(v SymbolView) {
	if len(o.sinks) == 0 {
		return
	}
	select {
	case o.out <- v:
	default:
		o.log.Warn("orchestrator: sink channel full; dropping", zap.String("symbol", v.Symbol))
	}
}

func (o *Orchestrator) publishLoop() {
	defer o.wg.Done()
	for {
		select {
		case <-o.done:
			return
		case v := <-o.out:
			for _, s := range o.sinks {
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				if err := s.Publish(ctx, v.Clone()); err != nil {
					o.log.Warn("sink publish failed", zap.String("symbol", v.Symbol), zap.Error(err))
				}
				cancel()
			}
		}
	}
}

// View returns a copy of the current view for symbol.
func (o *Orchestrator) View(symbol string) (SymbolView, bool) {
	o.mu.RLock()
	a := o.actors[symbol]
	o.mu.RUnlock()
	if a == nil {
		return SymbolView{}, false
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.view.Clone(), true
}

// Views returns copies of every symbol's view, sorted by symbol.
func (o *Orchestrator) Views() []SymbolView {
	o.mu.RLock()
	actors := make([]*actor, 0, len(o.actors))
	for _, a := range o.actors {
		actors = append(actors, a)
	}
	o.mu.RUnlock()

	out := make([]SymbolView, 0, len(actors))
	for _, a := range actors {
		a.mu.RLock()
		out = append(out, a.view.Clone())
		a.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
