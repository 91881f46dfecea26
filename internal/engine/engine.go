package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/roach88/sometimes/internal/ambient"
	"github.com/roach88/sometimes/internal/corpus"
	"github.com/roach88/sometimes/internal/ledger"
	"github.com/roach88/sometimes/internal/prefs"
	"github.com/roach88/sometimes/internal/selection"
	"github.com/roach88/sometimes/internal/transport"
)

// DeliveryLedger is the part of the delivery history the engine uses.
// Implemented by *ledger.Ledger.
type DeliveryLedger interface {
	RecordDelivery(ctx context.Context, itemID string, snap ambient.Snapshot) (ledger.DeliveryRecord, error)
	AllTimeDeliveredIDs() map[string]struct{}
	CurrentCycleDeliveredIDs() map[string]struct{}
	ResetCycle(ctx context.Context) error
}

// WeatherSource reports the current weather condition.
type WeatherSource interface {
	CurrentCondition(ctx context.Context) (ambient.Weather, error)
}

// Deps are the collaborators of an Engine.
//
// Corpus, Ledger and Transport are required. A nil Pending keeps the
// pending delivery in memory only; a nil Prefs uses an in-memory store
// with defaults; a nil Weather leaves weather unknown.
type Deps struct {
	Corpus    *corpus.Corpus
	Ledger    DeliveryLedger
	Pending   PendingStore
	Prefs     prefs.Store
	Transport transport.Transport
	Weather   WeatherSource
	Salt      int64
}

// Engine owns scheduling state: the pending delivery and the decision of
// what to deliver next.
//
// Thread-safety model:
//   - ScheduleNext, OnDelivered, Reconcile, DeliverNow, Preview and
//     UpdatePreferences serialise on one mutex (single writer).
//   - Weather is fetched before the mutex is taken.
//   - Enqueue(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
//
// INVARIANTS:
//   - At most one PendingDelivery exists.
//   - Every arm of the transport is preceded by CancelAllPending.
type Engine struct {
	mu sync.Mutex

	corpus    *corpus.Corpus
	ledger    DeliveryLedger
	pendStore PendingStore
	prefs     prefs.Store
	transport transport.Transport
	weather   WeatherSource
	salt      int64

	clock   Clock
	rng     *rand.Rand // guarded by mu
	metrics Metrics
	queue   *eventQueue

	pending       *PendingDelivery
	pendingLoaded bool
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithClock sets the wall clock (default SystemClock in time.Local).
func WithClock(c Clock) EngineOption {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithRand sets the random source used for timing and selection.
func WithRand(r *rand.Rand) EngineOption {
	return func(e *Engine) {
		e.rng = r
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// New creates an Engine. It does not schedule anything; call Reconcile or
// ScheduleNext once the caller is ready.
func New(d Deps, opts ...EngineOption) *Engine {
	e := &Engine{
		corpus:    d.Corpus,
		ledger:    d.Ledger,
		pendStore: d.Pending,
		prefs:     d.Prefs,
		transport: d.Transport,
		weather:   d.Weather,
		salt:      d.Salt,
		clock:     SystemClock{},
		metrics:   nopMetrics{},
		queue:     newEventQueue(),
	}
	if e.prefs == nil {
		e.prefs = prefs.NewMemoryStore(prefs.Defaults())
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.rng == nil {
		seed := uint64(time.Now().UnixNano())
		e.rng = rand.New(rand.NewPCG(seed, uint64(d.Salt)))
	}
	return e
}

// CurrentWeather returns the current condition, or WeatherUnknown when no
// source is configured or the source fails.
func (e *Engine) CurrentWeather(ctx context.Context) ambient.Weather {
	if e.weather == nil {
		return ambient.WeatherUnknown
	}
	w, err := e.weather.CurrentCondition(ctx)
	if err != nil {
		slog.Warn("weather unavailable; continuing without it", "error", err)
		return ambient.WeatherUnknown
	}
	return w
}

// snapshot builds the context snapshot for now. Called without mu held.
func (e *Engine) snapshot(ctx context.Context) ambient.Snapshot {
	w := e.CurrentWeather(ctx)
	return ambient.Build(e.clock.Now(), w)
}

// preferences loads preferences, falling back to defaults.
func (e *Engine) preferences(ctx context.Context) prefs.Preferences {
	p, err := e.prefs.LoadPreferences(ctx)
	if err != nil {
		slog.Warn("load preferences failed; using defaults", "error", err)
		return prefs.Defaults()
	}
	return p.Normalize()
}

// ScheduleNext arms the next delivery.
//
// When deliveries are paused it returns ok=false with no side effects.
// When the corpus is empty it logs, clears the pending delivery and returns
// ok=false. Transport and persistence failures are logged; the pending
// delivery stands and Reconcile repairs it later.
//
// The returned error is non-nil only for storage corruption.
func (e *Engine) ScheduleNext(ctx context.Context) (PendingDelivery, bool, error) {
	snap := e.snapshot(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.scheduleLocked(ctx, snap)
}

// scheduleLocked implements ScheduleNext. Caller holds mu.
func (e *Engine) scheduleLocked(ctx context.Context, snap ambient.Snapshot) (PendingDelivery, bool, error) {
	now := e.clock.Now()
	p := e.preferences(ctx)

	if p.Paused(now) {
		slog.Info("deliveries paused; nothing scheduled", "until", *p.PauseUntil)
		e.metrics.Skipped(ErrCodePaused)
		return PendingDelivery{}, false, nil
	}

	if err := e.transport.CancelAllPending(ctx); err != nil {
		slog.Warn("cancel pending fires failed", "error", err)
		e.metrics.TransportFailed("cancel")
	}

	target := NextTarget(now, p, e.rng)

	res, ok := e.selectLocked(snap)
	if !ok {
		slog.Warn("no item available; nothing scheduled", "corpus", e.corpus.Source())
		e.metrics.Skipped(ErrCodeNoCandidate)
		e.clearPendingLocked(ctx)
		return PendingDelivery{}, false, nil
	}
	if res.CycleReset {
		if err := e.ledger.ResetCycle(ctx); err != nil {
			return PendingDelivery{}, false, fmt.Errorf("schedule next: %w", err)
		}
	}

	pd := PendingDelivery{
		ItemID:      res.Item.ID,
		FireAt:      target,
		ScheduledAt: now,
		Hint:        snap.Hint(),
	}
	e.setPendingLocked(ctx, pd)

	if err := e.transport.Schedule(ctx, res.Item, target, pd.Hint); err != nil {
		slog.Error("arm delivery failed; pending kept for reconcile",
			"item_id", pd.ItemID,
			"fire_at", target,
			"error", err,
		)
		e.metrics.TransportFailed("schedule")
		return pd, true, nil
	}

	e.metrics.Scheduled(target.Sub(now))
	slog.Info("delivery scheduled",
		"item_id", pd.ItemID,
		"fire_at", target,
		"pool", res.Pool,
		"score", res.Score,
	)
	return pd, true, nil
}

// selectLocked runs the selection engine over the current ledger state.
// Caller holds mu.
func (e *Engine) selectLocked(snap ambient.Snapshot) (selection.Result, bool) {
	return selection.Select(selection.Input{
		Items:    e.corpus.Items(),
		Snapshot: snap,
		AllTime:  e.ledger.AllTimeDeliveredIDs(),
		Cycle:    e.ledger.CurrentCycleDeliveredIDs(),
		Salt:     e.salt,
	}, e.rng)
}

// OnDelivered records a confirmed delivery of itemID and schedules the next
// one.
//
// A second confirmation of the same item on the same day records nothing.
// It is a no-op unless that item is still pending, in which case the slot is
// cleared and the next delivery planned. A confirmation for an item not in
// the corpus is not recorded; it only clears the pending delivery if it
// names the pending item.
func (e *Engine) OnDelivered(ctx context.Context, itemID string) error {
	snap := e.snapshot(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.corpus.Lookup(itemID); !ok {
		slog.Warn("delivery confirmed for unknown item; not recorded", "item_id", itemID)
		if pd, ok := e.loadPendingLocked(ctx); !ok || pd.ItemID != itemID {
			return nil
		}
	} else {
		rec, err := e.ledger.RecordDelivery(ctx, itemID, snap)
		switch {
		case errors.Is(err, ledger.ErrDuplicateDelivery):
			slog.Info("duplicate delivery ignored", "item_id", itemID)
			// A retried confirmation leaves the schedule alone. A fire of
			// the pending item still advances the chain.
			if pd, ok := e.loadPendingLocked(ctx); !ok || pd.ItemID != itemID {
				return nil
			}
		case err != nil:
			return fmt.Errorf("on delivered %s: %w", itemID, err)
		default:
			e.metrics.Delivered()
			slog.Info("delivery recorded", "item_id", itemID, "record_id", rec.ID)
		}
	}

	e.clearPendingLocked(ctx)
	_, _, err := e.scheduleLocked(ctx, snap)
	return err
}

// Reconcile re-schedules when the transport has nothing armed, or when the
// pending delivery's target passed without a confirmation. While paused it
// disarms the transport instead, so nothing fires during the pause.
//
// Returns true if a new delivery was scheduled.
func (e *Engine) Reconcile(ctx context.Context) (bool, error) {
	snap := e.snapshot(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	if p := e.preferences(ctx); p.Paused(now) {
		if _, ok := e.loadPendingLocked(ctx); ok {
			slog.Info("deliveries paused; disarming pending delivery", "until", *p.PauseUntil)
			if err := e.transport.CancelAllPending(ctx); err != nil {
				slog.Warn("cancel pending fires failed", "error", err)
				e.metrics.TransportFailed("cancel")
			}
			e.clearPendingLocked(ctx)
		}
		return false, nil
	}

	listed, err := e.transport.ListPending(ctx)
	if err != nil {
		slog.Warn("list pending fires failed; treating as none", "error", err)
		e.metrics.TransportFailed("list")
		listed = nil
	}

	pd, ok := e.loadPendingLocked(ctx)
	var reason string
	switch {
	case len(listed) == 0:
		reason = "nothing armed"
	case ok && !pd.FireAt.After(now):
		reason = "target passed without confirmation"
	default:
		return false, nil
	}

	slog.Info("reconciling schedule", "reason", reason)
	_, scheduled, err := e.scheduleLocked(ctx, snap)
	return scheduled, err
}

// Delivery is the outcome of DeliverNow.
type Delivery struct {
	Item     corpus.Item           `json:"item"`
	Hint     string                `json:"hint,omitempty"`
	Record   ledger.DeliveryRecord `json:"record"`
	Recorded bool                  `json:"recorded"`
}

// DeliverNow selects an item for the current context, presents it at once,
// records it and schedules the next delivery.
//
// Returns a NO_CANDIDATE RuntimeError for an empty corpus and a
// TRANSPORT_FAILED RuntimeError if presentation fails; nothing is recorded
// in either case.
func (e *Engine) DeliverNow(ctx context.Context) (Delivery, error) {
	snap := e.snapshot(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()

	res, ok := e.selectLocked(snap)
	if !ok {
		e.metrics.Skipped(ErrCodeNoCandidate)
		return Delivery{}, NewNoCandidateError()
	}
	if res.CycleReset {
		if err := e.ledger.ResetCycle(ctx); err != nil {
			return Delivery{}, fmt.Errorf("deliver now: %w", err)
		}
	}

	d := Delivery{Item: res.Item, Hint: snap.Hint()}
	if err := e.transport.DeliverImmediately(ctx, res.Item, d.Hint); err != nil {
		e.metrics.TransportFailed("deliver")
		return Delivery{}, NewTransportError("deliver", res.Item.ID, err)
	}

	rec, err := e.ledger.RecordDelivery(ctx, res.Item.ID, snap)
	switch {
	case errors.Is(err, ledger.ErrDuplicateDelivery):
		slog.Info("item already delivered today; not recorded again", "item_id", res.Item.ID)
	case err != nil:
		return d, fmt.Errorf("deliver now: %w", err)
	default:
		d.Record = rec
		d.Recorded = true
		e.metrics.Delivered()
	}
	slog.Info("delivered now", "item_id", res.Item.ID, "pool", res.Pool)

	if _, _, err := e.scheduleLocked(ctx, snap); err != nil {
		return d, err
	}
	return d, nil
}

// Preview is a dry run of the next scheduling pass.
type Preview struct {
	FireAt    time.Time             `json:"fire_at"`
	Item      corpus.Item           `json:"item"`
	Score     int                   `json:"score"`
	Pool      selection.PoolKind    `json:"pool"`
	Hint      string                `json:"hint"`
	Context   ambient.Snapshot      `json:"context"`
	Shortlist []selection.Candidate `json:"-"`
}

// Preview computes a target time and selection without persisting or
// arming anything. ok is false when the corpus is empty.
func (e *Engine) Preview(ctx context.Context) (Preview, bool) {
	snap := e.snapshot(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	target := NextTarget(now, e.preferences(ctx), e.rng)
	res, ok := e.selectLocked(snap)
	if !ok {
		return Preview{}, false
	}
	return Preview{
		FireAt:    target,
		Item:      res.Item,
		Score:     res.Score,
		Pool:      res.Pool,
		Hint:      snap.Hint(),
		Context:   snap,
		Shortlist: res.Shortlist,
	}, true
}

// UpdatePreferences applies fn to the stored preferences and saves the
// result. A paused result disarms the pending delivery; otherwise the next
// delivery is re-planned under the new preferences.
func (e *Engine) UpdatePreferences(ctx context.Context, fn func(prefs.Preferences) prefs.Preferences) (prefs.Preferences, error) {
	snap := e.snapshot(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()

	cur := e.preferences(ctx)
	next := fn(cur).Normalize()
	if err := e.prefs.SavePreferences(ctx, next); err != nil {
		return cur, &RuntimeError{Code: ErrCodePersistFailed, Message: "save preferences", Err: err}
	}

	if next.Paused(e.clock.Now()) {
		if err := e.transport.CancelAllPending(ctx); err != nil {
			slog.Warn("cancel pending fires failed", "error", err)
			e.metrics.TransportFailed("cancel")
		}
		e.clearPendingLocked(ctx)
		slog.Info("deliveries paused", "until", *next.PauseUntil)
		return next, nil
	}

	if _, _, err := e.scheduleLocked(ctx, snap); err != nil {
		return next, err
	}
	return next, nil
}

// Status describes the engine's scheduling state.
type Status struct {
	State        State             `json:"state"`
	Pending      *PendingDelivery  `json:"pending,omitempty"`
	Preferences  prefs.Preferences `json:"preferences"`
	Paused       bool              `json:"paused"`
	CorpusSize   int               `json:"corpus_size"`
	CorpusSource string            `json:"corpus_source"`
}

// Status returns the current scheduling state.
func (e *Engine) Status(ctx context.Context) Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	p := e.preferences(ctx)
	st := Status{
		State:        StateIdle,
		Preferences:  p,
		Paused:       p.Paused(e.clock.Now()),
		CorpusSize:   e.corpus.Len(),
		CorpusSource: e.corpus.Source(),
	}
	if pd, ok := e.loadPendingLocked(ctx); ok {
		st.State = StateScheduled
		st.Pending = &pd
	}
	return st
}

// Pending returns the pending delivery, if any.
func (e *Engine) Pending(ctx context.Context) (PendingDelivery, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loadPendingLocked(ctx)
}

// loadPendingLocked returns the pending delivery, reading the store once.
// Caller holds mu.
func (e *Engine) loadPendingLocked(ctx context.Context) (PendingDelivery, bool) {
	if !e.pendingLoaded {
		e.pendingLoaded = true
		if e.pendStore != nil {
			pd, ok, err := e.pendStore.LoadPending(ctx)
			switch {
			case err != nil:
				slog.Warn("load pending delivery failed; starting idle", "error", err)
			case ok:
				e.pending = &pd
			}
		}
	}
	if e.pending == nil {
		return PendingDelivery{}, false
	}
	return *e.pending, true
}

// setPendingLocked replaces the pending delivery. Caller holds mu.
func (e *Engine) setPendingLocked(ctx context.Context, pd PendingDelivery) {
	e.pending = &pd
	e.pendingLoaded = true
	if e.pendStore == nil {
		return
	}
	if err := e.pendStore.SavePending(ctx, pd); err != nil {
		slog.Warn("persist pending delivery failed; keeping in memory",
			"item_id", pd.ItemID,
			"error", err,
		)
	}
}

// clearPendingLocked empties the pending slot. Caller holds mu.
func (e *Engine) clearPendingLocked(ctx context.Context) {
	e.pending = nil
	e.pendingLoaded = true
	if e.pendStore == nil {
		return
	}
	if err := e.pendStore.ClearPending(ctx); err != nil {
		slog.Warn("clear pending delivery failed", "error", err)
	}
}

// Enqueue submits an event for processing by the Run loop.
// Thread-safe: may be called from any goroutine.
//
// Returns false if the engine has been stopped.
func (e *Engine) Enqueue(ev Event) bool {
	return e.queue.Enqueue(ev)
}

// QueueLen returns the number of events waiting for the Run loop.
func (e *Engine) QueueLen() int {
	return e.queue.Len()
}

// Listen forwards transport confirmations to the Run loop until ctx is done.
func (e *Engine) Listen(ctx context.Context, fired <-chan transport.Fired) {
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-fired:
			if !e.Enqueue(DeliveredEvent(f.ItemID, f.FiredAt)) {
				slog.Warn("engine stopped; dropping delivery confirmation", "item_id", f.ItemID)
				return
			}
		}
	}
}

// Run starts the event loop.
// Blocks until context is cancelled or Stop() is called.
//
// ERROR HANDLING: On event processing failure, the error is logged with
// the event and processing continues.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("engine starting")

	for {
		event, ok := e.queue.TryDequeue()
		if ok {
			if err := e.processEvent(ctx, event); err != nil {
				logEventError(event, err)
			}
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("engine stopping: context cancelled")
			e.queue.Close()
			return ctx.Err()

		case <-e.queue.Wait():
			// The signal channel closes when the queue is closed.
			if e.queue.Len() == 0 && e.queue.Closed() {
				slog.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop gracefully shuts down the engine.
// Closes the event queue, which will cause Run() to return.
func (e *Engine) Stop() {
	e.queue.Close()
}

// processEvent routes an event to the appropriate handler.
func (e *Engine) processEvent(ctx context.Context, event Event) error {
	switch event.Type {
	case EventTypeDelivered:
		if event.ItemID == "" {
			return fmt.Errorf("delivered event missing item id")
		}
		return e.OnDelivered(ctx, event.ItemID)

	case EventTypeReconcile:
		_, err := e.Reconcile(ctx)
		return err

	default:
		return fmt.Errorf("unknown event type: %d", event.Type)
	}
}

func logEventError(event Event, err error) {
	slog.Error("event processing failed",
		"type", event.Type.String(),
		"item_id", event.ItemID,
		"error", err,
	)
}
