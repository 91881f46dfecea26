package harness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/roach88/sometimes/internal/corpus"
	"github.com/roach88/sometimes/internal/engine"
	"github.com/roach88/sometimes/internal/ledger"
	"github.com/roach88/sometimes/internal/prefs"
	"github.com/roach88/sometimes/internal/store"
	"github.com/roach88/sometimes/internal/testutil"
	"github.com/roach88/sometimes/internal/transport"
	"github.com/roach88/sometimes/internal/weather"
)

// Harness holds the collaborators of one scenario run.
type Harness struct {
	store     *store.Store
	engine    *engine.Engine
	ledger    *ledger.Ledger
	clock     *testutil.ManualClock
	transport *simTransport
	weather   weather.Source
	result    *Result
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh SQLite database in a temporary
// directory, removed afterwards.
//
// Execution flow:
//  1. Open the store and seed preferences
//  2. Build the corpus, ledger and engine on a manual clock
//  3. Execute flow steps, recording a trace
//  4. Evaluate assertions against the trace and the store
//
// A returned error means the scenario could not be executed; failed
// assertions are reported in Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	dir, err := os.MkdirTemp("", "sometimes-harness-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	st, err := store.Open(filepath.Join(dir, "harness.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	h, err := newHarness(ctx, scenario, st)
	if err != nil {
		return nil, err
	}

	if err := h.executeFlow(ctx, scenario.Flow); err != nil {
		return nil, fmt.Errorf("failed to execute flow: %w", err)
	}
	h.collect(ctx)

	actx := &AssertionContext{Store: st, Ctx: ctx}
	for _, msg := range EvaluateAssertions(h.result, scenario.Assertions, actx) {
		h.result.AddError(msg)
	}
	return h.result, nil
}

func newHarness(ctx context.Context, s *Scenario, st *store.Store) (*Harness, error) {
	start := s.Start
	if s.Timezone != "" {
		loc, err := time.LoadLocation(s.Timezone)
		if err != nil {
			return nil, fmt.Errorf("timezone: %w", err)
		}
		start = start.In(loc)
	}

	c, err := scenarioCorpus(s)
	if err != nil {
		return nil, err
	}

	p := prefs.Defaults()
	if s.Preferences != nil {
		p = s.Preferences.apply(p)
	}
	if err := st.SavePreferences(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to seed preferences: %w", err)
	}

	l, err := ledger.Open(ctx, st, ledger.WithIDGenerator(&recordIDs{}))
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}

	h := &Harness{
		store:  st,
		ledger: l,
		clock:  testutil.NewManualClock(start),
		result: NewResult(),
	}
	h.transport = &simTransport{h: h}
	if s.Weather != "" {
		h.weather = weather.Static{Condition: s.Weather}
	}

	deps := engine.Deps{
		Corpus:    c,
		Ledger:    l,
		Pending:   st,
		Prefs:     st,
		Transport: h.transport,
		Salt:      s.Salt,
	}
	if h.weather != nil {
		deps.Weather = h.weather
	}
	h.engine = engine.New(deps,
		engine.WithClock(h.clock),
		engine.WithRand(testutil.NewRand(s.Seed)),
	)

	l.Subscribe(h.onLedgerChange)
	return h, nil
}

func scenarioCorpus(s *Scenario) (*corpus.Corpus, error) {
	if s.Corpus != "" {
		c, err := corpus.Load(s.Corpus)
		if err != nil {
			return nil, fmt.Errorf("failed to load corpus: %w", err)
		}
		return c, nil
	}
	c, err := corpus.New(s.Name, s.Items)
	if err != nil {
		return nil, fmt.Errorf("invalid items: %w", err)
	}
	return c, nil
}

func (h *Harness) onLedgerChange(c ledger.Change) {
	ev := TraceEvent{At: h.clock.Now(), ItemID: c.Record.ItemID, Cycle: c.Cycle}
	switch c.Kind {
	case ledger.ChangeDelivered:
		ev.Kind = EventDelivered
		ev.At = c.Record.DeliveredAt
	case ledger.ChangeKept:
		ev.Kind = EventKept
	case ledger.ChangeUnkept:
		ev.Kind = EventUnkept
	case ledger.ChangeCycleReset:
		ev.Kind = EventCycleReset
	default:
		return
	}
	h.result.record(ev)
}

// executeFlow runs all flow steps in order.
func (h *Harness) executeFlow(ctx context.Context, flow []FlowStep) error {
	for i, step := range flow {
		if err := h.executeStep(ctx, step); err != nil {
			return fmt.Errorf("flow[%d] %s: %w", i, step.Do, err)
		}
	}
	return nil
}

func (h *Harness) executeStep(ctx context.Context, step FlowStep) error {
	switch step.Do {
	case StepSchedule:
		_, ok, err := h.engine.ScheduleNext(ctx)
		if err != nil {
			return err
		}
		if !ok {
			h.result.record(TraceEvent{Kind: EventSkipped, At: h.clock.Now()})
		}
		return nil

	case StepFire:
		for range max(step.Count, 1) {
			if err := h.fire(ctx); err != nil {
				return err
			}
		}
		return nil

	case StepAdvance:
		h.clock.Advance(step.Duration + time.Duration(step.Days)*24*time.Hour)
		return nil

	case StepReconcile:
		if _, err := h.engine.Reconcile(ctx); err != nil {
			return err
		}
		h.result.record(TraceEvent{Kind: EventReconciled, At: h.clock.Now()})
		return nil

	case StepDeliverNow:
		_, err := h.engine.DeliverNow(ctx)
		return err

	case StepConfirm:
		itemID := step.Item
		if itemID == RefLast {
			last, ok := h.ledger.Last()
			if !ok {
				return errors.New("no delivery to confirm")
			}
			itemID = last.ItemID
		}
		return h.engine.OnDelivered(ctx, itemID)

	case StepKeep:
		ref := step.Ref
		if ref == RefLast {
			last, ok := h.ledger.Last()
			if !ok {
				return errors.New("no delivery to keep")
			}
			ref = last.ID
		}
		_, err := h.ledger.ToggleKept(ctx, ref, h.clock.Now(), h.engine.CurrentWeather(ctx))
		return err

	case StepPause:
		return h.updatePrefs(ctx, EventPaused, func(p prefs.Preferences) prefs.Preferences {
			return p.PauseFor(h.clock.Now(), step.Days)
		})

	case StepResume:
		return h.updatePrefs(ctx, EventResumed, prefs.Preferences.Resume)

	case StepSetPrefs:
		return h.updatePrefs(ctx, EventPrefs, step.Preferences.apply)
	}
	return fmt.Errorf("unknown step %q", step.Do)
}

// fire moves the clock to the armed fire and confirms it, the way the
// timer transport would.
func (h *Harness) fire(ctx context.Context) error {
	f, ok := h.transport.take()
	if !ok {
		return errors.New("nothing armed")
	}
	if f.FireAt.After(h.clock.Now()) {
		h.clock.Set(f.FireAt)
	}
	return h.engine.OnDelivered(ctx, f.ItemID)
}

func (h *Harness) updatePrefs(ctx context.Context, kind string, fn func(prefs.Preferences) prefs.Preferences) error {
	h.result.record(TraceEvent{Kind: kind, At: h.clock.Now()})
	_, err := h.engine.UpdatePreferences(ctx, fn)
	return err
}

// collect copies the final ledger and pending state into the result.
func (h *Harness) collect(ctx context.Context) {
	recs := h.ledger.History(false)
	slices.Reverse(recs)
	h.result.Records = recs
	h.result.Stats = h.ledger.Stats()
	if pd, ok := h.engine.Pending(ctx); ok {
		h.result.Pending = &pd
	}
}

func (c *PrefsClause) apply(p prefs.Preferences) prefs.Preferences {
	start, end := p.StartHour, p.EndHour
	if c.StartHour != nil {
		start = *c.StartHour
	}
	if c.EndHour != nil {
		end = *c.EndHour
	}
	p = p.SetActiveHours(start, end)
	if c.ItemsPerWeek != nil {
		p = p.SetFrequency(*c.ItemsPerWeek)
	}
	return p
}

// simTransport arms fires in memory; the harness fires them by moving the
// clock. It records transport activity in the trace.
type simTransport struct {
	h     *Harness
	mu    sync.Mutex
	armed []transport.Scheduled
	n     int
}

func (t *simTransport) Schedule(ctx context.Context, item corpus.Item, fireAt time.Time, hint string) error {
	p, err := t.h.store.LoadPreferences(ctx)
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.n++
	t.armed = append(t.armed, transport.Scheduled{
		ID:     fmt.Sprintf("fire-%d", t.n),
		ItemID: item.ID,
		FireAt: fireAt,
		Hint:   hint,
	})
	t.mu.Unlock()

	t.h.result.record(TraceEvent{
		Kind:      EventScheduled,
		At:        t.h.clock.Now(),
		ItemID:    item.ID,
		FireAt:    fireAt,
		StartHour: p.StartHour,
		EndHour:   p.EndHour,
	})
	return nil
}

func (t *simTransport) DeliverImmediately(_ context.Context, item corpus.Item, _ string) error {
	t.h.result.record(TraceEvent{Kind: EventPresented, At: t.h.clock.Now(), ItemID: item.ID})
	return nil
}

func (t *simTransport) CancelAllPending(context.Context) error {
	t.mu.Lock()
	n := len(t.armed)
	t.armed = nil
	t.mu.Unlock()

	if n > 0 {
		t.h.result.record(TraceEvent{Kind: EventCancelled, At: t.h.clock.Now()})
	}
	return nil
}

func (t *simTransport) ListPending(context.Context) ([]transport.Scheduled, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.armed), nil
}

// take removes and returns the soonest armed fire.
func (t *simTransport) take() (transport.Scheduled, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.armed) == 0 {
		return transport.Scheduled{}, false
	}
	i := 0
	for j, s := range t.armed {
		if s.FireAt.Before(t.armed[i].FireAt) {
			i = j
		}
	}
	f := t.armed[i]
	t.armed = slices.Delete(t.armed, i, i+1)
	return f, true
}

// recordIDs numbers delivery records in order so traces are reproducible.
type recordIDs struct {
	mu sync.Mutex
	n  int
}

func (g *recordIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("rec-%04d", g.n)
}
