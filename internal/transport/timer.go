package transport

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/sometimes/internal/corpus"
)

// firedBuffer bounds confirmations waiting for the engine.
const firedBuffer = 16

// Timer is an in-process Transport backed by time.AfterFunc.
//
// Armed fires do not survive a restart; the engine's Reconcile re-arms
// from the persisted pending delivery.
type Timer struct {
	presenter Presenter
	now       func() time.Time

	mu      sync.Mutex
	pending map[string]*timerEntry
	closed  bool

	fired chan Fired
	done  chan struct{}
}

type timerEntry struct {
	sched Scheduled
	item  corpus.Item
	t     *time.Timer
}

// TimerOption configures a Timer.
type TimerOption func(*Timer)

// WithNow overrides the wall clock used to compute fire delays.
func WithNow(now func() time.Time) TimerOption {
	return func(t *Timer) {
		t.now = now
	}
}

// NewTimer returns a Timer presenting through p.
func NewTimer(p Presenter, opts ...TimerOption) *Timer {
	t := &Timer{
		presenter: p,
		now:       time.Now,
		pending:   make(map[string]*timerEntry),
		fired:     make(chan Fired, firedBuffer),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Fired returns the confirmation channel. It is never closed.
func (t *Timer) Fired() <-chan Fired {
	return t.fired
}

// Schedule arms item to fire at fireAt. A fireAt in the past fires at once.
func (t *Timer) Schedule(_ context.Context, item corpus.Item, fireAt time.Time, hint string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}

	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("schedule %s: %w", item.ID, err)
	}
	entry := &timerEntry{
		sched: Scheduled{ID: id.String(), ItemID: item.ID, FireAt: fireAt, Hint: hint},
		item:  item,
	}
	delay := max(fireAt.Sub(t.now()), 0)
	entry.t = time.AfterFunc(delay, func() { t.fire(entry.sched.ID) })
	t.pending[entry.sched.ID] = entry

	slog.Debug("transport armed", "item_id", item.ID, "fire_at", fireAt, "delay", delay)
	return nil
}

// fire presents a due entry and emits its confirmation.
func (t *Timer) fire(id string) {
	t.mu.Lock()
	entry, ok := t.pending[id]
	if ok {
		delete(t.pending, id)
	}
	t.mu.Unlock()
	if !ok {
		return // cancelled
	}

	m := Message{Item: entry.item, Hint: entry.sched.Hint}
	if err := t.presenter.Present(context.Background(), m); err != nil {
		slog.Error("present scheduled item failed",
			"item_id", entry.item.ID,
			"error", err,
		)
		return
	}

	f := Fired{ScheduledID: id, ItemID: entry.item.ID, FiredAt: t.now()}
	select {
	case t.fired <- f:
	case <-t.done:
	}
}

// DeliverImmediately presents item synchronously.
func (t *Timer) DeliverImmediately(ctx context.Context, item corpus.Item, hint string) error {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return ErrClosed
	}

	if err := t.presenter.Present(ctx, Message{Item: item, Hint: hint}); err != nil {
		return fmt.Errorf("deliver %s: %w", item.ID, err)
	}
	return nil
}

// CancelAllPending stops every armed timer.
func (t *Timer) CancelAllPending(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for id, entry := range t.pending {
		entry.t.Stop()
		delete(t.pending, id)
	}
	return nil
}

// ListPending returns armed fires, soonest first.
func (t *Timer) ListPending(_ context.Context) ([]Scheduled, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Scheduled, 0, len(t.pending))
	for _, entry := range t.pending {
		out = append(out, entry.sched)
	}
	slices.SortFunc(out, func(a, b Scheduled) int {
		return a.FireAt.Compare(b.FireAt)
	})
	return out, nil
}

// Close cancels armed fires and rejects further scheduling.
func (t *Timer) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	for id, entry := range t.pending {
		entry.t.Stop()
		delete(t.pending, id)
	}
	close(t.done)
	return nil
}
