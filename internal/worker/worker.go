// Package worker runs periodic maintenance for the engine on a cron
// schedule: reconciliation against the transport and cache refreshes.
package worker

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/roach88/sometimes/internal/engine"
)

// DefaultReconcileEvery is the reconcile interval when none is configured.
const DefaultReconcileEvery = 15 * time.Minute

// Enqueuer accepts engine events. Implemented by *engine.Engine.
type Enqueuer interface {
	Enqueue(ev engine.Event) bool
}

// Worker owns a cron instance whose jobs feed the engine's event queue.
// Jobs never call the engine directly, so the engine keeps a single writer.
type Worker struct {
	cron     *cron.Cron
	target   Enqueuer
	location *time.Location

	mu        sync.Mutex
	reconcile cron.EntryID
}

// New creates a Worker that evaluates schedules in loc.
func New(target Enqueuer, loc *time.Location) *Worker {
	if loc == nil {
		loc = time.Local
	}
	return &Worker{
		cron:     cron.New(cron.WithLocation(loc)),
		target:   target,
		location: loc,
	}
}

// Every returns the cron descriptor for a fixed interval.
func Every(d time.Duration) string {
	return fmt.Sprintf("@every %s", d)
}

// ScheduleReconcile sets the reconcile schedule, replacing any previous one.
// spec is a five-field cron expression or a descriptor such as "@every 15m".
func (w *Worker) ScheduleReconcile(spec string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	id, err := w.cron.AddFunc(spec, w.Reconcile)
	if err != nil {
		return fmt.Errorf("schedule reconcile %q: %w", spec, err)
	}
	if w.reconcile != 0 {
		w.cron.Remove(w.reconcile)
	}
	w.reconcile = id

	slog.Info("reconcile scheduled", "spec", spec, "timezone", w.location.String())
	return nil
}

// AddJob runs fn on spec alongside the reconcile job.
func (w *Worker) AddJob(name, spec string, fn func()) error {
	if _, err := w.cron.AddFunc(spec, fn); err != nil {
		return fmt.Errorf("schedule %s %q: %w", name, spec, err)
	}
	slog.Debug("job scheduled", "job", name, "spec", spec)
	return nil
}

// Reconcile enqueues one reconcile event.
func (w *Worker) Reconcile() {
	if !w.target.Enqueue(engine.ReconcileEvent()) {
		slog.Warn("engine stopped; skipping reconcile")
	}
}

// Start begins running jobs in the background.
func (w *Worker) Start() {
	w.cron.Start()
}

// Stop halts the scheduler and waits for running jobs to finish.
func (w *Worker) Stop() {
	<-w.cron.Stop().Done()
}

// Next returns the next reconcile time, or the zero time if none is
// scheduled or the worker is not running.
func (w *Worker) Next() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.reconcile == 0 {
		return time.Time{}
	}
	return w.cron.Entry(w.reconcile).Next
}
