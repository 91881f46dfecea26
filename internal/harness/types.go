package harness

import (
	"time"

	"github.com/roach88/sometimes/internal/engine"
	"github.com/roach88/sometimes/internal/ledger"
)

// Event kinds recorded in a trace.
const (
	EventScheduled  = "scheduled"
	EventCancelled  = "cancelled"
	EventPresented  = "presented"
	EventDelivered  = "delivered"
	EventKept       = "kept"
	EventUnkept     = "unkept"
	EventCycleReset = "cycle_reset"
	EventReconciled = "reconciled"
	EventPaused     = "paused"
	EventResumed    = "resumed"
	EventPrefs      = "prefs"
	EventSkipped    = "skipped"
)

// TraceEvent is one observable step of a scenario run.
type TraceEvent struct {
	Seq    int64     `json:"seq"`
	Kind   string    `json:"kind"`
	At     time.Time `json:"at"`
	ItemID string    `json:"item_id,omitempty"`
	FireAt time.Time `json:"fire_at,omitzero"`
	Cycle  int64     `json:"cycle,omitempty"`

	// Window is the delivery window in force when a fire was scheduled.
	StartHour int `json:"start_hour,omitempty"`
	EndHour   int `json:"end_hour,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	Trace  []TraceEvent `json:"trace"`
	Errors []string     `json:"errors,omitempty"`

	// Final state.
	Records []ledger.DeliveryRecord `json:"records"` // oldest first
	Stats   ledger.Stats            `json:"stats"`
	Pending *engine.PendingDelivery `json:"pending,omitempty"`

	seq int64
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Trace:   []TraceEvent{},
		Errors:  []string{},
		Records: []ledger.DeliveryRecord{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// record appends ev to the trace with the next sequence number.
func (r *Result) record(ev TraceEvent) {
	r.seq++
	ev.Seq = r.seq
	r.Trace = append(r.Trace, ev)
}

// Events returns the trace events of kind.
func (r *Result) Events(kind string) []TraceEvent {
	var out []TraceEvent
	for _, ev := range r.Trace {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}
