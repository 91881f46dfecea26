package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/roach88/sometimes/internal/ambient"
)

var (
	// ErrDuplicateDelivery is returned when an item is recorded twice on the
	// same calendar day. Callers treat it as a no-op.
	ErrDuplicateDelivery = errors.New("item already delivered today")

	// ErrStorageCorrupt marks a persistence failure the ledger cannot
	// survive. It is the only error that fails a ledger mutation.
	ErrStorageCorrupt = errors.New("delivery storage is corrupt")

	// ErrRecordNotFound is returned when a keep reference matches nothing.
	ErrRecordNotFound = errors.New("delivery record not found")
)

// DeliveryRecord is one confirmed delivery. Records are append-only; only
// the keep flag and its context change after insert.
//
// INVARIANT: KeptContext != nil iff Kept.
type DeliveryRecord struct {
	ID          string               `json:"id"`
	ItemID      string               `json:"item_id"`
	DeliveredAt time.Time            `json:"delivered_at"`
	Context     ambient.Snapshot     `json:"context"`
	Cycle       int64                `json:"cycle"`
	Kept        bool                 `json:"kept"`
	KeptContext *ambient.KeptContext `json:"kept_context,omitempty"`
}

// Day returns the calendar day of the delivery in the zone it was recorded in.
func (r DeliveryRecord) Day() string {
	return DayKey(r.DeliveredAt)
}

// DayKey formats the calendar day of t in t's own location.
func DayKey(t time.Time) string {
	return t.Format(time.DateOnly)
}

// Persister is the durable side of the ledger.
//
// InsertDelivery reports inserted=false when storage already holds a
// delivery of the same item on the same day.
type Persister interface {
	InsertDelivery(ctx context.Context, rec DeliveryRecord) (inserted bool, err error)
	UpdateKept(ctx context.Context, id string, kept bool, kc *ambient.KeptContext) error
	LoadDeliveries(ctx context.Context) ([]DeliveryRecord, error)
	LoadCycle(ctx context.Context) (int64, error)
	SaveCycle(ctx context.Context, cycle int64) error
}

// ChangeKind names a ledger mutation.
type ChangeKind string

const (
	ChangeDelivered  ChangeKind = "delivered"
	ChangeKept       ChangeKind = "kept"
	ChangeUnkept     ChangeKind = "unkept"
	ChangeCycleReset ChangeKind = "cycle_reset"
)

// Change is sent to subscribers after a mutation is applied.
type Change struct {
	Kind   ChangeKind
	Record DeliveryRecord
	Cycle  int64
}

// Stats summarises the ledger.
type Stats struct {
	Delivered      int   `json:"delivered"`
	Kept           int   `json:"kept"`
	Cycle          int64 `json:"cycle"`
	CycleDelivered int   `json:"cycle_delivered"`
}
