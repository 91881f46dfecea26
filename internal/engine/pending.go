package engine

import (
	"context"
	"time"
)

// PendingDelivery is the single scheduled, not yet confirmed delivery.
// It is persisted only so that scheduling survives a restart.
type PendingDelivery struct {
	ItemID      string    `json:"item_id"`
	FireAt      time.Time `json:"fire_at"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Hint        string    `json:"hint,omitempty"`
}

// PendingStore persists the single pending delivery slot.
//
// LoadPending reports ok=false when the slot is empty.
type PendingStore interface {
	LoadPending(ctx context.Context) (pd PendingDelivery, ok bool, err error)
	SavePending(ctx context.Context, pd PendingDelivery) error
	ClearPending(ctx context.Context) error
}

// State is the scheduling state.
type State string

const (
	// StateIdle means nothing is scheduled.
	StateIdle State = "idle"
	// StateScheduled means a pending delivery exists and the transport was asked to fire it.
	StateScheduled State = "scheduled"
)
