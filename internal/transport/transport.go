package transport

import (
	"context"
	"errors"
	"time"

	"github.com/roach88/sometimes/internal/corpus"
)

// ErrClosed is returned by a transport after Close.
var ErrClosed = errors.New("transport closed")

// Transport is the outbound delivery mechanism.
type Transport interface {
	// Schedule arms a delivery of item at fireAt carrying hint.
	Schedule(ctx context.Context, item corpus.Item, fireAt time.Time, hint string) error

	// DeliverImmediately presents item now. It does not emit a Fired
	// confirmation; the caller records the delivery itself.
	DeliverImmediately(ctx context.Context, item corpus.Item, hint string) error

	// CancelAllPending disarms every outstanding fire.
	CancelAllPending(ctx context.Context) error

	// ListPending returns the armed fires, soonest first.
	ListPending(ctx context.Context) ([]Scheduled, error)
}

// Scheduled is one armed fire.
type Scheduled struct {
	ID     string    `json:"id"`
	ItemID string    `json:"item_id"`
	FireAt time.Time `json:"fire_at"`
	Hint   string    `json:"hint,omitempty"`
}

// Fired confirms that a scheduled item reached the reader.
type Fired struct {
	ScheduledID string
	ItemID      string
	FiredAt     time.Time
}

// Message is what a Presenter shows.
type Message struct {
	Item corpus.Item
	Hint string
}

// Presenter puts a message in front of the reader.
type Presenter interface {
	Present(ctx context.Context, m Message) error
}

// PresenterFunc adapts a function to Presenter.
type PresenterFunc func(ctx context.Context, m Message) error

// Present calls f.
func (f PresenterFunc) Present(ctx context.Context, m Message) error {
	return f(ctx, m)
}
