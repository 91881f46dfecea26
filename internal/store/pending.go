package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/sometimes/internal/engine"
	"github.com/roach88/sometimes/internal/ledger"
	"github.com/roach88/sometimes/internal/prefs"
)

var (
	_ ledger.Persister    = (*Store)(nil)
	_ engine.PendingStore = (*Store)(nil)
	_ prefs.Store         = (*Store)(nil)
)

// LoadPending reads the pending delivery slot.
func (s *Store) LoadPending(ctx context.Context) (engine.PendingDelivery, bool, error) {
	var pd engine.PendingDelivery
	var fireAt, scheduledAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT item_id, fire_at, scheduled_at, hint FROM pending_delivery WHERE slot = 1
	`).Scan(&pd.ItemID, &fireAt, &scheduledAt, &pd.Hint)
	if errors.Is(err, sql.ErrNoRows) {
		return engine.PendingDelivery{}, false, nil
	}
	if err != nil {
		return engine.PendingDelivery{}, false, fmt.Errorf("read pending: %w", classify(err))
	}

	if pd.FireAt, err = time.Parse(time.RFC3339Nano, fireAt); err != nil {
		return engine.PendingDelivery{}, false, fmt.Errorf("read pending: fire_at: %w", err)
	}
	if pd.ScheduledAt, err = time.Parse(time.RFC3339Nano, scheduledAt); err != nil {
		return engine.PendingDelivery{}, false, fmt.Errorf("read pending: scheduled_at: %w", err)
	}
	return pd, true, nil
}

// SavePending replaces the pending delivery slot.
func (s *Store) SavePending(ctx context.Context, pd engine.PendingDelivery) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pending_delivery (slot, item_id, fire_at, scheduled_at, hint)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(slot) DO UPDATE SET
			item_id = excluded.item_id,
			fire_at = excluded.fire_at,
			scheduled_at = excluded.scheduled_at,
			hint = excluded.hint
	`,
		pd.ItemID,
		pd.FireAt.Format(time.RFC3339Nano),
		pd.ScheduledAt.Format(time.RFC3339Nano),
		pd.Hint,
	)
	if err != nil {
		return fmt.Errorf("write pending: %w", classify(err))
	}
	return nil
}

// ClearPending empties the pending delivery slot.
func (s *Store) ClearPending(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM pending_delivery`); err != nil {
		return fmt.Errorf("clear pending: %w", classify(err))
	}
	return nil
}
