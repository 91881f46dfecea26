package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/sometimes/internal/ambient"
	"github.com/roach88/sometimes/internal/ledger"
)

// InsertDelivery inserts a delivery record.
// Uses ON CONFLICT DO NOTHING so a second delivery of the same item on the
// same day, or a replayed record ID, is silently ignored; inserted reports
// whether a row was written.
func (s *Store) InsertDelivery(ctx context.Context, rec ledger.DeliveryRecord) (bool, error) {
	ctxJSON, err := json.Marshal(rec.Context)
	if err != nil {
		return false, fmt.Errorf("write delivery: marshal context: %w", err)
	}
	keptJSON, err := marshalKept(rec.Kept, rec.KeptContext)
	if err != nil {
		return false, fmt.Errorf("write delivery: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO deliveries
		(id, item_id, delivered_at, delivered_ms, delivered_day, cycle, context, kept, kept_context)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		rec.ID,
		rec.ItemID,
		rec.DeliveredAt.Format(time.RFC3339Nano),
		rec.DeliveredAt.UnixMilli(),
		rec.Day(),
		rec.Cycle,
		string(ctxJSON),
		boolToInt(rec.Kept),
		keptJSON,
	)
	if err != nil {
		return false, fmt.Errorf("write delivery: %w", classify(err))
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("write delivery: rows affected: %w", err)
	}
	return n > 0, nil
}

// UpdateKept sets the keep flag and kept context of a record.
func (s *Store) UpdateKept(ctx context.Context, id string, kept bool, kc *ambient.KeptContext) error {
	keptJSON, err := marshalKept(kept, kc)
	if err != nil {
		return fmt.Errorf("update kept: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE deliveries SET kept = ?, kept_context = ? WHERE id = ?
	`, boolToInt(kept), keptJSON, id)
	if err != nil {
		return fmt.Errorf("update kept: %w", classify(err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update kept: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("update kept %s: %w", id, ledger.ErrRecordNotFound)
	}
	return nil
}

// LoadDeliveries returns every delivery, oldest first.
// Returns an empty slice (not nil) if there are none.
func (s *Store) LoadDeliveries(ctx context.Context) ([]ledger.DeliveryRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, item_id, delivered_at, cycle, context, kept, kept_context
		FROM deliveries
		ORDER BY delivered_ms ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query deliveries: %w", classify(err))
	}
	defer rows.Close()

	recs := []ledger.DeliveryRecord{}
	for rows.Next() {
		rec, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deliveries: %w", classify(err))
	}
	return recs, nil
}

// CountDeliveries returns the number of stored deliveries.
func (s *Store) CountDeliveries(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM deliveries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count deliveries: %w", classify(err))
	}
	return n, nil
}

func scanDelivery(rows *sql.Rows) (ledger.DeliveryRecord, error) {
	var (
		rec         ledger.DeliveryRecord
		deliveredAt string
		ctxJSON     string
		kept        int
		keptJSON    sql.NullString
	)
	if err := rows.Scan(&rec.ID, &rec.ItemID, &deliveredAt, &rec.Cycle, &ctxJSON, &kept, &keptJSON); err != nil {
		return ledger.DeliveryRecord{}, fmt.Errorf("scan delivery: %w", classify(err))
	}

	t, err := time.Parse(time.RFC3339Nano, deliveredAt)
	if err != nil {
		return ledger.DeliveryRecord{}, fmt.Errorf("scan delivery %s: delivered_at: %w", rec.ID, err)
	}
	rec.DeliveredAt = t

	if err := json.Unmarshal([]byte(ctxJSON), &rec.Context); err != nil {
		return ledger.DeliveryRecord{}, fmt.Errorf("scan delivery %s: context: %w", rec.ID, err)
	}

	rec.Kept = kept == 1
	if keptJSON.Valid {
		var kc ambient.KeptContext
		if err := json.Unmarshal([]byte(keptJSON.String), &kc); err != nil {
			return ledger.DeliveryRecord{}, fmt.Errorf("scan delivery %s: kept_context: %w", rec.ID, err)
		}
		rec.KeptContext = &kc
	}
	return rec, nil
}

// marshalKept returns the kept_context column value. The column is NULL
// exactly when the record is not kept.
func marshalKept(kept bool, kc *ambient.KeptContext) (sql.NullString, error) {
	if !kept {
		return sql.NullString{}, nil
	}
	if kc == nil {
		return sql.NullString{}, fmt.Errorf("kept record without kept context")
	}
	data, err := json.Marshal(kc)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal kept context: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
