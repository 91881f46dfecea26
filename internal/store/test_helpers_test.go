package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/sometimes/internal/ambient"
	"github.com/roach88/sometimes/internal/ledger"
)

// createTestStore creates a new on-disk store in a temp dir for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRecord creates a delivery record with a context built at at.
func createTestRecord(id, itemID string, at time.Time, cycle int64) ledger.DeliveryRecord {
	return ledger.DeliveryRecord{
		ID:          id,
		ItemID:      itemID,
		DeliveredAt: at,
		Context:     ambient.Build(at, ambient.Rainy),
		Cycle:       cycle,
	}
}
