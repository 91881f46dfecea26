package store

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sometimes/internal/ledger"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	for _, table := range []string{"deliveries", "pending_delivery", "settings"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found after idempotent opens: %v", table, err)
		}
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/test.db")
	if err == nil {
		t.Error("expected error for invalid path, got nil")
	}
}

func TestOpen_NotADatabaseIsCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.db")
	garbage := make([]byte, 4096)
	for i := range garbage {
		garbage[i] = byte(i*7 + 3)
	}
	require.NoError(t, os.WriteFile(path, garbage, 0o644))

	_, err := Open(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrStorageCorrupt)
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{db: nil}
	if err := s.Close(); err != nil {
		t.Errorf("Close() on nil db should not error: %v", err)
	}
}

func TestPragmas(t *testing.T) {
	s := createTestStore(t)

	for _, p := range pragmas {
		t.Run(p.name, func(t *testing.T) {
			if err := s.verifyPragma(p.name, p.want); err != nil {
				t.Error(err)
			}
		})
	}
}

func TestSchema_DeliveriesTable(t *testing.T) {
	s := createTestStore(t)

	columns := getTableColumns(t, s.db, "deliveries")
	expected := []string{
		"id", "item_id", "delivered_at", "delivered_ms", "delivered_day",
		"cycle", "context", "kept", "kept_context",
	}
	for _, col := range expected {
		assert.Contains(t, columns, col)
	}

	indexes := getTableIndexes(t, s.db, "deliveries")
	assert.Contains(t, indexes, "idx_deliveries_order")
	assert.Contains(t, indexes, "idx_deliveries_item")
}

func TestSchema_UserVersion(t *testing.T) {
	s := createTestStore(t)

	var v int
	require.NoError(t, s.db.QueryRow("PRAGMA user_version").Scan(&v))
	assert.Equal(t, currentSchemaVersion, v)
}

func TestConstraint_KeptContextMatchesKept(t *testing.T) {
	s := createTestStore(t)

	_, err := s.db.Exec(`
		INSERT INTO deliveries (id, item_id, delivered_at, delivered_ms, delivered_day, cycle, context, kept, kept_context)
		VALUES ('r1', 'a', '2025-01-01T00:00:00Z', 0, '2025-01-01', 0, '{}', 1, NULL)
	`)
	assert.Error(t, err, "kept row without kept_context must be rejected")

	_, err = s.db.Exec(`
		INSERT INTO deliveries (id, item_id, delivered_at, delivered_ms, delivered_day, cycle, context, kept, kept_context)
		VALUES ('r2', 'a', '2025-01-01T00:00:00Z', 0, '2025-01-01', 0, '{}', 0, '{}')
	`)
	assert.Error(t, err, "unkept row with kept_context must be rejected")
}

func TestConstraint_SinglePendingSlot(t *testing.T) {
	s := createTestStore(t)

	_, err := s.db.Exec(`
		INSERT INTO pending_delivery (slot, item_id, fire_at, scheduled_at) VALUES (2, 'a', 'x', 'y')
	`)
	assert.Error(t, err)
}

func getTableColumns(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		t.Fatalf("failed to get table info for %q: %v", table, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue interface{}
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			t.Fatalf("failed to scan column info: %v", err)
		}
		columns = append(columns, name)
	}
	return columns
}

func getTableIndexes(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("SELECT name FROM sqlite_master WHERE type='index' AND tbl_name=?", table)
	if err != nil {
		t.Fatalf("failed to get indexes for %q: %v", table, err)
	}
	defer rows.Close()

	var indexes []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("failed to scan index name: %v", err)
		}
		indexes = append(indexes, name)
	}
	return indexes
}
