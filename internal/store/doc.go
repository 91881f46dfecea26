// Package store provides SQLite-backed durable storage for the delivery
// ledger and the scheduler's persisted state.
//
// Tables:
//   - deliveries: append-only delivery records (UNIQUE(item_id, delivered_day))
//   - pending_delivery: the single pending delivery slot (slot = 1)
//   - settings: installation salt, cycle marker, preferences
//
// # Time Storage
//
// Timestamps are stored as RFC 3339 text with the original offset so a
// record's calendar day survives a reload. Ordering uses delivered_ms, never
// the text column.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Errors caused by a damaged database file wrap ledger.ErrStorageCorrupt.
package store
