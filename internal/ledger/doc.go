// Package ledger records confirmed deliveries.
//
// The ledger answers two questions for selection: which items were ever
// delivered, and which were delivered in the current cycle. A cycle ends when
// every item has been delivered in it; the marker advances and records stay.
//
// Delivery records are append-only. The only mutation after insert is the
// keep toggle, which captures (or clears) a KeptContext.
package ledger
