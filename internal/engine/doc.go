// Package engine implements the scheduling engine.
//
// The engine decides when the next delivery fires and what it carries. It
// owns the single PendingDelivery and drives the transport; the ledger
// records what was actually delivered.
//
// STATES:
//
//	Idle --ScheduleNext--> Scheduled --OnDelivered--> Idle --> Scheduled
//
// ScheduleNext stays Idle while deliveries are paused or the corpus is
// empty.
//
// ARCHITECTURE:
//
// Scheduling operations hold one mutex, so two concurrent ScheduleNext
// calls leave exactly one pending delivery and one armed fire. Weather is
// fetched and the context snapshot built before the mutex is taken.
//
// Delivery confirmations arrive as events. Listen forwards the transport's
// Fired channel into a FIFO queue and Run processes the queue in one
// goroutine, logging failures and continuing.
//
// Timing:
//  1. base interval 7/itemsPerWeek days, ±25% uniform jitter
//  2. clamp into the allowed-hours window in the clock's location
//  3. ±15-45 minutes of final jitter that never leaves the window
//  4. floor at now+1h, re-clamped into the window
//
// Failures of the transport, the pending store or the weather source are
// logged and absorbed. Reconcile repairs a pending delivery whose fire was
// lost.
package engine
