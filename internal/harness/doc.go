// Package harness runs scheduling scenarios against the real engine, ledger
// and SQLite store on a manual clock.
//
// The harness is used by tests to exercise whole delivery lifecycles: days
// of scheduled fires, keeps, pauses and preference changes.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: daily_week
//	description: "Seven daily deliveries from a Monday morning"
//	start: 2025-03-03T09:00:00Z
//	seed: 7
//	salt: 42424
//	weather: rainy
//	preferences: { start_hour: 8, end_hour: 20, items_per_week: 7 }
//	corpus: ../corpus/five.yaml
//	flow:
//	  - do: schedule
//	  - do: fire
//	    count: 5
//	  - do: keep
//	    ref: last
//	assertions:
//	  - type: delivered_count
//	    count: 5
//	  - type: final_state
//	    table: deliveries
//	    where: { kept: 1 }
//	    expect: { cycle: 0 }
//
// Items may be listed inline under items: instead of naming a corpus file.
//
// # Steps
//
//   - schedule: plan the next delivery
//   - fire: move the clock to the armed fire time and confirm it (count times)
//   - advance: move the clock forward by duration or days
//   - reconcile: repair the schedule
//   - deliver_now: present an item immediately
//   - confirm: confirm item (or "last") at the current time
//   - keep: toggle the keep flag of ref (record ID, item ID or "last")
//   - pause, resume, set_prefs: change preferences through the engine
//
// # Assertion Types
//
//   - trace_contains: an event of a kind, optionally for an item
//   - trace_order: event kinds appear in order
//   - trace_count: an event kind appears exactly N times
//   - delivered_count: the ledger holds N deliveries
//   - no_repeat_in_cycle: no item is delivered twice within one cycle
//   - within_window: every scheduled fire lies inside its delivery window
//   - min_gap: consecutive scheduled fires are at least duration apart
//   - final_state: a row of a store table matches expected values
//
// # Determinism
//
// A scenario's seed drives every random decision and its start time drives
// the clock, so the same scenario always produces the same trace.
package harness
