// Package weather supplies the current weather condition for context
// snapshots.
//
// Sources are wrapped in a Cache that reuses a reading for a freshness
// window, throttles fetches and bounds each one with a timeout. When a
// fetch fails the cache answers with its stale reading, or failing that a
// season-appropriate synthetic condition, so callers never block for long
// and never see an error.
package weather
