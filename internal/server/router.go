// Package server exposes the engine over a small HTTP control surface.
//
// Routes:
//
//	GET  /healthz                 liveness
//	GET  /metrics                 Prometheus scrape
//	GET  /status                  scheduling state
//	GET  /pending                 the armed delivery, 204 when idle
//	GET  /history?kept=true       delivery records, most recent first
//	POST /deliveries/{itemID}     inbound delivery confirmation
//	POST /reconcile               repair scheduling state
//	POST /deliver-now             deliver an item immediately
//	POST /records/{ref}/keep      toggle the keep flag of a record
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/sometimes/internal/ambient"
	"github.com/roach88/sometimes/internal/engine"
	"github.com/roach88/sometimes/internal/ledger"
	"github.com/roach88/sometimes/internal/metrics"
)

// Scheduler is the engine surface the handlers use.
type Scheduler interface {
	Enqueue(ev engine.Event) bool
	Reconcile(ctx context.Context) (bool, error)
	DeliverNow(ctx context.Context) (engine.Delivery, error)
	Status(ctx context.Context) engine.Status
	CurrentWeather(ctx context.Context) ambient.Weather
}

// History is the ledger surface the handlers use.
type History interface {
	History(keptOnly bool) []ledger.DeliveryRecord
	ToggleKept(ctx context.Context, ref string, now time.Time, weather ambient.Weather) (ledger.DeliveryRecord, error)
}

// Deps are the collaborators of the router. A nil Gatherer disables
// /metrics; a nil Now uses time.Now.
type Deps struct {
	Scheduler Scheduler
	History   History
	Gatherer  prometheus.Gatherer
	Now       func() time.Time
}

// NewRouter builds the chi router for d.
func NewRouter(d *Deps) http.Handler {
	h := newHandler(d)
	r := chi.NewRouter()

	r.Get("/healthz", h.Health)
	if d.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(d.Gatherer))
	}

	r.Get("/status", h.Status)
	r.Get("/pending", h.Pending)
	r.Get("/history", h.History)

	r.Post("/deliveries/{itemID}", h.Confirm)
	r.Post("/reconcile", h.Reconcile)
	r.Post("/deliver-now", h.DeliverNow)
	r.Post("/records/{ref}/keep", h.ToggleKept)

	return r
}
