// Package metrics exposes scheduler and ledger activity as Prometheus
// metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/sometimes/internal/engine"
	"github.com/roach88/sometimes/internal/ledger"
)

// Collector implements engine.Metrics on Prometheus collectors.
type Collector struct {
	scheduled       prometheus.Counter
	leadTime        prometheus.Histogram
	delivered       prometheus.Counter
	skipped         *prometheus.CounterVec
	transportFailed *prometheus.CounterVec
	ledgerChanges   *prometheus.CounterVec
	cycle           prometheus.Gauge
}

var _ engine.Metrics = (*Collector)(nil)

// NewCollector creates a Collector and registers it with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		scheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sometimes_scheduled_total",
			Help: "Deliveries armed with the transport.",
		}),
		leadTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sometimes_schedule_lead_hours",
			Help:    "Hours between scheduling and the target fire time.",
			Buckets: []float64{1, 3, 6, 12, 24, 48, 96, 168, 240},
		}),
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sometimes_delivered_total",
			Help: "Deliveries confirmed and recorded.",
		}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sometimes_schedule_skipped_total",
			Help: "Scheduling passes that armed nothing, by reason.",
		}, []string{"reason"}),
		transportFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sometimes_transport_failures_total",
			Help: "Failed transport operations, by operation.",
		}, []string{"op"}),
		ledgerChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sometimes_ledger_changes_total",
			Help: "Applied ledger mutations, by kind.",
		}, []string{"kind"}),
		cycle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sometimes_cycle",
			Help: "Current selection cycle number.",
		}),
	}

	reg.MustRegister(
		c.scheduled,
		c.leadTime,
		c.delivered,
		c.skipped,
		c.transportFailed,
		c.ledgerChanges,
		c.cycle,
	)

	return c
}

func (c *Collector) Scheduled(lead time.Duration) {
	c.scheduled.Inc()
	c.leadTime.Observe(lead.Hours())
}

func (c *Collector) Delivered() {
	c.delivered.Inc()
}

func (c *Collector) Skipped(code engine.RuntimeErrorCode) {
	c.skipped.WithLabelValues(string(code)).Inc()
}

func (c *Collector) TransportFailed(op string) {
	c.transportFailed.WithLabelValues(op).Inc()
}

// ObserveLedger counts l's mutations and tracks its cycle number.
func (c *Collector) ObserveLedger(l *ledger.Ledger) {
	c.cycle.Set(float64(l.Cycle()))
	l.Subscribe(func(ch ledger.Change) {
		c.ledgerChanges.WithLabelValues(string(ch.Kind)).Inc()
		c.cycle.Set(float64(l.Cycle()))
	})
}

// Handler returns the scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
