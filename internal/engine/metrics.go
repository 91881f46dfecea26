package engine

import "time"

// Metrics receives engine observations. The metrics package provides a
// Prometheus implementation.
type Metrics interface {
	// Scheduled records a newly armed delivery and its lead time.
	Scheduled(lead time.Duration)
	// Delivered records a confirmed delivery.
	Delivered()
	// Skipped records a scheduling pass that armed nothing.
	Skipped(code RuntimeErrorCode)
	// TransportFailed records a failed transport operation.
	TransportFailed(op string)
}

type nopMetrics struct{}

func (nopMetrics) Scheduled(time.Duration)  {}
func (nopMetrics) Delivered()               {}
func (nopMetrics) Skipped(RuntimeErrorCode) {}
func (nopMetrics) TransportFailed(string)   {}
