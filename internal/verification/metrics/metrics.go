// Package metrics provides Prometheus metrics for calls to the verification backend.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains the verification client metrics.
type Metrics struct {
	RequestsTotal          *prometheus.CounterVec   // by operation and outcome (ok or error kind)
	RequestDurationSeconds *prometheus.HistogramVec // by operation, one observation per attempt
	RetriesTotal           *prometheus.CounterVec   // by operation
	FallbacksTotal         *prometheus.CounterVec   // fallback id-type catalog served, by reason
	ProbeUp                prometheus.Gauge         // 1 after a successful probe, 0 after a failed one
}

// New registers the metrics on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kycflow_verification_requests_total",
			Help: "Total verification backend calls by operation and outcome",
		}, []string{"operation", "outcome"}),

		RequestDurationSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kycflow_verification_request_duration_seconds",
			Help:    "Duration of a single verification backend attempt",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"operation"}),

		RetriesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kycflow_verification_retries_total",
			Help: "Total retried verification backend attempts by operation",
		}, []string{"operation"}),

		FallbacksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kycflow_verification_id_type_fallbacks_total",
			Help: "Times the built-in id type catalog was served, by reason",
		}, []string{"reason"}),

		ProbeUp: f.NewGauge(prometheus.GaugeOpts{
			Name: "kycflow_verification_backend_up",
			Help: "Result of the last health probe (1 reachable, 0 unreachable)",
		}),
	}
}

// ObserveRequest records one finished attempt. outcome is "ok" or an error kind.
func (m *Metrics) ObserveRequest(operation, outcome string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(operation, outcome).Inc()
	m.RequestDurationSeconds.WithLabelValues(operation).Observe(durationSeconds)
}

// IncRetry records a scheduled retry.
func (m *Metrics) IncRetry(operation string) {
	if m == nil {
		return
	}
	m.RetriesTotal.WithLabelValues(operation).Inc()
}

// IncFallback records a served fallback catalog.
func (m *Metrics) IncFallback(reason string) {
	if m == nil {
		return
	}
	m.FallbacksTotal.WithLabelValues(reason).Inc()
}

// SetProbe records the latest probe outcome.
func (m *Metrics) SetProbe(up bool) {
	if m == nil {
		return
	}
	if up {
		m.ProbeUp.Set(1)
		return
	}
	m.ProbeUp.Set(0)
}
