package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values for lifecycle operations.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomePartial = "partial"
)

// Metrics holds the Prometheus collectors for the service.
type Metrics struct {
	// LifecycleOperations counts connect, status, disconnect and callback
	// calls by provider and outcome.
	LifecycleOperations *prometheus.CounterVec
	// AuditDroppedTotal counts events rejected by a full or closed queue.
	AuditDroppedTotal prometheus.Counter
	// AuditDeliveries counts sink deliveries by sink and outcome.
	AuditDeliveries *prometheus.CounterVec
	// RequestDuration tracks HTTP latency by route pattern.
	RequestDuration *prometheus.HistogramVec
	// HTTPRequestsInFlight is the number of requests being served.
	HTTPRequestsInFlight prometheus.Gauge

	registry *prometheus.Registry
}

// New creates and registers all collectors on a private registry.
func New(namespace string) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		LifecycleOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lifecycle_operations_total",
				Help:      "Total number of integration lifecycle operations",
			},
			[]string{"operation", "provider", "outcome"},
		),
		AuditDroppedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "audit_events_dropped_total",
				Help:      "Audit events dropped before delivery",
			},
		),
		AuditDeliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "audit_deliveries_total",
				Help:      "Audit event deliveries by sink",
			},
			[]string{"sink", "outcome"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"route", "method", "status"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),
	}

	registry.MustRegister(
		m.LifecycleOperations,
		m.AuditDroppedTotal,
		m.AuditDeliveries,
		m.RequestDuration,
		m.HTTPRequestsInFlight,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordOperation counts one lifecycle operation.
func (m *Metrics) RecordOperation(operation, provider, outcome string) {
	m.LifecycleOperations.WithLabelValues(operation, provider, outcome).Inc()
}

// AuditDropped implements audit.Observer.
func (m *Metrics) AuditDropped() {
	m.AuditDroppedTotal.Inc()
}

// AuditDelivered implements audit.Observer.
func (m *Metrics) AuditDelivered(sink string, err error) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
	}
	m.AuditDeliveries.WithLabelValues(sink, outcome).Inc()
}
