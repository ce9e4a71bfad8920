package token

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for token operations.
type Metrics struct {
	operationsTotal *prometheus.CounterVec
	signingDuration *prometheus.HistogramVec
	registry        *prometheus.Registry
}

// NewMetrics creates a new Metrics instance on its own registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "avauthz"
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.operationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "token",
			Name:      "operations_total",
			Help:      "Total number of token operations",
		},
		[]string{"operation", "result"},
	)

	m.signingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "token",
			Name:      "signing_duration_seconds",
			Help:      "Token signing duration in seconds",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1},
		},
		[]string{"algorithm"},
	)

	m.registry.MustRegister(m.operationsTotal, m.signingDuration)

	return m
}

// RecordOperation records the outcome of an operation. result is "success"
// or an ErrorKind.
func (m *Metrics) RecordOperation(operation, result string) {
	m.operationsTotal.WithLabelValues(operation, result).Inc()
}

// RecordSigning records a signing duration.
func (m *Metrics) RecordSigning(algorithm string, duration time.Duration) {
	m.signingDuration.WithLabelValues(algorithm).Observe(duration.Seconds())
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// MustRegister registers the metrics with the given registerer.
func (m *Metrics) MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(m.operationsTotal, m.signingDuration)
}
