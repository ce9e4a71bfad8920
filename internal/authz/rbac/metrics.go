package rbac

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for policy evaluation.
type Metrics struct {
	evaluationTotal    *prometheus.CounterVec
	evaluationDuration *prometheus.HistogramVec
	registry           *prometheus.Registry
}

// NewMetrics creates a new Metrics instance on its own registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "avauthz"
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.evaluationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rbac",
			Name:      "evaluations_total",
			Help:      "Total number of policy evaluations",
		},
		[]string{"result", "reason"},
	)

	m.evaluationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rbac",
			Name:      "evaluation_duration_seconds",
			Help:      "Policy evaluation duration in seconds",
			Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .005, .01},
		},
		[]string{"result"},
	)

	m.registry.MustRegister(m.evaluationTotal, m.evaluationDuration)

	return m
}

// RecordEvaluation records a policy evaluation.
func (m *Metrics) RecordEvaluation(result, reason string, duration time.Duration) {
	m.evaluationTotal.WithLabelValues(result, reason).Inc()
	m.evaluationDuration.WithLabelValues(result).Observe(duration.Seconds())
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// MustRegister registers the metrics with the given registerer.
func (m *Metrics) MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(m.evaluationTotal, m.evaluationDuration)
}
