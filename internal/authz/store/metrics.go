package store

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains permission store metrics.
type Metrics struct {
	cacheLookups       *prometheus.CounterVec
	breakerTransitions *prometheus.CounterVec
	resolutions        *prometheus.CounterVec
	registry           *prometheus.Registry
}

// NewMetrics creates store metrics on a private registry.
func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "permission_store",
				Name:      "cache_lookups_total",
				Help:      "Permission cache lookups by result",
			},
			[]string{"result"},
		),
		breakerTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "permission_store",
				Name:      "breaker_transitions_total",
				Help:      "Circuit breaker state transitions",
			},
			[]string{"name", "from", "to"},
		),
		resolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "permission_store",
				Name:      "resolutions_total",
				Help:      "Role permission resolutions by result",
			},
			[]string{"result"},
		),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(m.cacheLookups, m.breakerTransitions, m.resolutions)
	return m
}

// RecordCacheLookup records a cache hit, miss or error.
func (m *Metrics) RecordCacheLookup(result string) {
	m.cacheLookups.WithLabelValues(result).Inc()
}

// RecordBreakerTransition records a breaker state change.
func (m *Metrics) RecordBreakerTransition(name, from, to string) {
	m.breakerTransitions.WithLabelValues(name, from, to).Inc()
}

// RecordResolution records the outcome of a Resolve call.
func (m *Metrics) RecordResolution(result string) {
	m.resolutions.WithLabelValues(result).Inc()
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// MustRegister registers the collectors with registerer.
func (m *Metrics) MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(m.cacheLookups, m.breakerTransitions, m.resolutions)
}
