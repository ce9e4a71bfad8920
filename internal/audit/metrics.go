package audit

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains audit pipeline metrics.
type Metrics struct {
	eventsTotal   *prometheus.CounterVec
	droppedTotal  *prometheus.CounterVec
	flushesTotal  *prometheus.CounterVec
	flushDuration prometheus.Histogram
	bufferSize    prometheus.Gauge
	registry      *prometheus.Registry
}

// NewMetrics creates a new Metrics instance on its own registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "avauthz"
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "events_total",
			Help:      "Total number of audit events accepted into the buffer",
		},
		[]string{"type", "severity"},
	)

	m.droppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "events_dropped_total",
			Help:      "Total number of audit events dropped",
		},
		[]string{"reason"},
	)

	m.flushesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "flushes_total",
			Help:      "Total number of audit buffer flushes",
		},
		[]string{"result"},
	)

	m.flushDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "flush_duration_seconds",
			Help:      "Audit flush duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	m.bufferSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "buffer_size",
			Help:      "Number of audit events waiting to be flushed",
		},
	)

	m.registry.MustRegister(m.collectors()...)

	return m
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.eventsTotal, m.droppedTotal, m.flushesTotal, m.flushDuration, m.bufferSize}
}

// RecordEvent records an accepted event.
func (m *Metrics) RecordEvent(eventType EventType, severity Severity) {
	m.eventsTotal.WithLabelValues(string(eventType), severity.String()).Inc()
}

// RecordDropped records dropped events.
func (m *Metrics) RecordDropped(reason string, n int) {
	m.droppedTotal.WithLabelValues(reason).Add(float64(n))
}

// RecordFlush records a flush attempt.
func (m *Metrics) RecordFlush(result string, duration time.Duration) {
	m.flushesTotal.WithLabelValues(result).Inc()
	m.flushDuration.Observe(duration.Seconds())
}

// SetBufferSize sets the buffer gauge.
func (m *Metrics) SetBufferSize(n int) {
	m.bufferSize.Set(float64(n))
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// MustRegister registers the metrics with the given registerer.
func (m *Metrics) MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(m.collectors()...)
}
