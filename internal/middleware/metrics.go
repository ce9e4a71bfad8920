package middleware

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for the middleware chain.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	decisionsTotal     *prometheus.CounterVec
	tokenFailuresTotal *prometheus.CounterVec

	rateLimitRejected prometheus.Counter
	panicsRecovered   prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics creates middleware metrics on a private registry.
func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"method"},
		),
		decisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "guard",
				Name:      "decisions_total",
				Help:      "Total number of guard outcomes",
			},
			[]string{"result", "policy"},
		),
		tokenFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "guard",
				Name:      "token_failures_total",
				Help:      "Total number of rejected tokens by kind",
			},
			[]string{"kind"},
		),
		rateLimitRejected: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "middleware",
				Name:      "rate_limit_rejected_total",
				Help:      "Total number of requests rejected by rate limiter",
			},
		),
		panicsRecovered: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "middleware",
				Name:      "panics_recovered_total",
				Help:      "Total number of panics recovered",
			},
		),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(m.collectors()...)
	return m
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.requestsTotal,
		m.requestDuration,
		m.decisionsTotal,
		m.tokenFailuresTotal,
		m.rateLimitRejected,
		m.panicsRecovered,
	}
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// MustRegister registers the collectors with registerer.
func (m *Metrics) MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(m.collectors()...)
}

// Option configures the stateless middleware constructors.
type Option func(*options)

type options struct {
	metrics   *Metrics
	extractor *ClientIPExtractor
}

// WithMetrics sets the metrics recorded by a middleware.
func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithClientIPExtractor overrides the package-level client IP extractor.
func WithClientIPExtractor(e *ClientIPExtractor) Option {
	return func(o *options) {
		o.extractor = e
	}
}

func newOptions(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.metrics == nil {
		o.metrics = NewMetrics("avauthz")
	}
	if o.extractor == nil {
		o.extractor = globalExtractor
	}
	return o
}
