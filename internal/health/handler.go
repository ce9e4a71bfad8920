package health

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/avauthz/internal/observability"
)

// DefaultReadinessTimeout bounds a readiness check run.
const DefaultReadinessTimeout = 5 * time.Second

// Overall statuses.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusError    = "error"
	StatusDraining = "draining"
)

// Status is the readiness response body.
type Status struct {
	Status    string                  `json:"status"`
	Version   string                  `json:"version,omitempty"`
	Uptime    string                  `json:"uptime,omitempty"`
	Timestamp time.Time               `json:"timestamp"`
	Checks    map[string]*CheckResult `json:"checks,omitempty"`
}

// CheckResult is the outcome of one check.
type CheckResult struct {
	Status   string `json:"status"`
	Critical bool   `json:"critical"`
	Error    string `json:"error,omitempty"`
	Duration string `json:"duration,omitempty"`
}

// Handler serves the liveness and readiness endpoints.
type Handler struct {
	version   string
	startTime time.Time
	timeout   time.Duration
	logger    observability.Logger
	metrics   *Metrics

	mu       sync.RWMutex
	checks   []*Check
	draining atomic.Bool
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithTimeout sets the readiness check timeout.
func WithTimeout(d time.Duration) HandlerOption {
	return func(h *Handler) {
		h.timeout = d
	}
}

// WithMetrics sets the metrics.
func WithMetrics(m *Metrics) HandlerOption {
	return func(h *Handler) {
		h.metrics = m
	}
}

// NewHandler creates a health handler.
func NewHandler(version string, logger observability.Logger, opts ...HandlerOption) *Handler {
	if logger == nil {
		logger = observability.NopLogger()
	}
	h := &Handler{
		version:   version,
		startTime: time.Now(),
		timeout:   DefaultReadinessTimeout,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.metrics == nil {
		h.metrics = NewMetrics("avauthz")
	}
	return h
}

// AddCheck registers a check.
func (h *Handler) AddCheck(c *Check) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, c)
}

// Drain makes readiness fail from now on.
func (h *Handler) Drain() {
	h.draining.Store(true)
}

// Liveness answers 200 while the process runs.
func (h *Handler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    StatusOK,
		"timestamp": time.Now().UTC(),
	})
}

// Readiness runs every check and answers 503 when a critical check fails
// or the service is draining.
func (h *Handler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	status := h.Run(ctx)

	code := http.StatusOK
	if status.Status == StatusError || status.Status == StatusDraining {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}

// RegisterRoutes registers /healthz and /readyz.
func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/healthz", h.Liveness)
	r.GET("/readyz", h.Readiness)
}

// Run executes all checks concurrently.
func (h *Handler) Run(ctx context.Context) *Status {
	h.mu.RLock()
	checks := append([]*Check(nil), h.checks...)
	h.mu.RUnlock()

	status := &Status{
		Status:    StatusOK,
		Version:   h.version,
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Timestamp: time.Now().UTC(),
		Checks:    make(map[string]*CheckResult, len(checks)),
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, check := range checks {
		wg.Add(1)
		go func(c *Check) {
			defer wg.Done()

			start := time.Now()
			err := c.Run(ctx)
			duration := time.Since(start)
			h.metrics.record(c.Name(), err == nil)

			result := &CheckResult{
				Status:   StatusOK,
				Critical: c.IsCritical(),
				Duration: duration.String(),
			}
			if err != nil {
				result.Status = StatusError
				result.Error = err.Error()
				h.logger.Warn("health check failed",
					observability.String("check", c.Name()),
					observability.Bool("critical", c.IsCritical()),
					observability.Duration("duration", duration),
					observability.Error(err),
				)
			}

			mu.Lock()
			defer mu.Unlock()
			status.Checks[c.Name()] = result
			switch {
			case err == nil:
			case c.IsCritical():
				status.Status = StatusError
			case status.Status == StatusOK:
				status.Status = StatusDegraded
			}
		}(check)
	}
	wg.Wait()

	if h.draining.Load() {
		status.Status = StatusDraining
	}
	return status
}
