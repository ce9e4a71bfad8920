package middleware

import (
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/vyrodovalexey/avauthz/internal/config"
	"github.com/vyrodovalexey/avauthz/internal/observability"
)

// Rate limiter default configuration constants.
const (
	// DefaultClientTTL is the default TTL for client rate limiter entries.
	DefaultClientTTL = 10 * time.Minute

	// MinCleanupInterval is the minimum interval for cleanup operations.
	MinCleanupInterval = 10 * time.Second

	// MaxCleanupInterval is the maximum interval for cleanup operations.
	MaxCleanupInterval = time.Minute
)

// clientEntry holds a rate limiter and its last access time for TTL-based cleanup.
type clientEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter keeps one token bucket per client IP.
type RateLimiter struct {
	clients   map[string]*clientEntry
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	clientTTL time.Duration
	now       func() time.Time
	logger    observability.Logger
	metrics   *Metrics
	extractor *ClientIPExtractor
	stopCh    chan struct{}
	stopped   bool
}

// RateLimiterOption is a functional option for configuring the rate limiter.
type RateLimiterOption func(*RateLimiter)

// WithRateLimiterLogger sets the logger for the rate limiter.
func WithRateLimiterLogger(logger observability.Logger) RateLimiterOption {
	return func(rl *RateLimiter) {
		rl.logger = logger
	}
}

// WithRateLimiterMetrics sets the metrics for the rate limiter.
func WithRateLimiterMetrics(m *Metrics) RateLimiterOption {
	return func(rl *RateLimiter) {
		rl.metrics = m
	}
}

// WithRateLimiterExtractor sets the client IP extractor.
func WithRateLimiterExtractor(e *ClientIPExtractor) RateLimiterOption {
	return func(rl *RateLimiter) {
		rl.extractor = e
	}
}

// WithClientTTL sets how long an idle client's bucket is kept.
func WithClientTTL(ttl time.Duration) RateLimiterOption {
	return func(rl *RateLimiter) {
		rl.clientTTL = ttl
	}
}

// NewRateLimiter creates a per-client rate limiter.
func NewRateLimiter(rps float64, burst int, opts ...RateLimiterOption) *RateLimiter {
	rl := &RateLimiter{
		clients:   make(map[string]*clientEntry),
		limit:     rate.Limit(rps),
		burst:     burst,
		clientTTL: DefaultClientTTL,
		now:       time.Now,
		logger:    observability.NopLogger(),
		stopCh:    make(chan struct{}),
	}

	for _, opt := range opts {
		opt(rl)
	}
	if rl.metrics == nil {
		rl.metrics = NewMetrics("avauthz")
	}
	if rl.extractor == nil {
		rl.extractor = globalExtractor
	}

	return rl
}

// Allow reports whether clientIP may make another request now.
func (rl *RateLimiter) Allow(clientIP string) bool {
	now := rl.now()

	rl.mu.Lock()
	entry, exists := rl.clients[clientIP]
	if !exists {
		entry = &clientEntry{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[clientIP] = entry
	}
	entry.lastAccess = now
	limiter := entry.limiter
	rl.mu.Unlock()

	return limiter.AllowN(now, 1)
}

// Clients returns the number of tracked clients.
func (rl *RateLimiter) Clients() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

// Middleware returns an HTTP middleware answering 429 once a client's
// bucket is empty.
func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientIP := rl.extractor.Extract(r)

			if !rl.Allow(clientIP) {
				rl.metrics.rateLimitRejected.Inc()
				rl.logger.WithContext(r.Context()).Warn("rate limit exceeded",
					observability.String("client_ip", clientIP),
					observability.String("path", r.URL.Path),
				)

				w.Header().Set(HeaderContentType, ContentTypeJSON)
				w.Header().Set(HeaderRetryAfter, "1")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = io.WriteString(w, ErrRateLimitExceeded)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Gin returns the limiter as gin middleware for individual routes.
func (rl *RateLimiter) Gin() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := rl.extractor.Extract(c.Request)
		if rl.Allow(clientIP) {
			c.Next()
			return
		}

		rl.metrics.rateLimitRejected.Inc()
		rl.logger.WithContext(c.Request.Context()).Warn("rate limit exceeded",
			observability.String("client_ip", clientIP),
			observability.String("path", c.Request.URL.Path),
		)
		c.Header(HeaderRetryAfter, "1")
		c.Data(http.StatusTooManyRequests, ContentTypeJSON, []byte(ErrRateLimitExceeded))
		c.Abort()
	}
}

// RateLimitFromConfig creates the rate limit middleware from server config.
// The returned limiter is nil when rate limiting is disabled; otherwise the
// caller must Stop it during shutdown.
func RateLimitFromConfig(
	cfg config.RateLimitConfig,
	logger observability.Logger,
	opts ...RateLimiterOption,
) (func(http.Handler) http.Handler, *RateLimiter) {
	if !cfg.Enabled {
		return func(next http.Handler) http.Handler {
			return next
		}, nil
	}

	opts = append([]RateLimiterOption{WithRateLimiterLogger(logger)}, opts...)
	rl := NewRateLimiter(cfg.RequestsPerSecond, cfg.Burst, opts...)
	rl.StartAutoCleanup()

	return rl.Middleware(), rl
}

// CleanupOldClients removes limiters not used within maxAge.
func (rl *RateLimiter) CleanupOldClients(maxAge time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	removed := 0
	for clientIP, entry := range rl.clients {
		if now.Sub(entry.lastAccess) > maxAge {
			delete(rl.clients, clientIP)
			removed++
		}
	}

	if removed > 0 {
		rl.logger.Debug("cleaned up expired rate limiter entries",
			observability.Int("removed", removed),
			observability.Int("remaining", len(rl.clients)),
		)
	}
}

// StartAutoCleanup starts the TTL-based cleanup goroutine.
func (rl *RateLimiter) StartAutoCleanup() {
	rl.mu.Lock()
	if rl.stopped {
		rl.mu.Unlock()
		return
	}
	rl.mu.Unlock()

	interval := min(max(rl.clientTTL/2, MinCleanupInterval), MaxCleanupInterval)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				rl.CleanupOldClients(rl.clientTTL)
			case <-rl.stopCh:
				return
			}
		}
	}()
}

// Stop stops the cleanup goroutine.
func (rl *RateLimiter) Stop() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if !rl.stopped {
		rl.stopped = true
		close(rl.stopCh)
	}
}
