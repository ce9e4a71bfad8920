package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vyrodovalexey/avauthz/internal/audit"
	"github.com/vyrodovalexey/avauthz/internal/auth/keys"
	"github.com/vyrodovalexey/avauthz/internal/auth/token"
	"github.com/vyrodovalexey/avauthz/internal/authz/rbac"
	"github.com/vyrodovalexey/avauthz/internal/authz/store"
	"github.com/vyrodovalexey/avauthz/internal/health"
	"github.com/vyrodovalexey/avauthz/internal/middleware"
	"github.com/vyrodovalexey/avauthz/internal/observability"
)

// AuditLog appends and reads audit events. *audit.Pipeline implements it.
type AuditLog interface {
	Log(ctx context.Context, event audit.Event)
	Query(ctx context.Context, f audit.Filter) ([]audit.Event, int, error)
}

// RoleResolver supplies the stored permissions of a role.
type RoleResolver interface {
	Resolve(ctx context.Context, role string) (rbac.PermissionSet, error)
}

// Services are the components behind the HTTP API. Tokens, Engine, Guard
// and Keys are required.
type Services struct {
	Tokens   token.Service
	Engine   rbac.Engine
	Guard    *middleware.Guard
	Keys     keys.Provider
	Admin    *store.Admin
	Resolver RoleResolver
	Audit    AuditLog
	Health   *health.Handler

	// RefreshLimiter throttles the public refresh endpoint.
	RefreshLimiter *middleware.RateLimiter

	// JWKSEnvironments are published next to the active key.
	JWKSEnvironments []keys.Environment

	// Gatherer backs /metrics.
	Gatherer prometheus.Gatherer

	Logger observability.Logger
}

type handlers struct {
	Services
}

// NewRouter builds the gin engine serving every endpoint.
func NewRouter(s Services) *gin.Engine {
	if s.Logger == nil {
		s.Logger = observability.NopLogger()
	}
	h := &handlers{Services: s}

	r := newEngine()
	r.HandleMethodNotAllowed = true
	r.NoRoute(func(c *gin.Context) { abortWithError(c, http.StatusNotFound, "not found") })
	r.NoMethod(func(c *gin.Context) { abortWithError(c, http.StatusMethodNotAllowed, "method not allowed") })

	if s.Health != nil {
		s.Health.RegisterRoutes(r)
	}
	if s.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{})))
	}
	r.GET("/.well-known/jwks.json", h.jwks)

	refresh := []gin.HandlerFunc{h.refreshToken}
	if s.RefreshLimiter != nil {
		refresh = append([]gin.HandlerFunc{s.RefreshLimiter.Gin()}, refresh...)
	}
	r.POST("/v1/tokens/refresh", refresh...)

	v1 := r.Group("/v1", s.Guard.Gin())
	v1.POST("/tokens", h.issueToken)
	v1.POST("/tokens/verify", h.verifyToken)
	v1.POST("/decisions", h.decide)

	if s.Admin != nil {
		v1.GET("/permissions/:role", h.listPermissions)
		v1.PUT("/permissions", h.upsertPermission)
		v1.DELETE("/permissions/:id", h.deletePermission)
	}
	if s.Audit != nil {
		v1.GET("/audit/events", h.queryAudit)
	}

	return r
}

func abortWithError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}

// actor identifies the caller verified by the guard.
func actor(c *gin.Context) store.Actor {
	p, ok := middleware.PayloadFromContext(c.Request.Context())
	if !ok {
		return store.Actor{}
	}
	return store.Actor{SubjectID: p.SubjectID, Role: p.Role}
}
