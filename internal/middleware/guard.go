package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/avauthz/internal/audit"
	"github.com/vyrodovalexey/avauthz/internal/auth/token"
	"github.com/vyrodovalexey/avauthz/internal/authz/rbac"
	"github.com/vyrodovalexey/avauthz/internal/observability"
)

const tracerName = "github.com/vyrodovalexey/avauthz/internal/middleware"

// Guard results reported in metrics and audit events.
const (
	resultGranted         = "granted"
	resultDenied          = "denied"
	resultUnauthenticated = "unauthenticated"
	kindMissingToken      = "MissingToken"
)

// DefaultSkipPaths are never guarded.
var DefaultSkipPaths = []string{
	"/healthz",
	"/readyz",
	"/metrics",
	"/.well-known/jwks.json",
}

// Auditor receives audit events. *audit.Pipeline implements it.
type Auditor interface {
	Log(ctx context.Context, event audit.Event)
}

// RoleResolver supplies the stored permissions of a role.
// *store.Resolver implements it.
type RoleResolver interface {
	Resolve(ctx context.Context, role string) (rbac.PermissionSet, error)
}

type payloadKey struct{}

// ContextWithPayload returns a copy of ctx carrying a verified payload.
func ContextWithPayload(ctx context.Context, p *token.Payload) context.Context {
	return context.WithValue(ctx, payloadKey{}, p)
}

// PayloadFromContext returns the payload verified by the Guard.
func PayloadFromContext(ctx context.Context) (*token.Payload, bool) {
	p, ok := ctx.Value(payloadKey{}).(*token.Payload)
	return p, ok && p != nil
}

// Guard verifies the bearer token of a request and enforces the policy
// engine's decision for its METHOD:PATH.
type Guard struct {
	tokens   token.Service
	engine   rbac.Engine
	resolver RoleResolver
	auditor  Auditor
	logger   observability.Logger
	metrics  *Metrics
	cookie   string
	skip     []string
	clientIP *ClientIPExtractor
}

// GuardOption is a functional option for the guard.
type GuardOption func(*Guard)

// WithResolver sets the source of role permissions for tokens that carry
// no permission sets.
func WithResolver(r RoleResolver) GuardOption {
	return func(g *Guard) {
		g.resolver = r
	}
}

// WithAuditor sets the audit destination.
func WithAuditor(a Auditor) GuardOption {
	return func(g *Guard) {
		g.auditor = a
	}
}

// WithGuardLogger sets the logger.
func WithGuardLogger(logger observability.Logger) GuardOption {
	return func(g *Guard) {
		g.logger = logger
	}
}

// WithGuardMetrics sets the metrics.
func WithGuardMetrics(m *Metrics) GuardOption {
	return func(g *Guard) {
		g.metrics = m
	}
}

// WithTokenCookie reads the token from the named cookie when the request
// has no Authorization header.
func WithTokenCookie(name string) GuardOption {
	return func(g *Guard) {
		g.cookie = name
	}
}

// WithSkipPaths adds unguarded paths. An entry ending in "*" matches by
// prefix; any other entry matches exactly.
func WithSkipPaths(paths ...string) GuardOption {
	return func(g *Guard) {
		g.skip = append(g.skip, paths...)
	}
}

// WithGuardClientIPExtractor sets the extractor used for audit records.
func WithGuardClientIPExtractor(e *ClientIPExtractor) GuardOption {
	return func(g *Guard) {
		g.clientIP = e
	}
}

// NewGuard creates a Guard.
func NewGuard(tokens token.Service, engine rbac.Engine, opts ...GuardOption) *Guard {
	g := &Guard{
		tokens: tokens,
		engine: engine,
		logger: observability.NopLogger(),
		skip:   append([]string(nil), DefaultSkipPaths...),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.metrics == nil {
		g.metrics = NewMetrics("avauthz")
	}
	if g.clientIP == nil {
		g.clientIP = globalExtractor
	}
	return g
}

// Handler returns next wrapped by the guard.
func (g *Guard) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.skipped(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		ctx, ok := g.authorize(w, r)
		if !ok {
			return
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Gin returns the guard as gin middleware. Rejected requests are aborted.
func (g *Guard) Gin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if g.skipped(c.Request.URL.Path) {
			c.Next()
			return
		}
		ctx, ok := g.authorize(c.Writer, c.Request)
		if !ok {
			c.Abort()
			return
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func (g *Guard) skipped(path string) bool {
	for _, p := range g.skip {
		if prefix, ok := strings.CutSuffix(p, "*"); ok {
			if strings.HasPrefix(path, prefix) {
				return true
			}
			continue
		}
		if path == p {
			return true
		}
	}
	return false
}

// authorize writes the 401 or 403 response itself and reports false when
// the request must not continue.
func (g *Guard) authorize(w http.ResponseWriter, r *http.Request) (context.Context, bool) {
	method, path := r.Method, r.URL.Path
	action := rbac.Action(method, path)

	ctx, span := otel.Tracer(tracerName).Start(r.Context(), "guard.Authorize",
		trace.WithAttributes(attribute.String("authz.action", action)))
	defer span.End()

	logger := g.logger.WithContext(ctx)

	raw := g.extractToken(r)
	if raw == "" {
		g.reject(ctx, r, action, kindMissingToken, "")
		span.SetAttributes(attribute.String("authz.result", resultUnauthenticated))
		writeUnauthorized(w, map[string]string{"error": msgMissingToken})
		return ctx, false
	}

	result := g.tokens.Verify(ctx, raw)
	if !result.Valid {
		g.reject(ctx, r, action, string(result.ErrorKind), raw)
		span.SetAttributes(attribute.String("authz.result", resultUnauthenticated))
		writeUnauthorized(w, map[string]string{
			"error": result.ErrorKind.Err().Error(),
			"kind":  string(result.ErrorKind),
		})
		return ctx, false
	}

	payload := result.Payload
	subject := g.subject(ctx, payload)
	decision := g.engine.Explain(subject, method, path)

	span.SetAttributes(
		attribute.String("authz.subject", subject.ID),
		attribute.Bool("authz.allowed", decision.Allowed),
		attribute.String("authz.policy", decision.Policy),
	)

	event := audit.NewEvent(audit.EventAccessGranted, audit.SeverityLow, "access granted")
	outcome := resultGranted
	if !decision.Allowed {
		event = audit.NewEvent(audit.EventAccessDenied, audit.SeverityHigh, "access denied").
			With("reason", decision.Reason)
		outcome = resultDenied
	}
	g.metrics.decisionsTotal.WithLabelValues(outcome, decision.Policy).Inc()
	g.audit(ctx, event.
		WithSubject(subject.ID, subject.Role).
		WithAction(action, path, outcome).
		With("policy", decision.Policy).
		With("clientIp", g.clientIP.Extract(r)).
		WithTags("authz"))

	if !decision.Allowed {
		logger.Info("access denied",
			observability.String("subject", subject.ID),
			observability.String("role", subject.Role),
			observability.String("action", action),
			observability.String("reason", decision.Reason),
			observability.String("policy", decision.Policy),
		)
		writeJSON(w, http.StatusForbidden, map[string]string{
			"error":  msgAccessDenied,
			"reason": decision.Reason,
		})
		return ctx, false
	}

	logger.Debug("access granted",
		observability.String("subject", subject.ID),
		observability.String("action", action),
		observability.String("policy", decision.Policy),
	)

	ctx = ContextWithPayload(ctx, payload)
	ctx = observability.ContextWithSubjectID(ctx, subject.ID)
	return ctx, true
}

// subject builds the policy subject of a verified token. Tokens without
// their own permission sets take the stored rules of their role; when the
// store fails the role defaults apply.
func (g *Guard) subject(ctx context.Context, p *token.Payload) *rbac.Subject {
	s := &rbac.Subject{
		ID:    p.SubjectID,
		Role:  p.Role,
		Allow: p.Permissions,
		Deny:  p.DenyPermissions,
	}
	if s.HasExplicitPermissions() || g.resolver == nil || s.Role == "" {
		return s
	}

	set, err := g.resolver.Resolve(ctx, s.Role)
	if err != nil {
		return s
	}
	s.Allow, s.Deny = set.Allow, set.Deny
	return s
}

func (g *Guard) reject(ctx context.Context, r *http.Request, action, kind, raw string) {
	g.metrics.decisionsTotal.WithLabelValues(resultUnauthenticated, "").Inc()
	g.metrics.tokenFailuresTotal.WithLabelValues(kind).Inc()

	g.logger.WithContext(ctx).Debug("token rejected",
		observability.String("action", action),
		observability.String("kind", kind),
	)

	event := audit.NewEvent(audit.EventTokenVerificationFailed, audit.SeverityMedium, "token verification failed").
		WithAction(action, r.URL.Path, resultUnauthenticated).
		With("kind", kind).
		With("clientIp", g.clientIP.Extract(r)).
		WithTags("authz")
	if raw != "" {
		if claimed, ok := g.tokens.Parse(raw); ok {
			event = event.With("claimedSubject", claimed.SubjectID)
		}
	}
	g.audit(ctx, event)
}

func (g *Guard) audit(ctx context.Context, event audit.Event) {
	if g.auditor != nil {
		g.auditor.Log(ctx, event)
	}
}

// extractToken reads a bearer token, falling back to the token cookie.
func (g *Guard) extractToken(r *http.Request) string {
	if h := r.Header.Get(HeaderAuthorization); h != "" {
		if len(h) > len(bearerPrefix) && strings.EqualFold(h[:len(bearerPrefix)], bearerPrefix) {
			return strings.TrimSpace(h[len(bearerPrefix):])
		}
		return ""
	}
	if g.cookie != "" {
		if c, err := r.Cookie(g.cookie); err == nil {
			return c.Value
		}
	}
	return ""
}

func writeUnauthorized(w http.ResponseWriter, body map[string]string) {
	w.Header().Set(HeaderWWWAuthenticate, `Bearer realm="avauthz"`)
	writeJSON(w, http.StatusUnauthorized, body)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set(HeaderContentType, ContentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
