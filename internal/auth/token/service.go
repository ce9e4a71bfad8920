package token

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/vyrodovalexey/avauthz/internal/auth/keys"
	"github.com/vyrodovalexey/avauthz/internal/authz/rbac"
	"github.com/vyrodovalexey/avauthz/internal/observability"
)

const tracerName = "github.com/vyrodovalexey/avauthz/internal/auth/token"

// tokenIDBytes is the size of the random jti, 128 bits.
const tokenIDBytes = 16

// Config holds service-level token settings.
type Config struct {
	// Issuer is attached to issued tokens and, when set, required on verify.
	Issuer string `yaml:"issuer" json:"issuer"`

	// Audience is attached to issued tokens and, when set, required on verify.
	Audience string `yaml:"audience" json:"audience"`

	// DefaultExpiresIn replaces DefaultExpiresIn when the caller gives none.
	DefaultExpiresIn string `yaml:"defaultExpiresIn" json:"defaultExpiresIn"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DefaultExpiresIn == "" {
		return nil
	}
	d, err := ParseDuration(c.DefaultExpiresIn)
	if err != nil {
		return fmt.Errorf("defaultExpiresIn: %w", err)
	}
	if d <= 0 {
		return fmt.Errorf("defaultExpiresIn: %w: must be positive", ErrInvalidDuration)
	}
	return nil
}

// IssueOptions tune a single Issue or Refresh call.
type IssueOptions struct {
	// ExpiresIn uses the <digits>[s|m|h|d] grammar. Empty means the default.
	ExpiresIn string `json:"expiresIn,omitempty"`

	// NotBefore delays validity by a duration of the same grammar.
	NotBefore string `json:"notBefore,omitempty"`

	Issuer   string   `json:"issuer,omitempty"`
	Audience []string `json:"audience,omitempty"`
	Subject  string   `json:"subject,omitempty"`
}

// Issued is the result of Issue and Refresh.
type Issued struct {
	Token     string    `json:"token"`
	Payload   *Payload  `json:"payload"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// VerificationResult is the outcome of Verify. ErrorKind is empty when Valid.
type VerificationResult struct {
	Valid     bool      `json:"valid"`
	Payload   *Payload  `json:"payload,omitempty"`
	ErrorKind ErrorKind `json:"errorKind,omitempty"`
}

// Service issues and checks signed tokens.
type Service interface {
	// Issue signs a new token for claims.
	Issue(ctx context.Context, claims Claims, opts IssueOptions) (*Issued, error)

	// Verify checks signature and validity window of token.
	Verify(ctx context.Context, token string) VerificationResult

	// Parse decodes token without verifying it. The result must not be
	// used for authorization.
	Parse(token string) (*Payload, bool)

	// Refresh reissues a valid token with a fresh id and validity window.
	Refresh(ctx context.Context, token string, opts IssueOptions) (*Issued, error)
}

type service struct {
	cfg     Config
	keys    keys.Provider
	now     func() time.Time
	logger  observability.Logger
	metrics *Metrics
}

var _ Service = (*service)(nil)

// ServiceOption is a functional option for the service.
type ServiceOption func(*service)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *service) {
		s.now = now
	}
}

// WithLogger sets the logger for the service.
func WithLogger(logger observability.Logger) ServiceOption {
	return func(s *service) {
		s.logger = logger
	}
}

// WithMetrics sets the metrics for the service.
func WithMetrics(metrics *Metrics) ServiceOption {
	return func(s *service) {
		s.metrics = metrics
	}
}

// NewService creates a token Service that signs with the active key of
// provider.
func NewService(cfg Config, provider keys.Provider, opts ...ServiceOption) (Service, error) {
	if provider == nil {
		return nil, errors.New("key provider is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &service{
		cfg:    cfg,
		keys:   provider,
		now:    time.Now,
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = NewMetrics("avauthz")
	}
	return s, nil
}

// Issue signs a new token for claims.
func (s *service) Issue(ctx context.Context, claims Claims, opts IssueOptions) (*Issued, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "token.Issue")
	defer span.End()

	issued, err := s.issue(ctx, claims, opts, time.Time{})
	s.record("issue", err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("token.jti", issued.Payload.ID))
	return issued, nil
}

// issue signs claims. When notAfter is set the new expiry is pushed past it.
func (s *service) issue(ctx context.Context, claims Claims, opts IssueOptions, notAfter time.Time) (*Issued, error) {
	if strings.TrimSpace(claims.SubjectID) == "" {
		return nil, fmt.Errorf("%w: subjectId", ErrMissingClaim)
	}
	if strings.TrimSpace(claims.Role) == "" {
		return nil, fmt.Errorf("%w: role", ErrMissingClaim)
	}

	ttl, err := ParseDuration(firstNonEmpty(opts.ExpiresIn, s.cfg.DefaultExpiresIn, DefaultExpiresIn))
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("%w: expiresIn must be positive", ErrInvalidDuration)
	}

	now := s.now().Truncate(time.Second)
	payload := &Payload{Claims: cloneClaims(claims)}
	payload.IssuedAt = jwt.NewNumericDate(now)
	exp := now.Add(ttl)
	if !notAfter.IsZero() && !exp.After(notAfter) {
		exp = notAfter.Truncate(time.Second).Add(time.Second)
	}
	payload.ExpiresAt = jwt.NewNumericDate(exp)

	if opts.NotBefore != "" {
		delay, err := ParseDuration(opts.NotBefore)
		if err != nil {
			return nil, fmt.Errorf("notBefore: %w", err)
		}
		payload.NotBefore = jwt.NewNumericDate(now.Add(delay))
	}

	payload.Issuer = firstNonEmpty(opts.Issuer, s.cfg.Issuer)
	payload.Subject = opts.Subject
	switch {
	case len(opts.Audience) > 0:
		payload.Audience = jwt.ClaimStrings(slices.Clone(opts.Audience))
	case s.cfg.Audience != "":
		payload.Audience = jwt.ClaimStrings{s.cfg.Audience}
	}

	payload.ID, err = newTokenID()
	if err != nil {
		return nil, err
	}

	pair, err := s.keys.Active(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSigningFailed, err)
	}
	method := pair.SigningMethod()
	if method == nil {
		return nil, fmt.Errorf("%w: unknown algorithm %s", ErrSigningFailed, pair.Algorithm)
	}

	start := time.Now()
	tok := jwt.NewWithClaims(method, payload)
	tok.Header["kid"] = pair.KeyID
	signed, err := tok.SignedString(pair.SigningKey)
	s.metrics.RecordSigning(pair.Algorithm, time.Since(start))
	if err != nil {
		s.logger.Error("failed to sign token",
			observability.String("kid", pair.KeyID),
			observability.Error(err),
		)
		return nil, fmt.Errorf("%w: %w", ErrSigningFailed, err)
	}

	s.logger.Debug("token issued",
		observability.String("jti", payload.ID),
		observability.String("subject_id", payload.SubjectID),
		observability.String("role", payload.Role),
		observability.Time("expires_at", payload.ExpiresAtTime()),
	)

	return &Issued{Token: signed, Payload: payload, ExpiresAt: payload.ExpiresAtTime()}, nil
}

// Verify checks the token and classifies any failure.
func (s *service) Verify(ctx context.Context, token string) VerificationResult {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "token.Verify")
	defer span.End()

	result := s.verify(ctx, token)
	if result.Valid {
		s.metrics.RecordOperation("verify", "success")
		return result
	}
	s.metrics.RecordOperation("verify", string(result.ErrorKind))
	span.SetAttributes(attribute.String("token.error_kind", string(result.ErrorKind)))
	return result
}

func (s *service) verify(ctx context.Context, token string) VerificationResult {
	pair, err := s.keys.Active(ctx)
	if err != nil {
		s.logger.Warn("verification key unavailable", observability.Error(err))
		return failed(KindInvalidToken)
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{pair.Algorithm}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	}
	if s.cfg.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(s.cfg.Issuer))
	}
	if s.cfg.Audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(s.cfg.Audience))
	}

	payload := &Payload{}
	_, err = jwt.NewParser(parserOpts...).ParseWithClaims(token, payload, func(t *jwt.Token) (interface{}, error) {
		if kid, ok := t.Header["kid"].(string); ok && kid != pair.KeyID {
			return nil, fmt.Errorf("unknown key id %q", kid)
		}
		return pair.VerificationKey, nil
	})
	if err != nil {
		kind := classify(err)
		s.logger.Debug("token verification failed",
			observability.String("kind", string(kind)),
			observability.Error(err),
		)
		return failed(kind)
	}

	now := s.now()
	if exp := payload.ExpiresAtTime(); exp.Before(now) {
		return failed(KindTokenExpired)
	}
	if nbf := payload.NotBeforeTime(); !nbf.IsZero() && nbf.After(now) {
		return failed(KindTokenNotYetValid)
	}

	return VerificationResult{Valid: true, Payload: payload}
}

// Parse decodes the token without checking its signature.
func (s *service) Parse(token string) (*Payload, bool) {
	payload := &Payload{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, payload); err != nil {
		return nil, false
	}
	return payload, true
}

// Refresh verifies token and reissues its claims under a new id and window.
// Without opts.ExpiresIn the old lifetime is reused. The new expiry is always
// later than the old one. Issuer, audience and subject carry over unless opts
// overrides them.
func (s *service) Refresh(ctx context.Context, token string, opts IssueOptions) (*Issued, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "token.Refresh")
	defer span.End()

	result := s.Verify(ctx, token)
	if !result.Valid {
		err := &ValidationError{
			Kind:    result.ErrorKind,
			Message: "refresh rejected",
			Cause:   ErrCannotRefreshInvalidToken,
		}
		s.record("refresh", err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	old := result.Payload
	if opts.ExpiresIn == "" {
		opts.ExpiresIn = lifetime(old)
	}
	if opts.Issuer == "" {
		opts.Issuer = old.Issuer
	}
	if len(opts.Audience) == 0 {
		opts.Audience = old.Audience
	}
	if opts.Subject == "" {
		opts.Subject = old.Subject
	}

	issued, err := s.issue(ctx, old.Claims, opts, old.ExpiresAtTime())
	s.record("refresh", err)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return issued, nil
}

func (s *service) record(operation string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	s.metrics.RecordOperation(operation, result)
}

// classify maps golang-jwt errors onto the closed ErrorKind set.
func classify(err error) ErrorKind {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return KindMalformedToken
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return KindInvalidSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return KindTokenExpired
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return KindTokenNotYetValid
	default:
		return KindInvalidToken
	}
}

func failed(kind ErrorKind) VerificationResult {
	return VerificationResult{ErrorKind: kind}
}

func newTokenID() (string, error) {
	b := make([]byte, tokenIDBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token id: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// cloneClaims copies c and resolves its permission sets so that no allow
// entry is matched by a deny pattern. Claims without sets keep none.
func cloneClaims(c Claims) Claims {
	c.Extra = maps.Clone(c.Extra)
	if len(c.Permissions) == 0 && len(c.DenyPermissions) == 0 {
		c.Permissions, c.DenyPermissions = nil, nil
		return c
	}
	set := rbac.NewPermissionSet(c.Permissions, c.DenyPermissions)
	c.Permissions = nilIfEmpty(set.Allow)
	c.DenyPermissions = nilIfEmpty(set.Deny)
	return c
}

func nilIfEmpty(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	return s
}

// lifetime returns the exp - iat window of p in the duration grammar, or ""
// when p lacks either claim.
func lifetime(p *Payload) string {
	iat, exp := p.IssuedAtTime(), p.ExpiresAtTime()
	if iat.IsZero() || !exp.After(iat) {
		return ""
	}
	return fmt.Sprintf("%ds", int64(exp.Sub(iat)/time.Second))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
