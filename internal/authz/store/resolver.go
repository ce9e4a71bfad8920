package store

import (
	"context"

	"github.com/vyrodovalexey/avauthz/internal/authz/rbac"
	"github.com/vyrodovalexey/avauthz/internal/observability"
)

// Resolver turns a role's stored rules into an effective permission set.
type Resolver struct {
	store   Store
	logger  observability.Logger
	metrics *Metrics
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithResolverLogger sets the logger.
func WithResolverLogger(logger observability.Logger) ResolverOption {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// WithResolverMetrics sets the metrics.
func WithResolverMetrics(m *Metrics) ResolverOption {
	return func(r *Resolver) {
		r.metrics = m
	}
}

// NewResolver creates a resolver over s.
func NewResolver(s Store, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		store:  s,
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.metrics == nil {
		r.metrics = NewMetrics("avauthz")
	}
	return r
}

// Resolve returns the permission set of role. A role without rules yields an
// empty set, which leaves the decision to the engine's role defaults.
func (r *Resolver) Resolve(ctx context.Context, role string) (rbac.PermissionSet, error) {
	if role == "" {
		r.metrics.RecordResolution("empty")
		return rbac.PermissionSet{}, nil
	}

	rules, err := r.store.FindByRole(ctx, role)
	if err != nil {
		r.metrics.RecordResolution("error")
		r.logger.WithContext(ctx).Warn("permission resolution failed",
			observability.String("role", role),
			observability.Error(err),
		)
		return rbac.PermissionSet{}, err
	}

	set := PermissionSet(rules)
	if set.IsEmpty() {
		r.metrics.RecordResolution("empty")
	} else {
		r.metrics.RecordResolution("resolved")
	}
	return set, nil
}
