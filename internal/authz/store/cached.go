package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/vyrodovalexey/avauthz/internal/cache"
	"github.com/vyrodovalexey/avauthz/internal/observability"
)

// CachedStore serves FindByRole from a cache and invalidates the role entry
// on every write. Cache failures fall through to the wrapped store.
type CachedStore struct {
	next    Store
	cache   cache.Cache
	ttl     time.Duration
	logger  observability.Logger
	metrics *Metrics
}

var _ Store = (*CachedStore)(nil)

// CachedOption configures a CachedStore.
type CachedOption func(*CachedStore)

// WithCacheTTL sets the TTL of role entries. Zero uses the cache default.
func WithCacheTTL(ttl time.Duration) CachedOption {
	return func(s *CachedStore) {
		s.ttl = ttl
	}
}

// WithCacheLogger sets the logger.
func WithCacheLogger(logger observability.Logger) CachedOption {
	return func(s *CachedStore) {
		s.logger = logger
	}
}

// WithCacheMetrics sets the metrics.
func WithCacheMetrics(m *Metrics) CachedOption {
	return func(s *CachedStore) {
		s.metrics = m
	}
}

// NewCachedStore wraps next with c.
func NewCachedStore(next Store, c cache.Cache, opts ...CachedOption) *CachedStore {
	s := &CachedStore{
		next:   next,
		cache:  c,
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = NewMetrics("avauthz")
	}
	return s
}

// RoleKey is the cache key of a role's rules.
func RoleKey(role string) string {
	return cache.Key("perm", "role", role)
}

// FindByRole implements Store.
func (s *CachedStore) FindByRole(ctx context.Context, role string) ([]PermissionRule, error) {
	key := RoleKey(role)

	data, err := s.cache.Get(ctx, key)
	switch {
	case err == nil:
		var rules []PermissionRule
		if jerr := json.Unmarshal(data, &rules); jerr == nil {
			s.metrics.RecordCacheLookup("hit")
			return rules, nil
		}
		s.logger.Warn("discarding undecodable cached rules", observability.String("role", role))
		s.metrics.RecordCacheLookup("error")
	case errors.Is(err, cache.ErrCacheMiss), errors.Is(err, cache.ErrCacheDisabled):
		s.metrics.RecordCacheLookup("miss")
	default:
		s.logger.Warn("permission cache read failed",
			observability.String("role", role),
			observability.Error(err),
		)
		s.metrics.RecordCacheLookup("error")
	}

	rules, err := s.next.FindByRole(ctx, role)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(rules); err == nil {
		if err := s.cache.Set(ctx, key, data, s.ttl); err != nil && !errors.Is(err, cache.ErrCacheDisabled) {
			s.logger.Warn("permission cache write failed",
				observability.String("role", role),
				observability.Error(err),
			)
		}
	}
	return rules, nil
}

// Get implements Store. Single rules are not cached.
func (s *CachedStore) Get(ctx context.Context, id string) (PermissionRule, error) {
	return s.next.Get(ctx, id)
}

// Upsert implements Store.
func (s *CachedStore) Upsert(ctx context.Context, rule PermissionRule) (PermissionRule, bool, error) {
	saved, created, err := s.next.Upsert(ctx, rule)
	if err != nil {
		return saved, created, err
	}
	s.invalidate(ctx, saved.Role)
	return saved, created, nil
}

// Delete implements Store.
func (s *CachedStore) Delete(ctx context.Context, id string) (PermissionRule, error) {
	deleted, err := s.next.Delete(ctx, id)
	if err != nil {
		return deleted, err
	}
	s.invalidate(ctx, deleted.Role)
	return deleted, nil
}

// Invalidate drops the cached rules of role.
func (s *CachedStore) Invalidate(ctx context.Context, role string) {
	s.invalidate(ctx, role)
}

func (s *CachedStore) invalidate(ctx context.Context, role string) {
	if err := s.cache.Delete(ctx, RoleKey(role)); err != nil && !errors.Is(err, cache.ErrCacheDisabled) {
		s.logger.Warn("permission cache invalidation failed",
			observability.String("role", role),
			observability.Error(err),
		)
	}
}
