package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/vyrodovalexey/avauthz/internal/observability"
)

// BreakerConfig configures the circuit breaker in front of a store.
type BreakerConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Threshold is the number of consecutive failures that opens the breaker.
	Threshold int `yaml:"threshold,omitempty" json:"threshold,omitempty"`

	// Timeout is how long the breaker stays open before probing again.
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	// HalfOpenRequests is the number of trial requests allowed while half-open.
	HalfOpenRequests int `yaml:"halfOpenRequests,omitempty" json:"halfOpenRequests,omitempty"`
}

// DefaultBreakerConfig returns the default breaker settings.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Enabled:          true,
		Threshold:        5,
		Timeout:          30 * time.Second,
		HalfOpenRequests: 1,
	}
}

// Validate validates the configuration.
func (c BreakerConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Threshold < 1 {
		return errors.New("breaker threshold must be at least 1")
	}
	if c.Timeout <= 0 {
		return errors.New("breaker timeout must be positive")
	}
	if c.HalfOpenRequests < 0 {
		return errors.New("breaker halfOpenRequests must be non-negative")
	}
	return nil
}

// BreakerStore fails fast with ErrUnavailable while the wrapped store keeps
// failing. Not-found, invalid and conflicting writes count as successes.
type BreakerStore struct {
	next    Store
	cb      *gobreaker.CircuitBreaker
	logger  observability.Logger
	metrics *Metrics
}

var _ Store = (*BreakerStore)(nil)

// BreakerOption configures a BreakerStore.
type BreakerOption func(*BreakerStore)

// WithBreakerLogger sets the logger.
func WithBreakerLogger(logger observability.Logger) BreakerOption {
	return func(s *BreakerStore) {
		s.logger = logger
	}
}

// WithBreakerMetrics sets the metrics.
func WithBreakerMetrics(m *Metrics) BreakerOption {
	return func(s *BreakerStore) {
		s.metrics = m
	}
}

// NewBreakerStore wraps next with a circuit breaker named name.
func NewBreakerStore(next Store, name string, cfg BreakerConfig, opts ...BreakerOption) *BreakerStore {
	s := &BreakerStore{
		next:   next,
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = NewMetrics("avauthz")
	}

	threshold := safeIntToUint32(cfg.Threshold)
	s.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: safeIntToUint32(cfg.HalfOpenRequests),
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: isBreakerSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			s.logger.Warn("permission store breaker state change",
				observability.String("name", name),
				observability.String("from", from.String()),
				observability.String("to", to.String()),
			)
			s.metrics.RecordBreakerTransition(name, from.String(), to.String())
		},
	})
	return s
}

// State returns the breaker state.
func (s *BreakerStore) State() gobreaker.State {
	return s.cb.State()
}

// isBreakerSuccess treats caller errors as healthy responses.
func isBreakerSuccess(err error) bool {
	return err == nil ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInvalidRule) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, context.Canceled)
}

func (s *BreakerStore) execute(op string, fn func() (any, error)) (any, error) {
	v, err := s.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, &StoreError{Op: op, Err: fmt.Errorf("%w: %w", ErrUnavailable, err)}
	}
	return v, err
}

// FindByRole implements Store.
func (s *BreakerStore) FindByRole(ctx context.Context, role string) ([]PermissionRule, error) {
	v, err := s.execute("find", func() (any, error) {
		return s.next.FindByRole(ctx, role)
	})
	if err != nil {
		return nil, err
	}
	return v.([]PermissionRule), nil
}

// Get implements Store.
func (s *BreakerStore) Get(ctx context.Context, id string) (PermissionRule, error) {
	v, err := s.execute("get", func() (any, error) {
		return s.next.Get(ctx, id)
	})
	if err != nil {
		return PermissionRule{}, err
	}
	return v.(PermissionRule), nil
}

type upsertResult struct {
	rule    PermissionRule
	created bool
}

// Upsert implements Store.
func (s *BreakerStore) Upsert(ctx context.Context, rule PermissionRule) (PermissionRule, bool, error) {
	v, err := s.execute("upsert", func() (any, error) {
		saved, created, err := s.next.Upsert(ctx, rule)
		return upsertResult{rule: saved, created: created}, err
	})
	if err != nil {
		return PermissionRule{}, false, err
	}
	res := v.(upsertResult)
	return res.rule, res.created, nil
}

// Delete implements Store.
func (s *BreakerStore) Delete(ctx context.Context, id string) (PermissionRule, error) {
	v, err := s.execute("delete", func() (any, error) {
		return s.next.Delete(ctx, id)
	})
	if err != nil {
		return PermissionRule{}, err
	}
	return v.(PermissionRule), nil
}

// safeIntToUint32 clamps n to the uint32 range.
func safeIntToUint32(n int) uint32 {
	if n < 0 {
		return 0
	}
	if n > int(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(n) //nolint:gosec // bounds checked above
}
