package store

import (
	"context"
	"time"
)

// Store persists permission rules.
type Store interface {
	// FindByRole returns the rules of role ordered by method and pattern.
	FindByRole(ctx context.Context, role string) ([]PermissionRule, error)

	// Get returns the rule with id, or ErrNotFound.
	Get(ctx context.Context, id string) (PermissionRule, error)

	// Upsert creates the rule, or updates the access of the rule with the
	// same role, method and pattern. created reports which happened.
	Upsert(ctx context.Context, rule PermissionRule) (saved PermissionRule, created bool, err error)

	// Delete removes the rule with id and returns it, or ErrNotFound.
	Delete(ctx context.Context, id string) (PermissionRule, error)
}

type options struct {
	now func() time.Time
}

// Option configures MemoryStore and SQLStore.
type Option func(*options)

// WithClock overrides time.Now for rule timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func newOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
