package health

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sony/gobreaker"

	"github.com/vyrodovalexey/avauthz/internal/auth/keys"
	"github.com/vyrodovalexey/avauthz/internal/cache"
)

// cacheCheckKey is looked up by CacheCheck. It never exists.
const cacheCheckKey = "health:check"

// Check is a named dependency check.
type Check struct {
	name     string
	checkFn  func(ctx context.Context) error
	critical bool
}

// CheckOption configures a Check.
type CheckOption func(*Check)

// WithCritical sets whether a failure makes the service unready.
// Checks are critical by default.
func WithCritical(critical bool) CheckOption {
	return func(c *Check) {
		c.critical = critical
	}
}

// NewCheck creates a check from fn.
func NewCheck(name string, fn func(ctx context.Context) error, opts ...CheckOption) *Check {
	c := &Check{name: name, checkFn: fn, critical: true}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the name of the check.
func (c *Check) Name() string {
	return c.name
}

// IsCritical reports whether a failure makes the service unready.
func (c *Check) IsCritical() bool {
	return c.critical
}

// Run performs the check.
func (c *Check) Run(ctx context.Context) error {
	return c.checkFn(ctx)
}

// SQLCheck pings db.
func SQLCheck(name string, db *sql.DB, opts ...CheckOption) *Check {
	return NewCheck(name, func(ctx context.Context) error {
		if db == nil {
			return errors.New("database connection is nil")
		}
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("database ping failed: %w", err)
		}
		return nil
	}, opts...)
}

// CacheCheck performs a lookup against c. A disabled cache is healthy.
func CacheCheck(name string, c cache.Cache, opts ...CheckOption) *Check {
	return NewCheck(name, func(ctx context.Context) error {
		if c == nil {
			return errors.New("cache is nil")
		}
		if _, err := c.Exists(ctx, cacheCheckKey); err != nil && !errors.Is(err, cache.ErrCacheDisabled) {
			return fmt.Errorf("cache lookup failed: %w", err)
		}
		return nil
	}, opts...)
}

// KeyCheck confirms the active signing key is loaded.
func KeyCheck(name string, p keys.Provider, opts ...CheckOption) *Check {
	return NewCheck(name, func(ctx context.Context) error {
		if _, err := p.Active(ctx); err != nil {
			return fmt.Errorf("signing key unavailable: %w", err)
		}
		return nil
	}, opts...)
}

// BreakerCheck fails while the breaker reported by state is open.
func BreakerCheck(name string, state func() gobreaker.State, opts ...CheckOption) *Check {
	return NewCheck(name, func(context.Context) error {
		if s := state(); s == gobreaker.StateOpen {
			return fmt.Errorf("circuit breaker %s", s)
		}
		return nil
	}, opts...)
}

// BacklogCheck fails when size reports more than limit pending items.
func BacklogCheck(name string, size func() int, limit int, opts ...CheckOption) *Check {
	return NewCheck(name, func(context.Context) error {
		if n := size(); limit > 0 && n > limit {
			return fmt.Errorf("backlog of %d exceeds %d", n, limit)
		}
		return nil
	}, opts...)
}
