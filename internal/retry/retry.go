package retry

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

// Defaults applied to zero Config fields.
const (
	DefaultMaxRetries     = 3
	DefaultInitialBackoff = 100 * time.Millisecond
	DefaultMaxBackoff     = 30 * time.Second
	DefaultJitterFactor   = 0.25

	// MaxJitterFactor is the upper bound of JitterFactor.
	MaxJitterFactor = 1.0
)

// Config contains retry parameters. Zero fields take their defaults.
type Config struct {
	// MaxRetries is the number of attempts after the first one.
	MaxRetries int `yaml:"maxRetries,omitempty" json:"maxRetries,omitempty"`

	// InitialBackoff is the wait before the first retry.
	InitialBackoff time.Duration `yaml:"initialBackoff,omitempty" json:"initialBackoff,omitempty"`

	// MaxBackoff caps a single wait.
	MaxBackoff time.Duration `yaml:"maxBackoff,omitempty" json:"maxBackoff,omitempty"`

	// JitterFactor adds up to this fraction of the backoff at random.
	JitterFactor float64 `yaml:"jitterFactor,omitempty" json:"jitterFactor,omitempty"`
}

// DefaultConfig returns the default retry configuration.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     DefaultMaxRetries,
		InitialBackoff: DefaultInitialBackoff,
		MaxBackoff:     DefaultMaxBackoff,
		JitterFactor:   DefaultJitterFactor,
	}
}

func (c Config) withDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = DefaultInitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = DefaultMaxBackoff
	}
	switch {
	case c.JitterFactor <= 0:
		c.JitterFactor = DefaultJitterFactor
	case c.JitterFactor > MaxJitterFactor:
		c.JitterFactor = MaxJitterFactor
	}
	return c
}

type options struct {
	shouldRetry func(error) bool
	onRetry     func(attempt int, err error, backoff time.Duration)
}

// Option configures a single Do call.
type Option func(*options)

// WithShouldRetry limits retries to errors for which fn returns true.
func WithShouldRetry(fn func(error) bool) Option {
	return func(o *options) {
		o.shouldRetry = fn
	}
}

// WithOnRetry registers a callback invoked before each wait.
func WithOnRetry(fn func(attempt int, err error, backoff time.Duration)) Option {
	return func(o *options) {
		o.onRetry = fn
	}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so that Do returns it without retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do calls fn until it succeeds, the retries are exhausted, the error is not
// retryable or ctx is done. The last error is returned, unwrapped from
// Permanent.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error, opts ...Option) error {
	cfg = cfg.withDefaults()
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(lastErr, &perm) {
			return perm.err
		}
		if o.shouldRetry != nil && !o.shouldRetry(lastErr) {
			return lastErr
		}
		if attempt == cfg.MaxRetries {
			break
		}

		backoff := Backoff(attempt, cfg)
		if o.onRetry != nil {
			o.onRetry(attempt+1, lastErr, backoff)
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}
	}

	return lastErr
}

// Backoff returns the wait before retry number attempt+1.
func Backoff(attempt int, cfg Config) time.Duration {
	cfg = cfg.withDefaults()

	backoff := float64(cfg.InitialBackoff) * math.Pow(2, float64(attempt))
	//nolint:gosec // G404: jitter for retry timing is not security-sensitive
	backoff += backoff * cfg.JitterFactor * rand.Float64()

	if backoff > float64(cfg.MaxBackoff) {
		backoff = float64(cfg.MaxBackoff)
	}
	return time.Duration(backoff)
}
