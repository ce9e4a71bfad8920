package config

import (
	"errors"
	"fmt"
	"net"

	"github.com/vyrodovalexey/avauthz/internal/audit"
	"github.com/vyrodovalexey/avauthz/internal/auth/keys"
)

// ValidationError collects every problem found in a configuration.
type ValidationError struct {
	Errors []error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return "invalid configuration: " + errors.Join(e.Errors...).Error()
}

// Unwrap returns the collected errors.
func (e *ValidationError) Unwrap() []error {
	return e.Errors
}

// ValidateConfig checks cfg and returns a *ValidationError listing every
// failing section.
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is required")
	}

	var errs []error
	add := func(section string, err error) {
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", section, err))
		}
	}

	add("server", cfg.Server.validate())
	add("secrets", cfg.Secrets.Validate())
	add("token", cfg.Token.Validate())
	add("policy", cfg.Policy.Validate())
	add("cache", cfg.Cache.Validate())
	add("database", cfg.Database.Validate())
	add("audit", cfg.Audit.Validate())
	add("store", cfg.Store.Breaker.Validate())

	for _, name := range cfg.Keys.Preload {
		if _, err := keys.ParseEnvironment(name); err != nil {
			add("keys.preload", err)
		}
	}

	switch cfg.Store.Type {
	case StoreMemory:
	case StoreSQL:
		if !cfg.Database.Enabled() {
			add("store", errors.New("type sql requires database.dsn"))
		}
	default:
		add("store", fmt.Errorf("invalid type %q (must be %s or %s)", cfg.Store.Type, StoreMemory, StoreSQL))
	}
	for i, r := range cfg.Store.Seed {
		add(fmt.Sprintf("store.seed[%d]", i), r.Normalized().Validate())
	}

	if cfg.Audit.Sink.Type == audit.SinkSQL && !cfg.Database.Enabled() {
		add("audit", errors.New("sink sql requires database.dsn"))
	}
	if cfg.Tracing.Enabled && cfg.Tracing.OTLPEndpoint == "" {
		add("tracing", errors.New("otlpEndpoint is required when tracing is enabled"))
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

func (s ServerConfig) validate() error {
	if s.Address == "" {
		return errors.New("address is required")
	}
	for name, d := range map[string]Duration{
		"readTimeout":     s.ReadTimeout,
		"writeTimeout":    s.WriteTimeout,
		"idleTimeout":     s.IdleTimeout,
		"shutdownTimeout": s.ShutdownTimeout,
	} {
		if d < 0 {
			return fmt.Errorf("%s must be non-negative", name)
		}
	}
	for _, p := range s.TrustedProxies {
		if _, _, err := net.ParseCIDR(p); err != nil && net.ParseIP(p) == nil {
			return fmt.Errorf("invalid trusted proxy %q", p)
		}
	}
	if s.RateLimit.Enabled {
		if s.RateLimit.RequestsPerSecond <= 0 {
			return errors.New("rateLimit.requestsPerSecond must be positive")
		}
		if s.RateLimit.Burst <= 0 {
			return errors.New("rateLimit.burst must be positive")
		}
	}
	return nil
}
