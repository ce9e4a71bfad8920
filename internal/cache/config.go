package cache

import (
	"fmt"
	"time"

	"github.com/vyrodovalexey/avauthz/internal/retry"
)

// Cache types.
const (
	TypeMemory = "memory"
	TypeRedis  = "redis"
)

// Defaults.
const (
	DefaultTTL        = time.Minute
	DefaultMaxEntries = 10000
	DefaultKeyPrefix  = "avauthz:"
)

// Config represents the cache configuration.
type Config struct {
	// Enabled indicates whether caching is enabled.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Type is the cache backend type: "memory" or "redis".
	Type string `yaml:"type" json:"type"`

	// TTL is the default time-to-live for cached entries.
	TTL time.Duration `yaml:"ttl,omitempty" json:"ttl,omitempty"`

	// MaxEntries is the maximum number of entries for memory cache.
	MaxEntries int `yaml:"maxEntries,omitempty" json:"maxEntries,omitempty"`

	// Redis contains Redis-specific configuration.
	Redis *RedisConfig `yaml:"redis,omitempty" json:"redis,omitempty"`
}

// RedisConfig contains Redis-specific cache configuration.
type RedisConfig struct {
	// URL is the connection URL for standalone mode.
	// Format: redis://[user:password@]host:port[/db]
	URL string `yaml:"url,omitempty" json:"url,omitempty"`

	// Sentinel enables failover mode and takes precedence over URL.
	Sentinel *SentinelConfig `yaml:"sentinel,omitempty" json:"sentinel,omitempty"`

	PoolSize     int           `yaml:"poolSize,omitempty" json:"poolSize,omitempty"`
	DialTimeout  time.Duration `yaml:"dialTimeout,omitempty" json:"dialTimeout,omitempty"`
	ReadTimeout  time.Duration `yaml:"readTimeout,omitempty" json:"readTimeout,omitempty"`
	WriteTimeout time.Duration `yaml:"writeTimeout,omitempty" json:"writeTimeout,omitempty"`

	// KeyPrefix is prepended to every key. Defaults to "avauthz:".
	KeyPrefix string `yaml:"keyPrefix,omitempty" json:"keyPrefix,omitempty"`

	// TTLJitter randomizes TTLs by up to this fraction (0.0 to 1.0).
	TTLJitter float64 `yaml:"ttlJitter,omitempty" json:"ttlJitter,omitempty"`

	// HashKeys stores SHA-256 digests of keys instead of the keys.
	HashKeys bool `yaml:"hashKeys,omitempty" json:"hashKeys,omitempty"`

	// PasswordSecret names a secret with a "password" field. When set, the
	// password replaces the one in URL or Sentinel.Password.
	PasswordSecret string `yaml:"passwordSecret,omitempty" json:"passwordSecret,omitempty"`

	// Retry configures retries of individual commands.
	Retry retry.Config `yaml:"retry,omitempty" json:"retry,omitempty"`
}

// SentinelConfig configures Redis Sentinel.
type SentinelConfig struct {
	MasterName       string   `yaml:"masterName" json:"masterName"`
	SentinelAddrs    []string `yaml:"sentinelAddrs" json:"sentinelAddrs"`
	SentinelPassword string   `yaml:"sentinelPassword,omitempty" json:"sentinelPassword,omitempty"`
	Password         string   `yaml:"password,omitempty" json:"password,omitempty"`
	DB               int      `yaml:"db,omitempty" json:"db,omitempty"`
}

// DefaultConfig returns the default cache configuration: an enabled memory
// cache.
func DefaultConfig() Config {
	return Config{
		Enabled:    true,
		Type:       TypeMemory,
		TTL:        DefaultTTL,
		MaxEntries: DefaultMaxEntries,
	}
}

// Validate validates the cache configuration.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.TTL < 0 {
		return fmt.Errorf("%w: ttl must be non-negative", ErrInvalidConfig)
	}
	if c.MaxEntries < 0 {
		return fmt.Errorf("%w: maxEntries must be non-negative", ErrInvalidConfig)
	}

	switch c.Type {
	case "", TypeMemory:
		return nil
	case TypeRedis:
	default:
		return fmt.Errorf("%w: unknown cache type %q", ErrInvalidConfig, c.Type)
	}

	r := c.Redis
	if r == nil {
		return fmt.Errorf("%w: redis configuration is required", ErrInvalidConfig)
	}
	if r.Sentinel != nil && r.Sentinel.MasterName != "" {
		if len(r.Sentinel.SentinelAddrs) == 0 {
			return fmt.Errorf("%w: at least one sentinel address is required", ErrInvalidConfig)
		}
	} else if r.URL == "" {
		return fmt.Errorf("%w: redis url is required for standalone mode", ErrInvalidConfig)
	}
	if r.TTLJitter < 0 || r.TTLJitter > 1 {
		return fmt.Errorf("%w: ttlJitter must be between 0 and 1", ErrInvalidConfig)
	}
	return nil
}
