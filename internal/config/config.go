package config

import (
	"time"

	"github.com/vyrodovalexey/avauthz/internal/audit"
	"github.com/vyrodovalexey/avauthz/internal/auth/keys"
	"github.com/vyrodovalexey/avauthz/internal/auth/token"
	"github.com/vyrodovalexey/avauthz/internal/authz/rbac"
	"github.com/vyrodovalexey/avauthz/internal/authz/store"
	"github.com/vyrodovalexey/avauthz/internal/cache"
	"github.com/vyrodovalexey/avauthz/internal/database"
	"github.com/vyrodovalexey/avauthz/internal/observability"
	"github.com/vyrodovalexey/avauthz/internal/secrets"
)

// Store types.
const (
	StoreMemory = "memory"
	StoreSQL    = "sql"
)

// Config is the root configuration of the service.
type Config struct {
	Server   ServerConfig                `yaml:"server" json:"server"`
	Log      observability.LogConfig     `yaml:"log" json:"log"`
	Tracing  observability.TracingConfig `yaml:"tracing" json:"tracing"`
	Secrets  secrets.Config              `yaml:"secrets" json:"secrets"`
	Keys     KeysConfig                  `yaml:"keys" json:"keys"`
	Token    token.Config                `yaml:"token" json:"token"`
	Policy   *rbac.Config                `yaml:"policy" json:"policy"`
	Store    StoreConfig                 `yaml:"store" json:"store"`
	Cache    cache.Config                `yaml:"cache" json:"cache"`
	Database database.Config             `yaml:"database" json:"database"`
	Audit    audit.Config                `yaml:"audit" json:"audit"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Address         string   `yaml:"address" json:"address"`
	ReadTimeout     Duration `yaml:"readTimeout" json:"readTimeout"`
	WriteTimeout    Duration `yaml:"writeTimeout" json:"writeTimeout"`
	IdleTimeout     Duration `yaml:"idleTimeout" json:"idleTimeout"`
	ShutdownTimeout Duration `yaml:"shutdownTimeout" json:"shutdownTimeout"`

	// TokenCookie is read when the Authorization header carries no token.
	TokenCookie string `yaml:"tokenCookie,omitempty" json:"tokenCookie,omitempty"`

	// SkipPaths bypass the authorization guard.
	SkipPaths []string `yaml:"skipPaths,omitempty" json:"skipPaths,omitempty"`

	// TrustedProxies are CIDRs or addresses whose X-Forwarded-For is honoured.
	TrustedProxies []string `yaml:"trustedProxies,omitempty" json:"trustedProxies,omitempty"`

	RateLimit RateLimitConfig `yaml:"rateLimit" json:"rateLimit"`
}

// RateLimitConfig configures per-client rate limiting of public endpoints.
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled" json:"enabled"`
	RequestsPerSecond float64 `yaml:"requestsPerSecond" json:"requestsPerSecond"`
	Burst             int     `yaml:"burst" json:"burst"`
}

// KeysConfig configures key material lookup.
type KeysConfig struct {
	// SecretPrefix is prepended to the environment name to form the secret name.
	SecretPrefix string `yaml:"secretPrefix" json:"secretPrefix"`

	// Preload lists environments whose keys are loaded at startup, in
	// addition to the active one. Their public keys are published in JWKS.
	Preload []string `yaml:"preload,omitempty" json:"preload,omitempty"`
}

// StoreConfig configures the permission store.
type StoreConfig struct {
	// Type is memory or sql.
	Type string `yaml:"type" json:"type"`

	// CacheTTL is the TTL of cached role rules. Zero uses the cache default.
	CacheTTL Duration `yaml:"cacheTTL,omitempty" json:"cacheTTL,omitempty"`

	Breaker store.BreakerConfig `yaml:"breaker" json:"breaker"`

	// Seed rules are upserted at startup.
	Seed []store.PermissionRule `yaml:"seed,omitempty" json:"seed,omitempty"`
}

// DefaultConfig returns a configuration that runs without external services:
// env secrets, in-memory store, cache and audit sink.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address:         ":8080",
			ReadTimeout:     Duration(15 * time.Second),
			WriteTimeout:    Duration(15 * time.Second),
			IdleTimeout:     Duration(60 * time.Second),
			ShutdownTimeout: Duration(30 * time.Second),
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerSecond: 10,
				Burst:             20,
			},
		},
		Log:     observability.DefaultLogConfig(),
		Tracing: observability.TracingConfig{ServiceName: "avauthz", SamplingRate: 1},
		Secrets: secrets.Config{
			Provider: string(secrets.ProviderTypeEnv),
			Env:      &secrets.EnvConfig{},
		},
		Keys: KeysConfig{
			SecretPrefix: keys.DefaultSecretPrefix,
		},
		Token: token.Config{
			Issuer:           "avauthz",
			DefaultExpiresIn: token.DefaultExpiresIn,
		},
		Policy: rbac.DefaultConfig(),
		Store: StoreConfig{
			Type:    StoreMemory,
			Breaker: store.DefaultBreakerConfig(),
		},
		Cache:    cache.DefaultConfig(),
		Database: database.DefaultConfig(),
		Audit:    audit.DefaultConfig(),
	}
}
