package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	// Registers the "pgx" database/sql driver.
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/vyrodovalexey/avauthz/internal/observability"
	"github.com/vyrodovalexey/avauthz/internal/retry"
)

// DriverName is the database/sql driver used by Open.
const DriverName = "pgx"

// Config holds connection settings.
type Config struct {
	// DSN is a PostgreSQL connection string. Empty disables the database.
	DSN string `yaml:"dsn,omitempty" json:"-"`

	MaxOpenConns    int           `yaml:"maxOpenConns,omitempty" json:"maxOpenConns,omitempty"`
	MaxIdleConns    int           `yaml:"maxIdleConns,omitempty" json:"maxIdleConns,omitempty"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime,omitempty" json:"connMaxLifetime,omitempty"`

	// Migrate applies the embedded migrations on startup.
	Migrate bool `yaml:"migrate,omitempty" json:"migrate,omitempty"`

	// ConnectRetry controls retries of the initial ping.
	ConnectRetry retry.Config `yaml:"connectRetry,omitempty" json:"connectRetry,omitempty"`
}

// DefaultConfig returns default pool settings.
func DefaultConfig() Config {
	return Config{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		Migrate:         true,
		ConnectRetry: retry.Config{
			MaxRetries:     5,
			InitialBackoff: 500 * time.Millisecond,
			MaxBackoff:     5 * time.Second,
		},
	}
}

// Enabled reports whether a DSN is configured.
func (c Config) Enabled() bool {
	return c.DSN != ""
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.MaxOpenConns < 0 || c.MaxIdleConns < 0 {
		return errors.New("connection pool sizes must be non-negative")
	}
	if c.ConnMaxLifetime < 0 {
		return errors.New("connMaxLifetime must be non-negative")
	}
	return nil
}

// Open opens a pool with the pgx driver and pings it, retrying while the
// server is unreachable.
func Open(ctx context.Context, cfg Config, logger observability.Logger) (*sql.DB, error) {
	if !cfg.Enabled() {
		return nil, errors.New("database dsn is required")
	}
	db, err := sql.Open(DriverName, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := Configure(ctx, db, cfg, logger); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Configure applies pool settings to db and waits until it answers a ping.
func Configure(ctx context.Context, db *sql.DB, cfg Config, logger observability.Logger) error {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	err := retry.Do(ctx, cfg.ConnectRetry, func(ctx context.Context) error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return db.PingContext(pingCtx)
	}, retry.WithOnRetry(func(attempt int, err error, backoff time.Duration) {
		logger.Warn("database not reachable, retrying",
			observability.Int("attempt", attempt),
			observability.Duration("backoff", backoff),
			observability.Error(err))
	}))
	if err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}
