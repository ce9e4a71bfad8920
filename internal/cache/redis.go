package cache

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/avauthz/internal/observability"
	"github.com/vyrodovalexey/avauthz/internal/retry"
	"github.com/vyrodovalexey/avauthz/internal/secrets"
)

// passwordField is the secret field holding the Redis password.
const passwordField = "password"

// redisRetryConfig is used when RedisConfig.Retry is empty.
var redisRetryConfig = retry.Config{
	MaxRetries:     3,
	InitialBackoff: 100 * time.Millisecond,
	MaxBackoff:     2 * time.Second,
}

// isRetryableRedisError reports whether err is worth another attempt.
// Misses and context errors are final.
func isRetryableRedisError(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, redis.Nil) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}

// redisCache implements a Redis-based cache.
type redisCache struct {
	logger     observability.Logger
	metrics    *Metrics
	client     redis.UniversalClient
	retry      retry.Config
	keyPrefix  string
	defaultTTL time.Duration
	ttlJitter  float64
	hashKeys   bool

	hits   atomic.Int64
	misses atomic.Int64
}

// applyTTLJitter varies ttl by up to ±jitterFactor.
func applyTTLJitter(ttl time.Duration, jitterFactor float64) time.Duration {
	if jitterFactor <= 0 || ttl <= 0 {
		return ttl
	}
	if jitterFactor > 1.0 {
		jitterFactor = 1.0
	}
	//nolint:gosec // G404: TTL jitter does not require cryptographic randomness
	jitter := time.Duration(float64(ttl) * jitterFactor * (2*rand.Float64() - 1))
	if result := ttl + jitter; result > 0 {
		return result
	}
	return ttl
}

func newRedisCache(ctx context.Context, cfg Config, logger observability.Logger, o options) (*redisCache, error) {
	rc := *cfg.Redis
	if rc.Sentinel != nil {
		sentinel := *rc.Sentinel
		rc.Sentinel = &sentinel
	}

	if err := resolveRedisPassword(ctx, &rc, o.secrets); err != nil {
		return nil, err
	}

	var (
		client redis.UniversalClient
		mode   string
	)
	if rc.Sentinel != nil && rc.Sentinel.MasterName != "" {
		client = redis.NewFailoverClient(failoverOptions(&rc))
		mode = "sentinel"
	} else {
		opts, err := redis.ParseURL(rc.URL)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid redis url: %w", ErrInvalidConfig, err)
		}
		applyPoolOptions(opts, &rc)
		client = redis.NewClient(opts)
		mode = "standalone"
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis %s connection failed: %w", mode, err)
	}

	retryCfg := rc.Retry
	if retryCfg == (retry.Config{}) {
		retryCfg = redisRetryConfig
	}
	keyPrefix := rc.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}

	c := &redisCache{
		logger:     logger,
		metrics:    o.metrics,
		client:     client,
		retry:      retryCfg,
		keyPrefix:  keyPrefix,
		defaultTTL: cfg.TTL,
		ttlJitter:  rc.TTLJitter,
		hashKeys:   rc.HashKeys,
	}

	logger.Info("redis cache initialized",
		observability.String("mode", mode),
		observability.String("keyPrefix", keyPrefix),
		observability.Duration("defaultTTL", c.defaultTTL),
		observability.Bool("hashKeys", c.hashKeys))

	return c, nil
}

// resolveRedisPassword reads the password from the secrets provider when a
// secret name is configured.
func resolveRedisPassword(ctx context.Context, rc *RedisConfig, provider secrets.Provider) error {
	if rc.PasswordSecret == "" {
		return nil
	}
	if provider == nil {
		return fmt.Errorf("%w: passwordSecret is set but no secrets provider is configured", ErrInvalidConfig)
	}

	secret, err := provider.GetSecret(ctx, rc.PasswordSecret)
	if err != nil {
		return fmt.Errorf("failed to read redis password secret %q: %w", rc.PasswordSecret, err)
	}
	password, ok := secret.GetString(passwordField)
	if !ok || password == "" {
		return fmt.Errorf("secret %q does not contain a %q field", rc.PasswordSecret, passwordField)
	}

	if rc.Sentinel != nil && rc.Sentinel.MasterName != "" {
		rc.Sentinel.Password = password
		return nil
	}
	return applyPasswordToURL(rc, password)
}

// applyPasswordToURL sets the password in the connection URL, keeping the
// user name.
func applyPasswordToURL(rc *RedisConfig, password string) error {
	parsed, err := url.Parse(rc.URL)
	if err != nil {
		return fmt.Errorf("%w: invalid redis url: %w", ErrInvalidConfig, err)
	}
	var username string
	if parsed.User != nil {
		username = parsed.User.Username()
	}
	parsed.User = url.UserPassword(username, password)
	rc.URL = parsed.String()
	return nil
}

func failoverOptions(rc *RedisConfig) *redis.FailoverOptions {
	s := rc.Sentinel
	opts := &redis.FailoverOptions{
		MasterName:       s.MasterName,
		SentinelAddrs:    s.SentinelAddrs,
		SentinelPassword: s.SentinelPassword,
		Password:         s.Password,
		DB:               s.DB,
	}
	if rc.PoolSize > 0 {
		opts.PoolSize = rc.PoolSize
	}
	if rc.DialTimeout > 0 {
		opts.DialTimeout = rc.DialTimeout
	}
	if rc.ReadTimeout > 0 {
		opts.ReadTimeout = rc.ReadTimeout
	}
	if rc.WriteTimeout > 0 {
		opts.WriteTimeout = rc.WriteTimeout
	}
	return opts
}

func applyPoolOptions(opts *redis.Options, rc *RedisConfig) {
	if rc.PoolSize > 0 {
		opts.PoolSize = rc.PoolSize
	}
	if rc.DialTimeout > 0 {
		opts.DialTimeout = rc.DialTimeout
	}
	if rc.ReadTimeout > 0 {
		opts.ReadTimeout = rc.ReadTimeout
	}
	if rc.WriteTimeout > 0 {
		opts.WriteTimeout = rc.WriteTimeout
	}
}

// resolveKey applies the key prefix and optional hashing.
func (c *redisCache) resolveKey(key string) string {
	if c.hashKeys {
		return c.keyPrefix + HashKey(key)
	}
	return c.keyPrefix + key
}

// do runs fn with retries and records failures on span.
func (c *redisCache) do(ctx context.Context, span trace.Span, op, key string, fn func(ctx context.Context) error) error {
	err := retry.Do(ctx, c.retry, fn,
		retry.WithShouldRetry(isRetryableRedisError),
		retry.WithOnRetry(func(attempt int, err error, _ time.Duration) {
			c.logger.Debug("retrying redis "+op,
				observability.String("key", key),
				observability.Int("attempt", attempt),
				observability.Error(err))
		}),
	)
	if err != nil && !errors.Is(err, redis.Nil) {
		c.metrics.errorsTotal.WithLabelValues(backendRedis, op).Inc()
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		c.logger.Error("redis "+op+" failed",
			observability.String("key", key),
			observability.Error(err))
	}
	return err
}

func (c *redisCache) startSpan(ctx context.Context, op, key string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "cache."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("cache.backend", backendRedis),
			attribute.String("cache.key", key),
		),
	)
}

// Get retrieves a value from the cache.
func (c *redisCache) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, span := c.startSpan(ctx, "Get", key)
	defer span.End()
	defer c.metrics.observe(backendRedis, "get", time.Now())

	fullKey := c.resolveKey(key)
	var value []byte
	err := c.do(ctx, span, "get", key, func(ctx context.Context) error {
		v, err := c.client.Get(ctx, fullKey).Bytes()
		value = v
		return err
	})

	switch {
	case err == nil:
		c.hits.Add(1)
		c.metrics.hitsTotal.WithLabelValues(backendRedis).Inc()
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return value, nil
	case errors.Is(err, redis.Nil):
		c.misses.Add(1)
		c.metrics.missesTotal.WithLabelValues(backendRedis).Inc()
		span.SetAttributes(attribute.Bool("cache.hit", false))
		return nil, ErrCacheMiss
	default:
		return nil, err
	}
}

// Set stores a value in the cache.
func (c *redisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, span := c.startSpan(ctx, "Set", key)
	defer span.End()
	defer c.metrics.observe(backendRedis, "set", time.Now())

	if ttl == 0 {
		ttl = c.defaultTTL
	}
	ttl = applyTTLJitter(ttl, c.ttlJitter)

	fullKey := c.resolveKey(key)
	return c.do(ctx, span, "set", key, func(ctx context.Context) error {
		return c.client.Set(ctx, fullKey, value, ttl).Err()
	})
}

// Delete removes a value from the cache.
func (c *redisCache) Delete(ctx context.Context, key string) error {
	ctx, span := c.startSpan(ctx, "Delete", key)
	defer span.End()
	defer c.metrics.observe(backendRedis, "delete", time.Now())

	fullKey := c.resolveKey(key)
	return c.do(ctx, span, "delete", key, func(ctx context.Context) error {
		return c.client.Del(ctx, fullKey).Err()
	})
}

// Exists checks if a key exists in the cache.
func (c *redisCache) Exists(ctx context.Context, key string) (bool, error) {
	ctx, span := c.startSpan(ctx, "Exists", key)
	defer span.End()
	defer c.metrics.observe(backendRedis, "exists", time.Now())

	fullKey := c.resolveKey(key)
	var n int64
	err := c.do(ctx, span, "exists", key, func(ctx context.Context) error {
		var err error
		n, err = c.client.Exists(ctx, fullKey).Result()
		return err
	})
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Close closes the Redis connection.
func (c *redisCache) Close() error {
	c.logger.Info("redis cache closing")
	return c.client.Close()
}

// Stats returns cache statistics.
func (c *redisCache) Stats() Stats {
	return Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
	}
}
