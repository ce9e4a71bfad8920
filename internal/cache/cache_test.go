package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avauthz/internal/observability"
	"github.com/vyrodovalexey/avauthz/internal/retry"
)

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "disabled ignores fields", cfg: Config{Type: "bogus"}},
		{name: "default", cfg: DefaultConfig()},
		{name: "negative ttl", cfg: Config{Enabled: true, TTL: -time.Second}, wantErr: true},
		{name: "negative entries", cfg: Config{Enabled: true, MaxEntries: -1}, wantErr: true},
		{name: "unknown type", cfg: Config{Enabled: true, Type: "memcached"}, wantErr: true},
		{name: "redis without config", cfg: Config{Enabled: true, Type: TypeRedis}, wantErr: true},
		{name: "redis without url", cfg: Config{Enabled: true, Type: TypeRedis, Redis: &RedisConfig{}}, wantErr: true},
		{name: "redis url", cfg: Config{Enabled: true, Type: TypeRedis, Redis: &RedisConfig{URL: "redis://localhost:6379"}}},
		{
			name: "sentinel without addrs",
			cfg: Config{Enabled: true, Type: TypeRedis, Redis: &RedisConfig{
				Sentinel: &SentinelConfig{MasterName: "mymaster"},
			}},
			wantErr: true,
		},
		{
			name: "sentinel",
			cfg: Config{Enabled: true, Type: TypeRedis, Redis: &RedisConfig{
				Sentinel: &SentinelConfig{MasterName: "mymaster", SentinelAddrs: []string{"s1:26379"}},
			}},
		},
		{
			name:    "bad jitter",
			cfg:     Config{Enabled: true, Type: TypeRedis, Redis: &RedisConfig{URL: "redis://x", TTLJitter: 2}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	c, err := New(ctx, DefaultConfig(), nil)
	require.NoError(t, err)
	_, isMemory := c.(*memoryCache)
	assert.True(t, isMemory)
	require.NoError(t, c.Close())

	_, err = New(ctx, Config{Enabled: true, Type: "memcached"}, observability.NopLogger())
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestDisabledCache(t *testing.T) {
	t.Parallel()

	c, err := New(context.Background(), Config{}, nil)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheDisabled)
	assert.ErrorIs(t, c.Set(ctx, "k", []byte("v"), 0), ErrCacheDisabled)
	assert.ErrorIs(t, c.Delete(ctx, "k"), ErrCacheDisabled)
	_, err = c.Exists(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheDisabled)
	assert.NoError(t, c.Close())
}

func TestStats_HitRate(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0.0, Stats{}.HitRate())
	assert.Equal(t, 75.0, Stats{Hits: 3, Misses: 1}.HitRate())
}

func TestKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "perm:role:viewer", Key("perm", "role", "viewer"))
	assert.Equal(t, "perm:role:data_admin", Key("perm", "role", "data admin\n"))
	assert.Len(t, HashKey("anything"), 64)
	assert.Equal(t, HashKey("a"), HashKey("a"))
}

func fastRetry() retry.Config {
	return retry.Config{MaxRetries: 1, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
}
