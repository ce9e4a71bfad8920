package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avauthz/internal/authz/rbac"
)

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "avauthz.yaml")
	writeConfig(t, path, "policy:\n  defaultPolicy: deny\n")

	reloaded := make(chan *Config, 4)
	w, err := NewWatcher(path, func(c *Config) { reloaded <- c },
		WithDebounceDelay(10*time.Millisecond),
		WithEnvLookup(mapLookup(nil)),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer func() { _ = w.Stop() }()

	assert.Equal(t, rbac.EffectDeny, w.LastConfig().Policy.DefaultPolicy)

	writeConfig(t, path, "policy:\n  defaultPolicy: allow\n")

	select {
	case c := <-reloaded:
		assert.Equal(t, rbac.EffectAllow, c.Policy.DefaultPolicy)
	case <-time.After(5 * time.Second):
		t.Fatal("config was not reloaded")
	}
	assert.Equal(t, rbac.EffectAllow, w.LastConfig().Policy.DefaultPolicy)
}

func TestWatcher_RejectsInvalidReload(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "avauthz.yaml")
	writeConfig(t, path, "store:\n  type: memory\n")

	var (
		mu     sync.Mutex
		errs   []error
		called atomic.Bool
	)
	w, err := NewWatcher(path, func(*Config) { called.Store(true) },
		WithErrorCallback(func(err error) {
			mu.Lock()
			defer mu.Unlock()
			errs = append(errs, err)
		}),
	)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer func() { _ = w.Stop() }()

	before := w.LastConfig()
	require.NoError(t, w.ForceReload())

	writeConfig(t, path, "store:\n  type: etcd\n")
	err = w.ForceReload()
	require.Error(t, err)

	mu.Lock()
	assert.NotEmpty(t, errs)
	mu.Unlock()
	assert.True(t, called.Load())
	assert.Equal(t, before.Store.Type, w.LastConfig().Store.Type)
}

func TestWatcher_StartFailsOnInvalidFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "avauthz.yaml")
	writeConfig(t, path, "server:\n  address: \"\"\n  readTimeout: -1s\n")

	w, err := NewWatcher(path, nil)
	require.NoError(t, err)
	assert.Error(t, w.Start(context.Background()))
	assert.NoError(t, w.Stop())
	assert.Nil(t, w.LastConfig())
}
