package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avauthz/internal/audit"
	"github.com/vyrodovalexey/avauthz/internal/authz/store"
	"github.com/vyrodovalexey/avauthz/internal/cache"
	"github.com/vyrodovalexey/avauthz/internal/config"
	"github.com/vyrodovalexey/avauthz/internal/middleware"
	"github.com/vyrodovalexey/avauthz/internal/observability"
)

func TestGetEnvOrDefault(t *testing.T) {
	t.Setenv("AUTHZ_TEST_VALUE", "set")

	assert.Equal(t, "set", getEnvOrDefault("AUTHZ_TEST_VALUE", "fallback"))
	assert.Equal(t, "fallback", getEnvOrDefault("AUTHZ_TEST_MISSING", "fallback"))
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("AUTHZ_DOTENV_VALUE=from-file\nAUTHZ_DOTENV_KEPT=from-file\n"), 0o600))
	t.Setenv("AUTHZ_DOTENV_KEPT", "from-env")
	t.Cleanup(func() { _ = os.Unsetenv("AUTHZ_DOTENV_VALUE") })

	loadEnvFile(path)
	loadEnvFile(filepath.Join(t.TempDir(), "missing.env"))

	assert.Equal(t, "from-file", os.Getenv("AUTHZ_DOTENV_VALUE"))
	assert.Equal(t, "from-env", os.Getenv("AUTHZ_DOTENV_KEPT"))
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, config.StoreMemory, cfg.Store.Type)

	dir := t.TempDir()
	valid := filepath.Join(dir, "valid.yaml")
	require.NoError(t, os.WriteFile(valid, []byte("server:\n  address: \":9999\"\n"), 0o600))
	cfg, err = loadConfig(valid)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Server.Address)

	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("store:\n  type: sql\n"), 0o600))
	_, err = loadConfig(invalid)
	assert.Error(t, err)

	_, err = loadConfig(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestOpenAuditSink(t *testing.T) {
	t.Parallel()

	db, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	tests := []struct {
		name    string
		cfg     audit.SinkConfig
		withDB  bool
		want    any
		wantErr bool
	}{
		{name: "default", cfg: audit.SinkConfig{}, want: &audit.MemorySink{}},
		{name: "memory", cfg: audit.SinkConfig{Type: audit.SinkMemory}, want: &audit.MemorySink{}},
		{name: "sql", cfg: audit.SinkConfig{Type: audit.SinkSQL}, withDB: true, want: &audit.SQLSink{}},
		{name: "sql without database", cfg: audit.SinkConfig{Type: audit.SinkSQL}, wantErr: true},
		{name: "writer", cfg: audit.SinkConfig{Type: audit.SinkWriter, Output: "stderr"}, want: &audit.WriterSink{}},
		{name: "unknown", cfg: audit.SinkConfig{Type: "kafka"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			sqlDB := db
			if !tt.withDB {
				sqlDB = nil
			}
			sink, err := openAuditSink(tt.cfg, sqlDB)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, sink)
		})
	}
}

func TestBuildStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c, err := cache.New(ctx, cache.DefaultConfig(), observability.NopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	cfg := config.DefaultConfig().Store
	s, breaker := buildStore(cfg, nil, c, store.NewMetrics("test"), observability.NopLogger())
	require.NotNil(t, breaker)
	assert.IsType(t, &store.CachedStore{}, s)

	admin := store.NewAdmin(s, nil, nil)
	_, created, err := admin.Upsert(ctx, store.Actor{SubjectID: seedActor},
		store.PermissionRule{Role: "Viewer", Method: "GET", PathPattern: "/reports/*", Access: store.AccessAllow})
	require.NoError(t, err)
	assert.True(t, created)

	set, err := store.NewResolver(s).Resolve(ctx, "Viewer")
	require.NoError(t, err)
	assert.Equal(t, []string{"GET:/reports/*"}, set.Allow)
}

func TestSeedRules(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Store.Seed = []store.PermissionRule{
		{Role: "Viewer", Method: "GET", PathPattern: "/a", Access: store.AccessAllow},
		{Role: "Viewer", Method: "GET", PathPattern: "no-slash", Access: store.AccessAllow},
		{Role: "Viewer", Method: "*", PathPattern: "/a/secret", Access: store.AccessDeny},
	}
	mem := store.NewMemoryStore()

	seedRules(context.Background(), store.NewAdmin(mem, nil, nil), cfg, observability.NopLogger())

	rules, err := mem.FindByRole(context.Background(), "Viewer")
	require.NoError(t, err)
	assert.Len(t, rules, 2)
}

func TestBuildMiddlewareChain(t *testing.T) {
	t.Parallel()

	tracer, err := observability.NewTracer(context.Background(), observability.TracingConfig{})
	require.NoError(t, err)

	h := buildMiddlewareChain(
		http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }),
		tracer,
		middleware.NewMetrics("test"),
		middleware.NewClientIPExtractor(nil),
		observability.NopLogger(),
	)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))
}
