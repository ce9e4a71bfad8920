package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avauthz/internal/auth/keys"
	"github.com/vyrodovalexey/avauthz/internal/cache"
	"github.com/vyrodovalexey/avauthz/internal/observability"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(h *Handler) *gin.Engine {
	r := gin.New()
	h.RegisterRoutes(r)
	return r
}

func getStatus(t *testing.T, r http.Handler, path string) (int, Status) {
	t.Helper()

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var body Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func ok(context.Context) error   { return nil }
func fail(context.Context) error { return errors.New("unreachable") }

func TestLiveness(t *testing.T) {
	t.Parallel()

	h := NewHandler("v1.0.0", nil)
	h.AddCheck(NewCheck("broken", fail))

	code, body := getStatus(t, newRouter(h), "/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, StatusOK, body.Status)
}

func TestReadiness(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		checks     []*Check
		wantCode   int
		wantStatus string
	}{
		{name: "no checks", wantCode: http.StatusOK, wantStatus: StatusOK},
		{
			name:       "all healthy",
			checks:     []*Check{NewCheck("a", ok), NewCheck("b", ok)},
			wantCode:   http.StatusOK,
			wantStatus: StatusOK,
		},
		{
			name:       "non-critical failure degrades",
			checks:     []*Check{NewCheck("a", ok), NewCheck("cache", fail, WithCritical(false))},
			wantCode:   http.StatusOK,
			wantStatus: StatusDegraded,
		},
		{
			name:       "critical failure",
			checks:     []*Check{NewCheck("database", fail), NewCheck("cache", fail, WithCritical(false))},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: StatusError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := NewHandler("v1.0.0", observability.NopLogger())
			for _, c := range tt.checks {
				h.AddCheck(c)
			}

			code, body := getStatus(t, newRouter(h), "/readyz")
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantStatus, body.Status)
			assert.Equal(t, "v1.0.0", body.Version)
			assert.Len(t, body.Checks, len(tt.checks))
		})
	}
}

func TestReadiness_Draining(t *testing.T) {
	t.Parallel()

	h := NewHandler("v1", nil)
	h.AddCheck(NewCheck("a", ok))
	r := newRouter(h)

	code, _ := getStatus(t, r, "/readyz")
	assert.Equal(t, http.StatusOK, code)

	h.Drain()
	code, body := getStatus(t, r, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, StatusDraining, body.Status)
}

func TestReadiness_Timeout(t *testing.T) {
	t.Parallel()

	h := NewHandler("v1", nil, WithTimeout(20*time.Millisecond))
	h.AddCheck(NewCheck("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	code, body := getStatus(t, newRouter(h), "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, body.Checks["slow"].Error, "deadline exceeded")
}

func TestRun_Metrics(t *testing.T) {
	t.Parallel()

	m := NewMetrics("test")
	h := NewHandler("v1", nil, WithMetrics(m))
	h.AddCheck(NewCheck("a", ok))
	h.AddCheck(NewCheck("b", fail))

	h.Run(context.Background())

	assert.InDelta(t, 1, testutil.ToFloat64(m.checkStatus.WithLabelValues("a")), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(m.checkStatus.WithLabelValues("b")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.checksTotal.WithLabelValues("b", "failure")), 0)
}

func TestSQLCheck(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectPing()
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	check := SQLCheck("database", db)
	assert.True(t, check.IsCritical())
	require.NoError(t, check.Run(context.Background()))
	assert.ErrorContains(t, check.Run(context.Background()), "connection refused")
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Error(t, SQLCheck("nil", nil).Run(context.Background()))
}

type brokenCache struct {
	cache.Cache
}

func (brokenCache) Exists(context.Context, string) (bool, error) {
	return false, errors.New("redis: connection pool timeout")
}

func TestCacheCheck(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	mem, err := cache.New(ctx, cache.DefaultConfig(), observability.NopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = mem.Close() })
	assert.NoError(t, CacheCheck("cache", mem).Run(ctx))

	disabled, err := cache.New(ctx, cache.Config{}, observability.NopLogger())
	require.NoError(t, err)
	assert.NoError(t, CacheCheck("cache", disabled).Run(ctx))

	assert.ErrorContains(t, CacheCheck("cache", brokenCache{}).Run(ctx), "pool timeout")
}

func TestKeyCheck(t *testing.T) {
	t.Parallel()

	pair, err := keys.GenerateKeyPair(keys.Staging, keys.AlgES256)
	require.NoError(t, err)

	loaded := keys.NewStaticProvider(keys.FixedEnvironment(keys.Staging), pair)
	assert.NoError(t, KeyCheck("keys", loaded).Run(context.Background()))

	missing := keys.NewStaticProvider(keys.FixedEnvironment(keys.Production), pair)
	assert.Error(t, KeyCheck("keys", missing).Run(context.Background()))
}

func TestBreakerAndBacklogChecks(t *testing.T) {
	t.Parallel()

	state := gobreaker.StateClosed
	check := BreakerCheck("store", func() gobreaker.State { return state })
	assert.NoError(t, check.Run(context.Background()))
	state = gobreaker.StateOpen
	assert.ErrorContains(t, check.Run(context.Background()), "open")

	n := 10
	backlog := BacklogCheck("audit", func() int { return n }, 100, WithCritical(false))
	assert.False(t, backlog.IsCritical())
	assert.NoError(t, backlog.Run(context.Background()))
	n = 101
	assert.Error(t, backlog.Run(context.Background()))
}
