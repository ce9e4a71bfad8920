package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(retries int) Config {
	return Config{
		MaxRetries:     retries,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		JitterFactor:   0.1,
	}
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 100*time.Millisecond, cfg.InitialBackoff)
	assert.Equal(t, 30*time.Second, cfg.MaxBackoff)
	assert.Equal(t, 0.25, cfg.JitterFactor)

	assert.Equal(t, cfg, Config{}.withDefaults())
	assert.Equal(t, MaxJitterFactor, Config{JitterFactor: 3}.withDefaults().JitterFactor)
}

func TestDo(t *testing.T) {
	t.Parallel()

	transient := errors.New("connection refused")
	fatal := errors.New("bad request")

	tests := []struct {
		name      string
		failures  int
		err       error
		opts      []Option
		wantCalls int
		wantErr   error
	}{
		{name: "first try", failures: 0, wantCalls: 1},
		{name: "recovers", failures: 2, err: transient, wantCalls: 3},
		{name: "exhausted", failures: 10, err: transient, wantCalls: 4, wantErr: transient},
		{
			name:      "not retryable",
			failures:  10,
			err:       fatal,
			opts:      []Option{WithShouldRetry(func(err error) bool { return errors.Is(err, transient) })},
			wantCalls: 1,
			wantErr:   fatal,
		},
		{name: "permanent", failures: 10, err: Permanent(fatal), wantCalls: 1, wantErr: fatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			calls := 0
			err := Do(context.Background(), fastConfig(3), func(context.Context) error {
				calls++
				if calls <= tt.failures {
					return tt.err
				}
				return nil
			}, tt.opts...)

			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDo_OnRetry(t *testing.T) {
	t.Parallel()

	var attempts []int
	err := Do(context.Background(), fastConfig(2), func(context.Context) error {
		return errors.New("boom")
	}, WithOnRetry(func(attempt int, err error, backoff time.Duration) {
		attempts = append(attempts, attempt)
		assert.Positive(t, backoff)
	}))

	require.Error(t, err)
	assert.Equal(t, []int{1, 2}, attempts)
}

func TestDo_ContextCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := Do(ctx, fastConfig(3), func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)

	ctx, cancel = context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	boom := errors.New("boom")
	err = Do(ctx, Config{MaxRetries: 100, InitialBackoff: time.Second}, func(context.Context) error {
		return boom
	})
	assert.ErrorIs(t, err, boom, "the last operation error wins over the context error")
}

func TestBackoff(t *testing.T) {
	t.Parallel()

	cfg := Config{InitialBackoff: 100 * time.Millisecond, MaxBackoff: time.Second, JitterFactor: 0.25}

	for attempt, base := range []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond} {
		got := Backoff(attempt, cfg)
		assert.GreaterOrEqual(t, got, base)
		assert.LessOrEqual(t, got, base+base/4)
	}
	assert.Equal(t, time.Second, Backoff(10, cfg))
}

func TestPermanent_Nil(t *testing.T) {
	t.Parallel()
	assert.NoError(t, Permanent(nil))
}
