// Package retry runs an operation with exponential backoff and jitter.
//
// It is used for short-lived infrastructure calls (Redis commands, the
// initial database ping) where a transient network error should not surface
// to the caller:
//
//	err := retry.Do(ctx, retry.Config{MaxRetries: 3}, func(ctx context.Context) error {
//	    return db.PingContext(ctx)
//	}, retry.WithShouldRetry(isTransient))
package retry
