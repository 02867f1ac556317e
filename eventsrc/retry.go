package eventsrc

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryOption configures RetryConflict.
type RetryOption func(*retryConfig)

type retryConfig struct {
	maxElapsedTime time.Duration
}

// WithMaxElapsedTime bounds the total time RetryConflict spends retrying.
func WithMaxElapsedTime(d time.Duration) RetryOption {
	return func(c *retryConfig) {
		c.maxElapsedTime = d
	}
}

// RetryConflict runs fn and retries it with exponential backoff as long as
// it fails with ErrConcurrency. The store never retries a conflicted append
// itself; callers wrap their read-decide-append sequence in this helper so
// that each attempt re-reads current state before appending. Any other error
// aborts immediately.
func RetryConflict(ctx context.Context, fn func(ctx context.Context) error, opts ...RetryOption) error {
	cfg := retryConfig{maxElapsedTime: 30 * time.Second}
	for _, opt := range opts {
		opt(&cfg)
	}

	operation := func() (any, error) {
		err := fn(ctx)
		if err == nil {
			return nil, nil
		}
		var conflict ErrConcurrency
		if errors.As(err, &conflict) {
			slog.WarnContext(ctx, "Append conflicted, retrying",
				"streamID", conflict.StreamID,
				"expected", conflict.Expected,
				"actual", conflict.Actual)
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}

	bo := backoff.NewExponentialBackOff()
	_, err := backoff.Retry(ctx, operation, backoff.WithBackOff(bo), backoff.WithMaxElapsedTime(cfg.maxElapsedTime))
	return err
}
