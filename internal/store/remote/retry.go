package remote

import (
	"context"
	"time"

	"github.com/narrateapp/narrate-server/internal/errors"
)

// withRetry runs fn under a per-call timeout, re-attempting only
// transient-class failures with linear backoff (attempt number times the
// fixed delay). Data and validation errors surface immediately; exhausting
// the attempt budget surfaces the last error.
func (s *Store) withRetry(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= s.opts.Attempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		err := fn(callCtx)
		cancel()

		if err == nil {
			return nil
		}
		lastErr = err

		if !errors.IsRetryable(err) {
			return err
		}
		// The caller's own context ending is not retryable either.
		if ctx.Err() != nil {
			return lastErr
		}

		if attempt < s.opts.Attempts {
			delay := time.Duration(attempt) * s.opts.Backoff
			if s.logger != nil {
				s.logger.Warn("remote store call failed, retrying",
					"attempt", attempt, "delay", delay, "error", err)
			}
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return lastErr
			}
		}
	}

	return lastErr
}
