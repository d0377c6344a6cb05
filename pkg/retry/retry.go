// Package retry provides a small quadratic-backoff retry helper.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Config controls retry behaviour.
type Config struct {
	// MaxAttempts is the total number of calls including the first attempt.
	MaxAttempts int
	// BaseDelay is the base for the backoff. Wait after attempt n is
	// BaseDelay * n².
	BaseDelay time.Duration
	// OnRetry is called after a failed attempt, before the next delay.
	// attempt is 1-indexed.
	OnRetry func(attempt int, err error)
}

// Do calls fn up to cfg.MaxAttempts times and returns nil on the first
// success or the last error once attempts are exhausted. The delay between
// attempts grows quadratically; ctx cancellation aborts the wait.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if attempt == cfg.MaxAttempts {
			break
		}
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, lastErr)
		}

		delay := cfg.BaseDelay * time.Duration(attempt*attempt)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled after attempt %d: %w", attempt, ctx.Err())
		}
	}
	return lastErr
}
