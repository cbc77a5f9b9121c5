// Package retry implements the §4.9 Retry Core: a generic bounded-backoff
// loop shared by the fetcher and the webhook deliverer.
package retry

import (
	"context"
	"math/rand"
	"time"
)

// Options configures a withRetries invocation.
type Options struct {
	MaxRetries    int
	BaseBackoffMs int
	MaxTotalMs    int // 0 means no budget; a negative budget is already exhausted
	ShouldRetry   func(error) bool
}

// ErrBudgetExceeded is returned (wrapping the last attempt error, if any)
// when the time budget is exhausted before a first attempt ever ran.
type ErrBudgetExceeded struct{ Cause error }

func (e *ErrBudgetExceeded) Error() string {
	if e.Cause == nil {
		return "retry: time budget exceeded before first attempt"
	}
	return "retry: time budget exceeded: " + e.Cause.Error()
}
func (e *ErrBudgetExceeded) Unwrap() error { return e.Cause }

// Do implements withRetries: run fn, retrying on shouldRetry(err) up to
// maxRetries times with exponential backoff plus jitter, bounded by an
// optional total-time budget. The budget is only checked before starting
// an attempt or before sleeping — an attempt already in flight when the
// budget expires is allowed to finish.
func Do(ctx context.Context, opts Options, fn func(ctx context.Context) error) error {
	start := time.Now()
	attempt := 0
	var lastErr error

	for {
		if opts.MaxTotalMs != 0 {
			elapsed := time.Since(start).Milliseconds()
			if elapsed > int64(opts.MaxTotalMs) {
				if attempt >= 1 {
					return lastErr
				}
				return &ErrBudgetExceeded{Cause: lastErr}
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt >= opts.MaxRetries {
			return lastErr
		}
		if opts.ShouldRetry != nil && !opts.ShouldRetry(err) {
			return lastErr
		}

		delay := backoffDelay(opts.BaseBackoffMs, attempt)

		if opts.MaxTotalMs > 0 {
			remaining := int64(opts.MaxTotalMs) - time.Since(start).Milliseconds()
			if remaining <= delay.Milliseconds() {
				return lastErr
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		attempt++
	}
}

func backoffDelay(baseMs, attempt int) time.Duration {
	backoff := float64(baseMs) * pow2(attempt)
	jitterCeil := 250
	if baseMs < jitterCeil {
		jitterCeil = baseMs
	}
	jitter := 0
	if jitterCeil > 0 {
		jitter = rand.Intn(jitterCeil + 1)
	}
	return time.Duration(backoff) * time.Millisecond + time.Duration(jitter)*time.Millisecond
}

func pow2(n int) float64 {
	result := 1.0
	for i := 0; i < n; i++ {
		result *= 2
	}
	return result
}
