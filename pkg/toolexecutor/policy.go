package toolexecutor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// invocation runs the middleware chain and handler once per call.
type invocation func(ctx context.Context) (interface{}, error)

// Backoff computes exponential delays between retry attempts.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// DefaultBackoff doubles from 200ms up to 10s.
func DefaultBackoff() Backoff {
	return Backoff{Base: 200 * time.Millisecond, Max: 10 * time.Second}
}

// Delay returns the wait before the attempt following attempt (1-based).
func (b Backoff) Delay(attempt int) time.Duration {
	if b.Base <= 0 || attempt < 1 {
		return 0
	}
	delay := b.Base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if b.Max > 0 && delay >= b.Max {
			return b.Max
		}
	}
	if b.Max > 0 && delay > b.Max {
		return b.Max
	}
	return delay
}

// sleepFunc waits for d or until ctx is done.
type sleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// withTimeout races inv against a timer. The handler receives a context
// carrying the deadline; when it expires the executor stops waiting and the
// late result is discarded.
func withTimeout(tool string, timeout time.Duration, inv invocation) invocation {
	if timeout <= 0 {
		return inv
	}

	return func(ctx context.Context) (interface{}, error) {
		timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		type outcome struct {
			value interface{}
			err   error
		}
		done := make(chan outcome, 1)

		go func() {
			value, err := inv(timeoutCtx)
			done <- outcome{value: value, err: err}
		}()

		select {
		case o := <-done:
			if o.err != nil && ctx.Err() == nil && errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) {
				return nil, &TimeoutError{Tool: tool, After: timeout}
			}
			return o.value, o.err
		case <-timeoutCtx.Done():
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return nil, &TimeoutError{Tool: tool, After: timeout}
		}
	}
}

// withRetry repeats inv up to attempts times while the error is retryable,
// sleeping with exponential backoff between attempts.
func withRetry(attempts int, backoff Backoff, sleep sleepFunc, inv func(ctx context.Context, attempt int) (interface{}, error)) invocation {
	if attempts < 1 {
		attempts = 1
	}

	return func(ctx context.Context) (interface{}, error) {
		var lastErr error
		for attempt := 1; attempt <= attempts; attempt++ {
			value, err := inv(ctx, attempt)
			if err == nil {
				return value, nil
			}
			lastErr = err

			if attempt == attempts || !IsRetryable(err) {
				break
			}
			if err := sleep(ctx, backoff.Delay(attempt)); err != nil {
				break
			}
		}
		return nil, lastErr
	}
}

// cacheKey derives the cache key from the tool name and validated input.
// encoding/json sorts map keys, so equal inputs give equal keys.
func cacheKey(tool string, input map[string]interface{}) (string, error) {
	data, err := json.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("failed to encode cache key: %w", err)
	}
	return "toolexecutor:" + tool + ":" + string(data), nil
}
