package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"resume-pipeline/internal/shared/telemetry"
)

// BackoffPolicy is the one retry policy used for provider calls and research.
// MaxAttempts counts the first try, so 3 means one call plus two retries.
type BackoffPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
	// Retryable decides which errors are retried. Defaults to IsTransient.
	Retryable func(error) bool
}

// DefaultBackoff returns 3 attempts starting at 500ms, doubling.
func DefaultBackoff() BackoffPolicy {
	return BackoffPolicy{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond, Multiplier: 2, MaxDelay: 10 * time.Second}
}

// Enclosing returns a copy of p for wrapping work that itself calls a Client. Errors an inner
// policy already gave up on are returned as is, so provider attempts never multiply across layers.
func (p BackoffPolicy) Enclosing() BackoffPolicy {
	inner := p.Retryable
	if inner == nil {
		inner = IsTransient
	}
	p.Retryable = func(err error) bool {
		return !errors.Is(err, ErrRetriesExhausted) && inner(err)
	}
	return p
}

// Delay returns the wait before retry number n (1-based).
func (p BackoffPolicy) Delay(n int) time.Duration {
	if p.BaseDelay <= 0 || n <= 0 {
		return 0
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(p.BaseDelay)
	for i := 1; i < n; i++ {
		d *= mult
	}
	delay := time.Duration(d)
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// Do runs fn until it succeeds, returns a non-retryable error, the context ends,
// or MaxAttempts is reached. Exhaustion returns ErrRetriesExhausted wrapping the last error.
func (p BackoffPolicy) Do(ctx context.Context, op string, fn func(ctx context.Context, attempt int) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsTransient
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		lastErr = err
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if !retryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}
		delay := p.Delay(attempt)
		telemetry.Warn("llm.retry", map[string]any{
			"op":       op,
			"attempt":  attempt,
			"delay_ms": delay.Milliseconds(),
			"error":    err,
		})
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		}
	}
	return fmt.Errorf("%s: %w after %d attempts: %w", op, ErrRetriesExhausted, attempts, lastErr)
}
