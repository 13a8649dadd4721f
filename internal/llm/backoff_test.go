package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoffDelayGrowsAndCaps(t *testing.T) {
	p := BackoffPolicy{MaxAttempts: 5, BaseDelay: 100 * time.Millisecond, Multiplier: 2, MaxDelay: 300 * time.Millisecond}
	assert.Equal(t, 100*time.Millisecond, p.Delay(1))
	assert.Equal(t, 200*time.Millisecond, p.Delay(2))
	assert.Equal(t, 300*time.Millisecond, p.Delay(3))
	assert.Zero(t, BackoffPolicy{}.Delay(1))
}

func TestBackoffRetriesTransientUntilExhausted(t *testing.T) {
	p := BackoffPolicy{MaxAttempts: 3}
	calls := 0
	err := p.Do(context.Background(), "test", func(ctx context.Context, attempt int) error {
		calls++
		return fmt.Errorf("provider: %w", ErrTimeout)
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestBackoffStopsOnSuccess(t *testing.T) {
	p := BackoffPolicy{MaxAttempts: 3}
	calls := 0
	err := p.Do(context.Background(), "test", func(ctx context.Context, attempt int) error {
		calls++
		if attempt < 2 {
			return ErrRateLimited
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestBackoffDoesNotRetryFatalErrors(t *testing.T) {
	p := BackoffPolicy{MaxAttempts: 3}
	fatal := errors.New("invalid api key")
	calls := 0
	err := p.Do(context.Background(), "test", func(ctx context.Context, attempt int) error {
		calls++
		return fatal
	})
	assert.ErrorIs(t, err, fatal)
	assert.NotErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, 1, calls)
}

func TestBackoffHonorsCancellationDuringWait(t *testing.T) {
	p := BackoffPolicy{MaxAttempts: 3, BaseDelay: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := p.Do(ctx, "test", func(ctx context.Context, attempt int) error {
		calls++
		cancel()
		return ErrServer
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(ErrTimeout))
	assert.True(t, IsTransient(fmt.Errorf("wrap: %w", ErrServer)))
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.True(t, IsTransient(errors.New("read tcp: connection reset by peer")))
	assert.False(t, IsTransient(errors.New("bad request")))
	assert.False(t, IsTransient(nil))
}

func TestEnclosingPolicyDoesNotRetryExhaustedInnerCalls(t *testing.T) {
	inner := BackoffPolicy{MaxAttempts: 3}
	outer := BackoffPolicy{MaxAttempts: 3}.Enclosing()
	calls := 0
	err := outer.Do(context.Background(), "outer", func(ctx context.Context, attempt int) error {
		return inner.Do(ctx, "inner", func(ctx context.Context, attempt int) error {
			calls++
			return ErrTimeout
		})
	})
	require.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, 3, calls)

	calls = 0
	err = outer.Do(context.Background(), "outer", func(ctx context.Context, attempt int) error {
		calls++
		return ErrTimeout
	})
	require.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, 3, calls)
}
