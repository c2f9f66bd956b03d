package exchange

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithRetrySucceedsOnFirstAttempt(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), RetryOptions{MaxAttempts: 3, InitialBackoff: time.Millisecond}, func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestWithRetryStopsImmediatelyOnNonRetryable(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), RetryOptions{MaxAttempts: 3, InitialBackoff: time.Millisecond}, func() error {
		calls++
		return NewNonRetryableVenueError("invalid_symbol", "bad symbol")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls, "a non-retryable error must not be retried")
}

func TestWithRetryStopsImmediatelyOnPlainError(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), RetryOptions{MaxAttempts: 3, InitialBackoff: time.Millisecond}, func() error {
		calls++
		return errors.New("not a RetryableError at all")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestWithRetryExhaustsMaxAttemptsOnRetryable(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), RetryOptions{MaxAttempts: 3, InitialBackoff: time.Millisecond}, func() error {
		calls++
		return NewRetryableVenueError("timeout", "venue slow")
	})
	assert.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetrySucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), RetryOptions{MaxAttempts: 3, InitialBackoff: time.Millisecond}, func() error {
		calls++
		if calls < 3 {
			return NewRetryableVenueError("timeout", "venue slow")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetryAbortsOnContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	cancel()
	err := WithRetry(ctx, RetryOptions{MaxAttempts: 3, InitialBackoff: time.Second}, func() error {
		calls++
		return NewRetryableVenueError("timeout", "venue slow")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls, "the retry loop must observe cancellation before sleeping out a second attempt")
}

func TestClassifyCodeMatchesNonRetryableList(t *testing.T) {
	assert.False(t, ClassifyCode("invalid_symbol"))
	assert.False(t, ClassifyCode("invalid_quantity"))
	assert.False(t, ClassifyCode("insufficient_balance"))
	assert.False(t, ClassifyCode("invalid_key"))
	assert.False(t, ClassifyCode("permission_denied"))
	assert.True(t, ClassifyCode("timeout"))
}

func TestNewBreakerTripsAfterConsecutiveFailures(t *testing.T) {
	b := NewBreaker("test-breaker")
	failing := func() (interface{}, error) { return nil, errors.New("boom") }

	for i := 0; i < 5; i++ {
		_, _ = b.Execute(failing)
	}

	_, err := b.Execute(func() (interface{}, error) { return "ok", nil })
	assert.Error(t, err, "the breaker must be open and fail fast after 5 consecutive failures")
}
