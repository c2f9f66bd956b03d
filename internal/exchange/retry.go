package exchange

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/sony/gobreaker"
)

// RetryOptions configures bounded exponential backoff over a venue call,
// adapted from the teacher's internal/architecture.RetryOptions.
type RetryOptions struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	Jitter         float64
}

// DefaultRetryOptions matches the specification's venue retry policy: up to
// 3 attempts, waiting about 1s and then 2s between them (±10% jitter).
func DefaultRetryOptions() RetryOptions {
	return RetryOptions{MaxAttempts: 3, InitialBackoff: 1 * time.Second, Jitter: 0.1}
}

// WithRetry executes fn, retrying on RetryableError with exponential backoff
// and making at most opts.MaxAttempts calls in total. Non-retryable errors
// and nil are returned immediately.
func WithRetry(ctx context.Context, opts RetryOptions, fn func() error) error {
	var err error
	for attempt := 0; attempt < opts.MaxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}

		var re RetryableError
		if !errors.As(err, &re) || !re.Retryable() {
			return err
		}
		if attempt == opts.MaxAttempts-1 {
			return err
		}

		backoff := float64(opts.InitialBackoff) * math.Pow(2, float64(attempt))
		if opts.Jitter > 0 {
			backoff += (rand.Float64()*2 - 1) * opts.Jitter * backoff
		}

		timer := time.NewTimer(time.Duration(backoff))
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
	return err
}

// NewBreaker builds a circuit breaker around venue calls, grounded on the
// teacher's github.com/sony/gobreaker dependency: once a symbol's error
// rate trips the breaker, calls fail fast instead of piling up retries
// against a down venue.
func NewBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
}
