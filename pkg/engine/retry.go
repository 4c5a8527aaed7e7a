package engine

import (
	"context"

	"github.com/rs/zerolog"
)

// DefaultMaxAttempts is one attempt plus one immediate retry.
const DefaultMaxAttempts = 2

// RetryPolicy retries transiently failing actions a bounded number of times.
// Retries are immediate: the failures it absorbs are registry and network
// blips, not rate limits.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// Logger receives one warning per retry.
	Logger zerolog.Logger

	// OnRetry, if set, is called before each retry with the failed attempt number.
	OnRetry func(name string, attempt int, err error)
}

// NewRetryPolicy creates a policy with the given attempt budget.
func NewRetryPolicy(maxAttempts int, logger zerolog.Logger) RetryPolicy {
	return RetryPolicy{MaxAttempts: maxAttempts, Logger: logger}
}

// Do runs action until it succeeds or the attempt budget is exhausted and
// returns the number of attempts made with the last error, unchanged.
func (p RetryPolicy) Do(ctx context.Context, name string, action func(ctx context.Context) error) (int, error) {
	_, attempts, err := WithRetry(ctx, p, name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, action(ctx)
	})
	return attempts, err
}

// WithRetry runs action up to p.MaxAttempts times and returns the first
// success. A budget below one is treated as a single attempt. Cancellation of
// ctx stops further attempts.
func WithRetry[T any](ctx context.Context, p RetryPolicy, name string, action func(ctx context.Context) (T, error)) (T, int, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var (
		value T
		err   error
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		value, err = action(ctx)
		if err == nil {
			return value, attempt, nil
		}

		if attempt == maxAttempts || ctx.Err() != nil {
			return value, attempt, err
		}

		p.Logger.Warn().
			Err(err).
			Str("step", name).
			Int("attempt", attempt).
			Int("max_attempts", maxAttempts).
			Msgf("%s failed; retrying...", name)

		if p.OnRetry != nil {
			p.OnRetry(name, attempt, err)
		}
	}

	return value, maxAttempts, err
}
