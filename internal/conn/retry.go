package conn

import (
	"context"
	"log/slog"
	"time"
)

// Defaults used when a RetryPolicy leaves a field unset.
const (
	DefaultMaxRetries = 3
	DefaultRetryDelay = 10 * time.Millisecond
)

// RetryPolicy configures Retry.
type RetryPolicy struct {
	// MaxRetries is the total number of attempts. Zero means DefaultMaxRetries.
	MaxRetries int

	// Delay is the pause between attempts. Zero means DefaultRetryDelay.
	Delay time.Duration

	// Retryable decides whether an error warrants another attempt.
	// Nil means IsTransient.
	Retryable func(error) bool
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxRetries <= 0 {
		p.MaxRetries = DefaultMaxRetries
	}
	if p.Delay <= 0 {
		p.Delay = DefaultRetryDelay
	}
	if p.Retryable == nil {
		p.Retryable = IsTransient
	}
	return p
}

// Retry calls fn until it succeeds, returns a non-retryable error, or the
// policy runs out of attempts. The last error is returned unchanged.
// Waiting between attempts honours ctx.
func Retry(ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) error) error {
	_, err := RetryValue(ctx, policy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// RetryValue is Retry for operations that produce a value.
func RetryValue[T any](ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	policy = policy.withDefaults()

	var zero T
	for attempt := 1; ; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if !policy.Retryable(err) || attempt >= policy.MaxRetries {
			return zero, err
		}

		slog.Warn("retrying after transient database error",
			"attempt", attempt,
			"max_retries", policy.MaxRetries,
			"error", err,
		)

		timer := time.NewTimer(policy.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, err
		case <-timer.C:
		}
	}
}
