package conn

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), RetryPolicy{MaxRetries: 3, Delay: time.Millisecond}, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return driver.ErrBadConn
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryExhausted(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), RetryPolicy{MaxRetries: 2, Delay: time.Millisecond}, func(ctx context.Context) error {
		calls++
		return driver.ErrBadConn
	})

	assert.ErrorIs(t, err, driver.ErrBadConn)
	assert.Equal(t, 2, calls, "MaxRetries counts total attempts")
}

func TestRetryDoesNotRetrySQLErrors(t *testing.T) {
	calls := 0
	sqlErr := &pq.Error{Code: "23505"}
	err := Retry(context.Background(), RetryPolicy{Delay: time.Millisecond}, func(ctx context.Context) error {
		calls++
		return sqlErr
	})

	assert.Same(t, sqlErr, err)
	assert.Equal(t, 1, calls)
}

func TestRetryCustomPredicate(t *testing.T) {
	sentinel := errors.New("try again")
	calls := 0
	policy := RetryPolicy{
		MaxRetries: 5,
		Delay:      time.Millisecond,
		Retryable:  func(err error) bool { return errors.Is(err, sentinel) },
	}

	err := Retry(context.Background(), policy, func(ctx context.Context) error {
		calls++
		return sentinel
	})

	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 5, calls)
}

func TestRetryStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Retry(ctx, RetryPolicy{MaxRetries: 10, Delay: time.Hour}, func(ctx context.Context) error {
		calls++
		cancel()
		return driver.ErrBadConn
	})

	assert.ErrorIs(t, err, driver.ErrBadConn)
	assert.Equal(t, 1, calls)
}

func TestRetryValue(t *testing.T) {
	calls := 0
	v, err := RetryValue(context.Background(), RetryPolicy{Delay: time.Millisecond}, func(ctx context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, driver.ErrBadConn
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestRetryPolicyDefaults(t *testing.T) {
	p := RetryPolicy{}.withDefaults()

	assert.Equal(t, DefaultMaxRetries, p.MaxRetries)
	assert.Equal(t, DefaultRetryDelay, p.Delay)
	assert.NotNil(t, p.Retryable)
}
