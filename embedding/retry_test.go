package embedding

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond}
}

func TestRetryPolicy_Do_succeeds_after_transient_failures(t *testing.T) {
	t.Parallel()

	calls := 0
	err := fastPolicy().Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection reset by peer")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryPolicy_Do_does_not_retry_permanent_errors(t *testing.T) {
	t.Parallel()

	calls := 0
	err := fastPolicy().Do(context.Background(), func(ctx context.Context) error {
		calls++
		return &httpError{status: 401, body: "unauthorized"}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryPolicy_Do_retries_retryable_statuses(t *testing.T) {
	t.Parallel()

	for _, status := range []int{429, 500, 502, 503, 504} {
		calls := 0
		err := fastPolicy().Do(context.Background(), func(ctx context.Context) error {
			calls++
			return &httpError{status: status}
		})
		require.Error(t, err)
		assert.Equal(t, 3, calls, "status %d should be retried to exhaustion", status)
	}
}

func TestRetryPolicy_Do_exhausts_attempts(t *testing.T) {
	t.Parallel()

	calls := 0
	err := fastPolicy().Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errors.New("timeout awaiting response")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryPolicy_delay_honours_retry_after(t *testing.T) {
	t.Parallel()

	p := RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Minute}
	assert.Equal(t, 5*time.Second, p.delay(0, 5*time.Second))

	// A Retry-After beyond the cap falls back to backoff.
	d := p.delay(0, 2*time.Minute)
	assert.Less(t, d, time.Minute+time.Millisecond)
}

func TestClassify_transient_patterns(t *testing.T) {
	t.Parallel()

	for _, msg := range []string{
		"dial tcp: connection refused",
		"read: connection reset",
		"context deadline exceeded (Client.Timeout)",
		"socket hang up",
		"fetch failed",
	} {
		ok, _ := classify(errors.New(msg))
		assert.True(t, ok, "%q should be retryable", msg)
	}

	ok, _ := classify(errors.New("invalid request body"))
	assert.False(t, ok)
}
