package embedding

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
)

// Default retry policy for remote embedding calls.
const (
	DefaultMaxAttempts = 4
	DefaultBaseDelay   = 500 * time.Millisecond
	DefaultMaxDelay    = 30 * time.Second
)

// transientPatterns match transport error messages worth retrying.
var transientPatterns = []string{
	"timeout",
	"connection reset",
	"connection refused",
	"socket hang up",
	"fetch failed",
}

// retryableStatuses are HTTP statuses worth retrying.
var retryableStatuses = map[int]bool{
	429: true, 500: true, 502: true, 503: true, 504: true,
}

// httpError carries the status and optional Retry-After of a failed
// remote API call.
type httpError struct {
	status     int
	retryAfter time.Duration
	body       string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.status, e.body)
}

// RetryPolicy retries transient failures with exponential backoff plus
// jitter: baseDelay * 2^attempt + random*baseDelay, capped at maxDelay.
// A Retry-After below the cap takes precedence.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy returns the default policy for remote providers.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
	}
}

// Do invokes fn until it succeeds, fails permanently, or attempts are
// exhausted.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		retryable, retryAfter := classify(err)
		if !retryable || attempt >= attempts-1 {
			break
		}

		delay := p.delay(attempt, retryAfter)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return lastErr
}

func (p RetryPolicy) delay(attempt int, retryAfter time.Duration) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = DefaultBaseDelay
	}
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}

	if retryAfter > 0 && retryAfter < maxDelay {
		return retryAfter
	}

	delay := base*(1<<attempt) + time.Duration(rand.Float64()*float64(base))
	if delay > maxDelay {
		delay = maxDelay
	}
	return delay
}

// classify reports whether an error is worth retrying and any
// server-provided Retry-After.
func classify(err error) (bool, time.Duration) {
	var he *httpError
	if errors.As(err, &he) {
		return retryableStatuses[he.status], he.retryAfter
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range transientPatterns {
		if strings.Contains(msg, pattern) {
			return true, 0
		}
	}
	return false, 0
}
