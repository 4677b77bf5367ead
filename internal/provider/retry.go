package provider

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// RetryPolicy bounds exponential backoff for upstream calls.
type RetryPolicy struct {
	Attempts int           // total tries, including the first
	Base     time.Duration // first backoff
	Factor   float64       // backoff multiplier
	Jitter   float64       // +/- fraction applied to each backoff
}

// DefaultRetryPolicy matches the provider contract: 3 tries, 250ms base,
// factor 2, jitter +/-25%.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Base: 250 * time.Millisecond, Factor: 2, Jitter: 0.25}
}

// retryable marks an error worth another attempt (5xx, timeout).
type retryable struct{ err error }

func (r retryable) Error() string { return r.err.Error() }
func (r retryable) Unwrap() error { return r.err }

// Retryable wraps err so Retry will back off and try again.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return retryable{err: err}
}

// IsRetryable reports whether err was marked retryable.
func IsRetryable(err error) bool {
	var r retryable
	return errors.As(err, &r)
}

// Retry runs fn under the policy. Non-retryable errors return
// immediately; exhausting attempts returns the last error unwrapped.
func Retry(ctx context.Context, policy RetryPolicy, fn func() error) error {
	if policy.Attempts < 1 {
		policy.Attempts = 1
	}
	backoff := policy.Base

	var err error
	for attempt := 1; attempt <= policy.Attempts; attempt++ {
		err = fn()
		if err == nil || !IsRetryable(err) {
			return unwrapRetryable(err)
		}
		if attempt == policy.Attempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(jittered(backoff, policy.Jitter)):
		}
		backoff = time.Duration(float64(backoff) * policy.Factor)
	}
	return unwrapRetryable(err)
}

func unwrapRetryable(err error) error {
	var r retryable
	if errors.As(err, &r) {
		return r.err
	}
	return err
}

func jittered(d time.Duration, jitter float64) time.Duration {
	if jitter <= 0 {
		return d
	}
	// Uniform in [1-jitter, 1+jitter].
	scale := 1 + jitter*(2*rand.Float64()-1)
	return time.Duration(float64(d) * scale)
}
