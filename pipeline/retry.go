// ABOUTME: Retry policy configuration and exponential backoff delay calculation for stage execution.
// ABOUTME: Provides preset policies and the default should-retry predicate (never retries cancellation).
package pipeline

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy controls how many times a stage execution is retried on failure.
type RetryPolicy struct {
	MaxAttempts int // minimum 1 (1 = no retries)
	Backoff     BackoffConfig
	ShouldRetry func(error) bool
}

// BackoffConfig controls delay timing between retry attempts.
type BackoffConfig struct {
	InitialDelay time.Duration // default 200ms
	Factor       float64       // default 2.0
	MaxDelay     time.Duration // default 30s
	Jitter       bool          // default true
}

// DelayForAttempt calculates the delay for a given attempt number (0-indexed).
// The formula is InitialDelay * Factor^attempt, capped at MaxDelay. With
// Jitter the delay is randomized in [0, calculated_delay].
func (b BackoffConfig) DelayForAttempt(attempt int) time.Duration {
	baseNanos := float64(b.InitialDelay.Nanoseconds()) * math.Pow(b.Factor, float64(attempt))
	maxNanos := float64(b.MaxDelay.Nanoseconds())
	delayNanos := math.Min(baseNanos, maxNanos)

	if b.Jitter {
		delayNanos = rand.Float64() * delayNanos
	}

	return time.Duration(int64(delayNanos))
}

// RetryPolicyNone returns a policy with no retries (single attempt).
func RetryPolicyNone() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 1,
		Backoff: BackoffConfig{
			InitialDelay: 200 * time.Millisecond,
			Factor:       2.0,
			MaxDelay:     30 * time.Second,
		},
		ShouldRetry: DefaultShouldRetry,
	}
}

// RetryPolicyStandard returns the standard policy: 3 attempts with
// exponential backoff and jitter.
func RetryPolicyStandard() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Backoff: BackoffConfig{
			InitialDelay: 200 * time.Millisecond,
			Factor:       2.0,
			MaxDelay:     30 * time.Second,
			Jitter:       true,
		},
		ShouldRetry: DefaultShouldRetry,
	}
}

// DefaultShouldRetry retries any error except context cancellation and
// deadline expiry: an interrupt must surface immediately, not spin in the
// backoff loop.
func DefaultShouldRetry(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// normalize fills zero fields with defaults so a zero-valued RetryPolicy
// behaves as a single attempt.
func (p RetryPolicy) normalize() RetryPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.Backoff.InitialDelay <= 0 {
		p.Backoff.InitialDelay = 200 * time.Millisecond
	}
	if p.Backoff.Factor <= 0 {
		p.Backoff.Factor = 2.0
	}
	if p.Backoff.MaxDelay <= 0 {
		p.Backoff.MaxDelay = 30 * time.Second
	}
	if p.ShouldRetry == nil {
		p.ShouldRetry = DefaultShouldRetry
	}
	return p
}
