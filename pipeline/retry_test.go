// ABOUTME: Tests for retry policies: backoff delay math, jitter bounds, and the
// ABOUTME: default should-retry predicate's handling of cancellation.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestDelayForAttemptGrowsAndCaps(t *testing.T) {
	b := BackoffConfig{InitialDelay: 100 * time.Millisecond, Factor: 2.0, MaxDelay: 500 * time.Millisecond}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{3, 500 * time.Millisecond}, // capped
		{10, 500 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := b.DelayForAttempt(tt.attempt); got != tt.want {
			t.Errorf("DelayForAttempt(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestDelayForAttemptJitterStaysInBounds(t *testing.T) {
	b := BackoffConfig{InitialDelay: 100 * time.Millisecond, Factor: 2.0, MaxDelay: time.Second, Jitter: true}

	for i := 0; i < 50; i++ {
		d := b.DelayForAttempt(2)
		if d < 0 || d > 400*time.Millisecond {
			t.Fatalf("jittered delay %v outside [0, 400ms]", d)
		}
	}
}

func TestDefaultShouldRetry(t *testing.T) {
	if DefaultShouldRetry(context.Canceled) {
		t.Error("should not retry context.Canceled")
	}
	if DefaultShouldRetry(context.DeadlineExceeded) {
		t.Error("should not retry context.DeadlineExceeded")
	}
	if DefaultShouldRetry(fmt.Errorf("wrapped: %w", context.Canceled)) {
		t.Error("should not retry wrapped cancellation")
	}
	if !DefaultShouldRetry(errors.New("provider down")) {
		t.Error("should retry ordinary errors")
	}
}

func TestNormalizeZeroPolicy(t *testing.T) {
	p := RetryPolicy{}.normalize()

	if p.MaxAttempts != 1 {
		t.Errorf("MaxAttempts = %d, want 1", p.MaxAttempts)
	}
	if p.Backoff.InitialDelay <= 0 || p.Backoff.Factor <= 0 || p.Backoff.MaxDelay <= 0 {
		t.Errorf("backoff defaults not applied: %+v", p.Backoff)
	}
	if p.ShouldRetry == nil {
		t.Error("ShouldRetry not defaulted")
	}
}

func TestPresetPolicies(t *testing.T) {
	if got := RetryPolicyNone().MaxAttempts; got != 1 {
		t.Errorf("none MaxAttempts = %d, want 1", got)
	}
	if got := RetryPolicyStandard().MaxAttempts; got != 3 {
		t.Errorf("standard MaxAttempts = %d, want 3", got)
	}
	if !RetryPolicyStandard().Backoff.Jitter {
		t.Error("standard policy should jitter")
	}
}
