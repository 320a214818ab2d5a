package kurirgo

import (
	"testing"
	"time"
)

func TestRetryPolicyExponentialSequence(t *testing.T) {
	policy := NewRetryPolicy(BackoffExponential, 5, 100*time.Millisecond, 800*time.Millisecond, 0)
	err := &Error{Type: ErrorTypeServer}

	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		800 * time.Millisecond,
	}

	for attempt, wantDelay := range want {
		delay, retry := policy.ShouldRetry(err, attempt)
		if !retry {
			t.Fatalf("attempt %d: should retry", attempt)
		}
		if delay != wantDelay {
			t.Errorf("attempt %d: delay = %v, want %v", attempt, delay, wantDelay)
		}
	}

	if _, retry := policy.ShouldRetry(err, 5); retry {
		t.Error("attempt 5 should exhaust maxRetries=5")
	}
}

func TestRetryPolicyFixedSequence(t *testing.T) {
	policy := NewRetryPolicy(BackoffFixed, 3, 50*time.Millisecond, time.Second, 0)
	err := &Error{Type: ErrorTypeNetwork}

	for attempt := 0; attempt < 3; attempt++ {
		delay, retry := policy.ShouldRetry(err, attempt)
		if !retry || delay != 50*time.Millisecond {
			t.Errorf("attempt %d: delay=%v retry=%v, want 50ms true", attempt, delay, retry)
		}
	}
}

func TestRetryPolicyLinearSequence(t *testing.T) {
	policy := NewRetryPolicy(BackoffLinear, 4, 100*time.Millisecond, time.Second, 0)
	err := &Error{Type: ErrorTypeServer}

	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		300 * time.Millisecond,
		400 * time.Millisecond,
	}

	for attempt, wantDelay := range want {
		delay, retry := policy.ShouldRetry(err, attempt)
		if !retry || delay != wantDelay {
			t.Errorf("attempt %d: delay=%v retry=%v, want %v true", attempt, delay, retry, wantDelay)
		}
	}
}

func TestRetryPolicyNilError(t *testing.T) {
	policy := NewRetryPolicy(BackoffExponential, 3, 100*time.Millisecond, time.Second, 0)

	if _, retry := policy.ShouldRetry(nil, 0); retry {
		t.Error("nil error should never retry")
	}
}

func TestRetryPolicyCancelledNeverRetries(t *testing.T) {
	policy := NewRetryPolicyWithCondition(BackoffExponential, 3, 100*time.Millisecond, time.Second, 0,
		func(err *Error) bool { return true })

	if _, retry := policy.ShouldRetry(&Error{Type: ErrorTypeCancelled}, 0); retry {
		t.Error("cancellation must stop retries even when the condition allows everything")
	}
}

func TestRetryPolicyConditionVeto(t *testing.T) {
	policy := NewRetryPolicy(BackoffExponential, 3, 100*time.Millisecond, time.Second, 0)

	nonRetryable := []*Error{
		{Type: ErrorTypeAuth},
		{Type: ErrorTypeValidation},
		{Type: ErrorTypeNotFound},
		{Type: ErrorTypeClient},
		{Type: ErrorTypeRefresh},
	}
	for _, err := range nonRetryable {
		if _, retry := policy.ShouldRetry(err, 0); retry {
			t.Errorf("%s should not be retried by default", err.Type)
		}
	}

	retryable := []*Error{
		{Type: ErrorTypeNetwork},
		{Type: ErrorTypeServer},
		{Type: ErrorTypeThrottle},
		{Type: ErrorTypeCircuitOpen},
	}
	for _, err := range retryable {
		if _, retry := policy.ShouldRetry(err, 0); !retry {
			t.Errorf("%s should be retried by default", err.Type)
		}
	}
}

func TestRetryPolicyRetryAfterHint(t *testing.T) {
	policy := NewRetryPolicy(BackoffExponential, 3, 100*time.Millisecond, 10*time.Second, 0)

	err := &Error{Type: ErrorTypeThrottle, RetryAfter: 3 * time.Second}
	delay, retry := policy.ShouldRetry(err, 0)
	if !retry {
		t.Fatal("throttle should be retried")
	}
	if delay != 3*time.Second {
		t.Errorf("delay = %v, want server hint 3s", delay)
	}
}

func TestRetryPolicyRetryAfterHintClamped(t *testing.T) {
	policy := NewRetryPolicy(BackoffExponential, 3, 100*time.Millisecond, 2*time.Second, 0)

	err := &Error{Type: ErrorTypeServer, RetryAfter: time.Minute}
	delay, retry := policy.ShouldRetry(err, 0)
	if !retry {
		t.Fatal("server error should be retried")
	}
	if delay != 2*time.Second {
		t.Errorf("delay = %v, want maxDelay clamp 2s", delay)
	}
}

func TestRetryPolicyJitterBounds(t *testing.T) {
	policy := NewRetryPolicy(BackoffExponential, 3, 100*time.Millisecond, 10*time.Second, 0.5)
	err := &Error{Type: ErrorTypeServer}

	for i := 0; i < 100; i++ {
		delay, retry := policy.ShouldRetry(err, 1)
		if !retry {
			t.Fatal("should retry")
		}
		base := 200 * time.Millisecond
		if delay < base || delay > base+base/2 {
			t.Fatalf("jittered delay %v outside [%v, %v]", delay, base, base+base/2)
		}
	}
}

func TestRetryConditionCombinators(t *testing.T) {
	isServer := RetryCondition(func(err *Error) bool { return err.Type == ErrorTypeServer })
	is503 := RetryCondition(func(err *Error) bool { return err.StatusCode == 503 })

	both := isServer.And(is503)
	either := isServer.Or(is503)

	tests := []struct {
		name       string
		err        *Error
		wantAnd    bool
		wantEither bool
	}{
		{"server 503", &Error{Type: ErrorTypeServer, StatusCode: 503}, true, true},
		{"server 500", &Error{Type: ErrorTypeServer, StatusCode: 500}, false, true},
		{"throttle 503", &Error{Type: ErrorTypeThrottle, StatusCode: 503}, false, true},
		{"client 400", &Error{Type: ErrorTypeClient, StatusCode: 400}, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := both(tt.err); got != tt.wantAnd {
				t.Errorf("And = %v, want %v", got, tt.wantAnd)
			}
			if got := either(tt.err); got != tt.wantEither {
				t.Errorf("Or = %v, want %v", got, tt.wantEither)
			}
		})
	}
}

func TestRetryPolicyDefaults(t *testing.T) {
	policy := NewRetryPolicy(BackoffExponential, -1, 0, 0, 2.0)

	if policy.maxRetries != 0 {
		t.Errorf("negative maxRetries should clamp to 0, got %d", policy.maxRetries)
	}
	if policy.base != 100*time.Millisecond {
		t.Errorf("base default = %v, want 100ms", policy.base)
	}
	if policy.maxDelay != 10*time.Second {
		t.Errorf("maxDelay default = %v, want 10s", policy.maxDelay)
	}
	if policy.jitter < 0 || policy.jitter > 1 {
		t.Errorf("jitter should be clamped to [0,1], got %v", policy.jitter)
	}
}

func TestRetryBudget(t *testing.T) {
	budget := NewRetryBudget(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !budget.Allow() {
			t.Fatalf("retry %d should be within budget", i)
		}
	}
	if budget.Allow() {
		t.Error("fourth retry should exceed the budget")
	}

	used, limit, _ := budget.Stats()
	if limit != 3 {
		t.Errorf("limit = %d, want 3", limit)
	}
	if used < 3 {
		t.Errorf("used = %d, want at least 3", used)
	}
}

func TestRetryBudgetWindowReset(t *testing.T) {
	budget := NewRetryBudget(1, 20*time.Millisecond)

	if !budget.Allow() {
		t.Fatal("first retry should be allowed")
	}
	if budget.Allow() {
		t.Fatal("second retry should be denied in the same window")
	}

	time.Sleep(30 * time.Millisecond)

	if !budget.Allow() {
		t.Error("retry should be allowed after the window rolls over")
	}
}
