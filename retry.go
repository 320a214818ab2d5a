package kurirgo

import (
	"sync/atomic"
	"time"

	"github.com/ambiyansyah-risyal/kurirgo/internal/backoff"
)

// RetryPolicy decides whether a failed attempt should be retried and how
// long to wait before the next one. Policies see only the classified
// failure and the zero-based attempt number; they never inspect transport
// internals. Implementations must be safe for concurrent use.
type RetryPolicy interface {
	ShouldRetry(err *Error, attempt int) (time.Duration, bool)
}

// BackoffStrategy selects the delay progression between attempts.
type BackoffStrategy int

const (
	// BackoffFixed waits the base delay before every retry.
	BackoffFixed BackoffStrategy = iota
	// BackoffLinear grows the delay by one base increment per attempt.
	BackoffLinear
	// BackoffExponential doubles the delay on every attempt.
	BackoffExponential
)

// RetryCondition reports whether a classified failure is worth retrying.
type RetryCondition func(err *Error) bool

// And builds a condition that passes only when both conditions pass.
func (c RetryCondition) And(d RetryCondition) RetryCondition {
	return func(err *Error) bool {
		return c(err) && d(err)
	}
}

// Or builds a condition that passes when either condition passes.
func (c RetryCondition) Or(d RetryCondition) RetryCondition {
	return func(err *Error) bool {
		return c(err) || d(err)
	}
}

// DefaultRetryCondition retries transient failures: network problems, 5xx
// responses, throttling and an open circuit. Auth, refresh, validation,
// cancellation and remote 4xx outcomes are terminal.
func DefaultRetryCondition(err *Error) bool {
	if err == nil {
		return false
	}
	switch err.Type {
	case ErrorTypeNetwork, ErrorTypeServer, ErrorTypeThrottle, ErrorTypeCircuitOpen:
		return true
	default:
		return false
	}
}

// DefaultRetryPolicy implements RetryPolicy with a configurable backoff
// strategy, a delay ceiling and an optional eligibility condition.
// With jitter 0 the delay sequence is fully deterministic.
type DefaultRetryPolicy struct {
	maxRetries int
	base       time.Duration
	maxDelay   time.Duration
	strategy   BackoffStrategy
	jitter     float64
	condition  RetryCondition
	calc       *backoff.Calculator
}

// NewRetryPolicy creates a retry policy. maxRetries bounds retries after
// the initial attempt; base seeds the delay progression; delays are
// clamped to maxDelay; jitter in [0,1] adds up to that fraction of random
// extra delay.
func NewRetryPolicy(strategy BackoffStrategy, maxRetries int, base, maxDelay time.Duration, jitter float64) *DefaultRetryPolicy {
	return NewRetryPolicyWithCondition(strategy, maxRetries, base, maxDelay, jitter, DefaultRetryCondition)
}

// NewRetryPolicyWithCondition creates a retry policy using a custom
// eligibility condition.
func NewRetryPolicyWithCondition(strategy BackoffStrategy, maxRetries int, base, maxDelay time.Duration, jitter float64, condition RetryCondition) *DefaultRetryPolicy {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	if maxDelay <= 0 {
		maxDelay = 10 * time.Second
	}
	if jitter < 0 {
		jitter = 0
	}
	if jitter > 1 {
		jitter = 1
	}
	if condition == nil {
		condition = DefaultRetryCondition
	}

	return &DefaultRetryPolicy{
		maxRetries: maxRetries,
		base:       base,
		maxDelay:   maxDelay,
		strategy:   strategy,
		jitter:     jitter,
		condition:  condition,
		calc:       calculatorFor(strategy),
	}
}

func calculatorFor(strategy BackoffStrategy) *backoff.Calculator {
	switch strategy {
	case BackoffFixed:
		return backoff.GetFixedCalculator()
	case BackoffLinear:
		return backoff.GetLinearCalculator()
	default:
		return backoff.GetExponentialCalculator()
	}
}

// ShouldRetry implements the RetryPolicy interface. Cancellation is never
// retried regardless of the configured condition. A server-provided
// Retry-After hint overrides the computed delay, clamped to the ceiling.
func (p *DefaultRetryPolicy) ShouldRetry(err *Error, attempt int) (time.Duration, bool) {
	if err == nil {
		return 0, false
	}
	if attempt >= p.maxRetries {
		return 0, false
	}
	if err.Type == ErrorTypeCancelled {
		return 0, false
	}
	if !p.condition(err) {
		return 0, false
	}

	if hint := err.RetryAfter; hint > 0 {
		if hint > p.maxDelay {
			hint = p.maxDelay
		}
		return hint, true
	}

	return p.calc.Calculate(attempt, p.base, p.maxDelay, p.jitter), true
}

// RetryBudget caps the total number of retries across all calls within a
// rolling window, guarding the upstream against retry storms. The counter
// is lock-free.
type RetryBudget struct {
	limit       int64
	window      time.Duration
	used        int64
	windowStart int64
}

// NewRetryBudget allows at most limit retries per window.
func NewRetryBudget(limit int, window time.Duration) *RetryBudget {
	return &RetryBudget{
		limit:       int64(limit),
		window:      window,
		windowStart: time.Now().UnixNano(),
	}
}

// Allow reports whether another retry fits in the current window and
// consumes a slot when it does.
func (rb *RetryBudget) Allow() bool {
	now := time.Now().UnixNano()
	windowStart := atomic.LoadInt64(&rb.windowStart)

	if now-windowStart >= int64(rb.window) {
		if atomic.CompareAndSwapInt64(&rb.windowStart, windowStart, now) {
			atomic.StoreInt64(&rb.used, 0)
		}
	}

	if atomic.LoadInt64(&rb.used) >= rb.limit {
		return false
	}
	return atomic.AddInt64(&rb.used, 1) <= rb.limit
}

// Stats returns the consumed slots, the limit and the window start.
func (rb *RetryBudget) Stats() (used, limit int64, windowStart time.Time) {
	return atomic.LoadInt64(&rb.used),
		rb.limit,
		time.Unix(0, atomic.LoadInt64(&rb.windowStart))
}
