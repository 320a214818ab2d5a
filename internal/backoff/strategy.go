package backoff

import (
	"math/rand"
	"time"
)

// Strategy defines the interface for backoff delay calculation.
// Implementations must be stateless so a single value can serve
// concurrent retry loops.
type Strategy interface {
	// Calculate returns the delay before the retry following the given
	// zero-based attempt, derived from base and clamped to maxDelay.
	Calculate(attempt int, base, maxDelay time.Duration, jitter float64) time.Duration
}

// FixedStrategy waits the base delay before every retry.
type FixedStrategy struct{}

// Calculate implements Strategy with a constant delay.
func (FixedStrategy) Calculate(attempt int, base, maxDelay time.Duration, jitter float64) time.Duration {
	return finishDelay(base, maxDelay, jitter)
}

// LinearStrategy grows the delay by one base increment per attempt:
// base, 2*base, 3*base, ...
type LinearStrategy struct{}

// Calculate implements Strategy with linear growth.
func (LinearStrategy) Calculate(attempt int, base, maxDelay time.Duration, jitter float64) time.Duration {
	attempt = clampAttempt(attempt)
	delay := time.Duration(float64(base) * float64(attempt+1))
	return finishDelay(delay, maxDelay, jitter)
}

// ExponentialStrategy doubles the delay on every attempt:
// base, 2*base, 4*base, ...
type ExponentialStrategy struct{}

// Calculate implements Strategy with exponential growth.
func (ExponentialStrategy) Calculate(attempt int, base, maxDelay time.Duration, jitter float64) time.Duration {
	attempt = clampAttempt(attempt)
	delay := time.Duration(float64(base) * pow(2, attempt))
	return finishDelay(delay, maxDelay, jitter)
}

// clampAttempt bounds the attempt number so exponent math cannot overflow.
func clampAttempt(attempt int) int {
	if attempt < 0 {
		return 0
	}
	if attempt > 30 {
		return 30
	}
	return attempt
}

// finishDelay clamps the computed delay to maxDelay and applies uniform
// jitter. With jitter 0 the result is deterministic.
func finishDelay(delay, maxDelay time.Duration, jitter float64) time.Duration {
	if delay < 0 || (maxDelay > 0 && delay > maxDelay) {
		delay = maxDelay
	}

	jitter = clampJitter(jitter)
	if jitter > 0 {
		amount := time.Duration(float64(delay) * jitter * rand.Float64())
		if maxDelay > 0 && delay+amount > maxDelay {
			return maxDelay
		}
		return delay + amount
	}
	return delay
}

// clampJitter ensures jitter is within valid bounds [0, 1].
func clampJitter(jitter float64) float64 {
	if jitter < 0 {
		return 0
	}
	if jitter > 1 {
		return 1
	}
	return jitter
}

// pow calculates base^exponent using integer exponentiation.
func pow(base float64, exponent int) float64 {
	result := 1.0
	for i := 0; i < exponent; i++ {
		result *= base
	}
	return result
}
