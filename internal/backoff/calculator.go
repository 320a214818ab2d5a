package backoff

import (
	"time"
)

// Calculator provides backoff calculation using a configurable strategy.
// It centralizes delay math so retry policies stay decision-only.
type Calculator struct {
	strategy Strategy
}

// NewCalculator creates a backoff calculator with the specified strategy.
func NewCalculator(strategy Strategy) *Calculator {
	return &Calculator{
		strategy: strategy,
	}
}

// Calculate computes the delay for the given attempt and parameters by
// delegating to the configured strategy.
func (c *Calculator) Calculate(attempt int, base, maxDelay time.Duration, jitter float64) time.Duration {
	return c.strategy.Calculate(attempt, base, maxDelay, jitter)
}

// GetFixedCalculator returns a calculator with a constant delay strategy.
func GetFixedCalculator() *Calculator {
	return NewCalculator(FixedStrategy{})
}

// GetLinearCalculator returns a calculator with a linearly growing delay.
func GetLinearCalculator() *Calculator {
	return NewCalculator(LinearStrategy{})
}

// GetExponentialCalculator returns a calculator with a doubling delay.
// This is the default used by retry policies.
func GetExponentialCalculator() *Calculator {
	return NewCalculator(ExponentialStrategy{})
}
