package kurirgo

import (
	"sync/atomic"
	"time"
)

// CircuitState represents the current state of the circuit breaker
type CircuitState int64

const (
	// StateClosed allows requests through
	StateClosed CircuitState = iota
	// StateOpen rejects requests until the recovery timeout elapses
	StateOpen
	// StateHalfOpen admits probe requests to test recovery
	StateHalfOpen
)

// String returns a human-readable state name.
func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures failure detection and recovery.
type CircuitBreakerConfig struct {
	// FailureThreshold opens the circuit once this many dispatch
	// failures accumulate.
	FailureThreshold int
	// RecoveryTimeout is how long the circuit stays open before probing.
	RecoveryTimeout time.Duration
	// SuccessThreshold closes a half-open circuit after this many
	// consecutive probe successes.
	SuccessThreshold int
}

// CircuitBreaker sheds dispatches while a target is failing. All state
// lives in atomics so the hot path never takes a lock.
type CircuitBreaker struct {
	config      CircuitBreakerConfig
	state       int64
	failures    int64
	successes   int64
	lastFailure int64
}

// NewCircuitBreaker creates a circuit breaker with the given config,
// filling unset fields with defaults.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 5
	}
	if config.RecoveryTimeout == 0 {
		config.RecoveryTimeout = 60 * time.Second
	}
	if config.SuccessThreshold == 0 {
		config.SuccessThreshold = 2
	}

	return &CircuitBreaker{
		config: config,
		state:  int64(StateClosed),
	}
}

// Allow reports whether a dispatch may proceed. An open circuit past its
// recovery timeout transitions to half-open and admits the caller as a
// probe.
func (cb *CircuitBreaker) Allow() bool {
	now := time.Now().UnixNano()
	state := CircuitState(atomic.LoadInt64(&cb.state))

	switch state {
	case StateClosed:
		return true
	case StateOpen:
		lastFailure := atomic.LoadInt64(&cb.lastFailure)
		if now-lastFailure >= int64(cb.config.RecoveryTimeout) {
			if atomic.CompareAndSwapInt64(&cb.state, int64(StateOpen), int64(StateHalfOpen)) {
				atomic.StoreInt64(&cb.successes, 0)
				return true
			}
		}
		return false
	case StateHalfOpen:
		return true
	default:
		return false
	}
}

// RecordFailure notes a failed dispatch. A half-open circuit reopens
// immediately.
func (cb *CircuitBreaker) RecordFailure() {
	now := time.Now().UnixNano()
	atomic.StoreInt64(&cb.lastFailure, now)

	state := CircuitState(atomic.LoadInt64(&cb.state))

	switch state {
	case StateClosed:
		failures := atomic.AddInt64(&cb.failures, 1)
		if failures >= int64(cb.config.FailureThreshold) {
			atomic.StoreInt64(&cb.state, int64(StateOpen))
		}
	case StateOpen:
		// Already open; lastFailure extends the recovery window.
	case StateHalfOpen:
		atomic.AddInt64(&cb.failures, 1)
		atomic.StoreInt64(&cb.state, int64(StateOpen))
		atomic.StoreInt64(&cb.successes, 0)
	}
}

// RecordSuccess notes a successful dispatch. Enough consecutive probe
// successes close a half-open circuit.
func (cb *CircuitBreaker) RecordSuccess() {
	state := CircuitState(atomic.LoadInt64(&cb.state))

	switch state {
	case StateClosed, StateOpen:
		// No transition from a success in these states.
	case StateHalfOpen:
		successes := atomic.AddInt64(&cb.successes, 1)
		if successes >= int64(cb.config.SuccessThreshold) {
			atomic.StoreInt64(&cb.state, int64(StateClosed))
			atomic.StoreInt64(&cb.failures, 0)
			atomic.StoreInt64(&cb.successes, 0)
		}
	}
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	return CircuitState(atomic.LoadInt64(&cb.state))
}
