package kurirgo

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Error type constants classify every failure the orchestrator can
// surface. Classification happens once, at the transport boundary or at
// the layer that produced the failure; downstream code switches on Type
// and never re-inspects status codes or error strings.
const (
	ErrorTypeValidation          = "Validation"
	ErrorTypeNetwork             = "Network"
	ErrorTypeAuth                = "Auth"
	ErrorTypeRefresh             = "Refresh"
	ErrorTypeServer              = "Server"
	ErrorTypeClient              = "Client"
	ErrorTypeNotFound            = "NotFound"
	ErrorTypeCancelled           = "Cancelled"
	ErrorTypeBatch               = "Batch"
	ErrorTypeThrottle            = "Throttle"
	ErrorTypeCircuitOpen         = "CircuitOpen"
	ErrorTypeRetryBudgetExceeded = "RetryBudgetExceeded"
)

// Sentinel errors for common failure scenarios.
var (
	// ErrCircuitOpen is the cause carried when the circuit breaker rejects a call.
	ErrCircuitOpen = errors.New("kurirgo: circuit open")

	// ErrRetryBudgetExceeded is the cause carried when the retry budget is exhausted.
	ErrRetryBudgetExceeded = errors.New("kurirgo: retry budget exceeded")
)

// Error is the classified failure type surfaced by the orchestrator.
type Error struct {
	Type       string
	Message    string
	Cause      error
	StatusCode int
	RetryAfter time.Duration
	RequestID  string
	Method     string
	Target     string
	Attempt    int
	Timestamp  time.Time
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}

	msg := fmt.Sprintf("%s: %s", e.Type, e.Message)
	if e.Cause != nil {
		msg = fmt.Sprintf("%s (%v)", msg, e.Cause)
	}
	if e.RequestID != "" {
		msg = fmt.Sprintf("[%s] %s", e.RequestID, msg)
	}
	if e.Attempt > 0 {
		msg = fmt.Sprintf("%s (attempt %d)", msg, e.Attempt)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is compares error types for errors.Is.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	if targetErr, ok := target.(*Error); ok {
		return e.Type == targetErr.Type
	}
	return false
}

// DebugInfo renders a multi-line string with diagnostic context.
func (e *Error) DebugInfo() string {
	if e == nil {
		return "Error: <nil>"
	}
	info := fmt.Sprintf("Error Type: %s\n", e.Type)
	info += fmt.Sprintf("Message: %s\n", e.Message)
	if e.RequestID != "" {
		info += fmt.Sprintf("Request ID: %s\n", e.RequestID)
	}
	if e.Method != "" {
		info += fmt.Sprintf("Method: %s\n", e.Method)
	}
	if e.Target != "" {
		info += fmt.Sprintf("Target: %s\n", e.Target)
	}
	if e.StatusCode > 0 {
		info += fmt.Sprintf("Status Code: %d\n", e.StatusCode)
	}
	if e.RetryAfter > 0 {
		info += fmt.Sprintf("Retry After: %v\n", e.RetryAfter)
	}
	if e.Attempt > 0 {
		info += fmt.Sprintf("Attempt: %d\n", e.Attempt)
	}
	if !e.Timestamp.IsZero() {
		info += fmt.Sprintf("Timestamp: %s\n", e.Timestamp.Format(time.RFC3339))
	}
	if e.Cause != nil {
		info += fmt.Sprintf("Cause: %v\n", e.Cause)
	}
	return info
}

// IsTransient determines if an error represents a transient failure that
// might succeed on retry. Returns true for network errors, 5xx responses,
// throttling and an open circuit. Returns false for auth, refresh,
// validation, cancellation and other terminal failures.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrCircuitOpen) {
		return true
	}

	var e *Error
	if errors.As(err, &e) {
		switch e.Type {
		case ErrorTypeNetwork, ErrorTypeServer, ErrorTypeThrottle, ErrorTypeCircuitOpen:
			return true
		}
	}
	return false
}

// IsCancelled reports whether err is a cooperative cancellation, either a
// classified Cancelled failure or a bare context error.
func IsCancelled(err error) bool {
	if err == nil {
		return false
	}
	if errorTypeOf(err) == ErrorTypeCancelled {
		return true
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// IsNotFound reports whether err classifies as a missing remote resource.
func IsNotFound(err error) bool {
	return errorTypeOf(err) == ErrorTypeNotFound
}

// IsAuth reports whether err classifies as an authorization failure.
func IsAuth(err error) bool {
	return errorTypeOf(err) == ErrorTypeAuth
}

// errorTypeOf extracts the classification of err, or "" when err carries none.
func errorTypeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ""
}

// asError returns the classified form of err. Errors from custom
// transports that skip classification are treated as network failures.
func asError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{
		Type:      ErrorTypeNetwork,
		Message:   "transport failure",
		Cause:     err,
		Timestamp: time.Now(),
	}
}

// cancellationError builds the classified failure for a context that ended.
func cancellationError(cause error) *Error {
	msg := "call cancelled"
	if errors.Is(cause, context.DeadlineExceeded) {
		msg = "call deadline exceeded"
	}
	return &Error{
		Type:      ErrorTypeCancelled,
		Message:   msg,
		Cause:     cause,
		Timestamp: time.Now(),
	}
}
