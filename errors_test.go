package kurirgo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestErrorFormatting(t *testing.T) {
	err := &Error{
		Type:    ErrorTypeNetwork,
		Message: "connection failed",
	}

	got := err.Error()
	if got != "Network: connection failed" {
		t.Errorf("Error() = %q, want %q", got, "Network: connection failed")
	}
}

func TestErrorFormattingWithCause(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := &Error{
		Type:    ErrorTypeNetwork,
		Message: "connection failed",
		Cause:   cause,
	}

	got := err.Error()
	if !strings.Contains(got, "connection failed") {
		t.Errorf("Error() = %q, missing message", got)
	}
	if !strings.Contains(got, "dial tcp: refused") {
		t.Errorf("Error() = %q, missing cause", got)
	}
}

func TestErrorFormattingWithRequestIDAndAttempt(t *testing.T) {
	err := &Error{
		Type:      ErrorTypeServer,
		Message:   "endpoint returned 503",
		RequestID: "ab12cd34",
		Attempt:   2,
	}

	got := err.Error()
	if !strings.HasPrefix(got, "[ab12cd34]") {
		t.Errorf("Error() = %q, want request id prefix", got)
	}
	if !strings.Contains(got, "(attempt 2)") {
		t.Errorf("Error() = %q, want attempt suffix", got)
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{Type: ErrorTypeServer, Message: "failed", Cause: cause}

	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}
	if err.Unwrap() != cause {
		t.Error("Unwrap() should return the cause")
	}
}

func TestErrorIsMatchesType(t *testing.T) {
	err := &Error{Type: ErrorTypeThrottle, Message: "slow down"}
	target := &Error{Type: ErrorTypeThrottle}

	if !errors.Is(err, target) {
		t.Error("errors.Is should match on Type")
	}

	other := &Error{Type: ErrorTypeAuth}
	if errors.Is(err, other) {
		t.Error("errors.Is should not match a different Type")
	}
}

func TestErrorIsSentinel(t *testing.T) {
	err := &Error{
		Type:    ErrorTypeCircuitOpen,
		Message: "circuit breaker is open",
		Cause:   ErrCircuitOpen,
	}

	if !errors.Is(err, ErrCircuitOpen) {
		t.Error("errors.Is should find ErrCircuitOpen through the cause chain")
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"network", &Error{Type: ErrorTypeNetwork}, true},
		{"server", &Error{Type: ErrorTypeServer}, true},
		{"throttle", &Error{Type: ErrorTypeThrottle}, true},
		{"circuit open", &Error{Type: ErrorTypeCircuitOpen}, true},
		{"circuit open sentinel", ErrCircuitOpen, true},
		{"auth", &Error{Type: ErrorTypeAuth}, false},
		{"refresh", &Error{Type: ErrorTypeRefresh}, false},
		{"validation", &Error{Type: ErrorTypeValidation}, false},
		{"cancelled", &Error{Type: ErrorTypeCancelled}, false},
		{"not found", &Error{Type: ErrorTypeNotFound}, false},
		{"client", &Error{Type: ErrorTypeClient}, false},
		{"plain error", errors.New("whatever"), false},
		{"wrapped transient", fmt.Errorf("outer: %w", &Error{Type: ErrorTypeServer}), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsCancelled(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"classified", &Error{Type: ErrorTypeCancelled}, true},
		{"context canceled", context.Canceled, true},
		{"context deadline", context.DeadlineExceeded, true},
		{"wrapped context", fmt.Errorf("call: %w", context.Canceled), true},
		{"network", &Error{Type: ErrorTypeNetwork}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsCancelled(tt.err); got != tt.want {
				t.Errorf("IsCancelled(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsNotFoundAndIsAuth(t *testing.T) {
	if !IsNotFound(&Error{Type: ErrorTypeNotFound}) {
		t.Error("IsNotFound should match NotFound errors")
	}
	if IsNotFound(&Error{Type: ErrorTypeServer}) {
		t.Error("IsNotFound should reject Server errors")
	}
	if !IsAuth(&Error{Type: ErrorTypeAuth}) {
		t.Error("IsAuth should match Auth errors")
	}
	if IsAuth(nil) {
		t.Error("IsAuth(nil) should be false")
	}
}

func TestAsErrorPassesThroughClassified(t *testing.T) {
	orig := &Error{Type: ErrorTypeServer, Message: "boom"}

	got := asError(orig)
	if got != orig {
		t.Error("asError should return the classified error unchanged")
	}
}

func TestAsErrorWrapsUnclassified(t *testing.T) {
	plain := errors.New("socket closed")

	got := asError(plain)
	if got.Type != ErrorTypeNetwork {
		t.Errorf("asError type = %s, want %s", got.Type, ErrorTypeNetwork)
	}
	if !errors.Is(got, plain) {
		t.Error("asError should keep the original as cause")
	}
}

func TestCancellationError(t *testing.T) {
	err := cancellationError(context.Canceled)
	if err.Type != ErrorTypeCancelled {
		t.Errorf("type = %s, want %s", err.Type, ErrorTypeCancelled)
	}
	if !errors.Is(err, context.Canceled) {
		t.Error("cause should be context.Canceled")
	}

	deadline := cancellationError(context.DeadlineExceeded)
	if !strings.Contains(deadline.Message, "deadline") {
		t.Errorf("deadline message = %q, want mention of deadline", deadline.Message)
	}
}

func TestDebugInfo(t *testing.T) {
	err := &Error{
		Type:       ErrorTypeServer,
		Message:    "endpoint returned 503",
		StatusCode: 503,
		RetryAfter: 2 * time.Second,
		RequestID:  "ab12cd34",
		Method:     "GET",
		Target:     "/users",
		Attempt:    1,
		Timestamp:  time.Now(),
	}

	info := err.DebugInfo()
	for _, want := range []string{"Server", "503", "ab12cd34", "GET", "/users"} {
		if !strings.Contains(info, want) {
			t.Errorf("DebugInfo() missing %q:\n%s", want, info)
		}
	}
}

func TestNilErrorMethods(t *testing.T) {
	var err *Error

	if err.Error() != "<nil>" {
		t.Errorf("nil Error() = %q", err.Error())
	}
	if err.Unwrap() != nil {
		t.Error("nil Unwrap() should be nil")
	}
	if err.Is(ErrCircuitOpen) {
		t.Error("nil Is() should be false")
	}
}
