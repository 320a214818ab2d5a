package kurirgo

import (
	"github.com/google/uuid"
)

// DebugConfig controls debug logging per concern. Flags gate log volume
// so a single noisy layer can be inspected in isolation.
type DebugConfig struct {
	Enabled      bool
	LogRequests  bool
	LogRetries   bool
	LogDedup     bool
	LogBatch     bool
	LogAuth      bool
	LogThrottle  bool
	LogCircuit   bool
	LogCache     bool
	RequestIDGen func() string
}

// DefaultDebugConfig returns a config with all areas enabled but debug
// itself off; WithDebug or WithSimpleLogger flips the master switch.
func DefaultDebugConfig() *DebugConfig {
	return &DebugConfig{
		Enabled:      false,
		LogRequests:  true,
		LogRetries:   true,
		LogDedup:     true,
		LogBatch:     true,
		LogAuth:      true,
		LogThrottle:  true,
		LogCircuit:   true,
		LogCache:     true,
		RequestIDGen: defaultRequestID,
	}
}

// defaultRequestID returns a short unique id for correlating log lines of
// one logical call.
func defaultRequestID() string {
	return uuid.NewString()[:8]
}
