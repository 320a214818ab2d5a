package kurirgo

import (
	"fmt"
	"log"
	"os"
	"strings"
)

// Logger is the minimal leveled logging interface used for debug output.
// Messages carry alternating key/value pairs in the variadic argument.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// SimpleLogger writes structured lines to the standard library logger.
// It exists so debugging needs no external logging dependency; production
// users plug their own Logger via WithLogger.
type SimpleLogger struct {
	logger *log.Logger
}

// NewSimpleLogger creates a console logger writing to stderr.
func NewSimpleLogger() *SimpleLogger {
	return &SimpleLogger{
		logger: log.New(os.Stderr, "kurirgo ", log.LstdFlags|log.Lmicroseconds),
	}
}

// Debug logs at debug level.
func (l *SimpleLogger) Debug(msg string, keysAndValues ...any) {
	l.print("DEBUG", msg, keysAndValues)
}

// Info logs at info level.
func (l *SimpleLogger) Info(msg string, keysAndValues ...any) {
	l.print("INFO", msg, keysAndValues)
}

// Warn logs at warn level.
func (l *SimpleLogger) Warn(msg string, keysAndValues ...any) {
	l.print("WARN", msg, keysAndValues)
}

// Error logs at error level.
func (l *SimpleLogger) Error(msg string, keysAndValues ...any) {
	l.print("ERROR", msg, keysAndValues)
}

func (l *SimpleLogger) print(level, msg string, keysAndValues []any) {
	if len(keysAndValues) == 0 {
		l.logger.Printf("[%s] %s", level, msg)
		return
	}

	var b strings.Builder
	for i := 0; i < len(keysAndValues); i += 2 {
		if i > 0 {
			b.WriteByte(' ')
		}
		key := fmt.Sprintf("%v", keysAndValues[i])
		if i+1 < len(keysAndValues) {
			fmt.Fprintf(&b, "%s=%v", key, keysAndValues[i+1])
		} else {
			b.WriteString(key)
		}
	}
	l.logger.Printf("[%s] %s %s", level, msg, b.String())
}
