package kurirgo

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Throttle caps outbound dispatch using a token bucket. Waiting respects
// the caller's context, so a cancelled call never burns a token.
type Throttle struct {
	limiter *rate.Limiter
}

// NewThrottle builds a throttle admitting rps requests per second with
// the given burst. Non-positive values fall back to sane defaults.
func NewThrottle(rps float64, burst int) *Throttle {
	if rps <= 0 {
		rps = 10
	}
	if burst <= 0 {
		burst = 1
	}
	return &Throttle{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Wait blocks until a token is available or ctx ends.
func (t *Throttle) Wait(ctx context.Context) error {
	if t == nil {
		return nil
	}
	if err := t.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return cancellationError(ctx.Err())
		}
		return &Error{
			Type:      ErrorTypeThrottle,
			Message:   "throttle wait failed",
			Cause:     err,
			Timestamp: time.Now(),
		}
	}
	return nil
}

// Tokens reports the tokens currently available.
func (t *Throttle) Tokens() float64 {
	if t == nil {
		return 0
	}
	return t.limiter.Tokens()
}
