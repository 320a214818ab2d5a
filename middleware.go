package kurirgo

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Middleware wraps transport dispatch. Middlewares run in registration
// order, the first one outermost, around every attempt of every call.
type Middleware func(ctx context.Context, req *Request, next Transport) (*Response, error)

// chainMiddleware composes middlewares around a terminal transport.
func chainMiddleware(transport Transport, middleware []Middleware) Transport {
	if len(middleware) == 0 {
		return transport
	}

	current := transport
	for i := len(middleware) - 1; i >= 0; i-- {
		mw := middleware[i]
		next := current
		current = TransportFunc(func(ctx context.Context, req *Request) (*Response, error) {
			return mw(ctx, req, next)
		})
	}

	return current
}

// TracingMiddleware emits one client span per dispatch attempt carrying
// the request method, target and outcome.
func TracingMiddleware(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, req *Request, next Transport) (*Response, error) {
		ctx, span := tracer.Start(ctx, "kurirgo.send",
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				attribute.String("kurirgo.method", req.Method),
				attribute.String("kurirgo.target", req.Target),
			),
		)
		defer span.End()

		resp, err := next.Send(ctx, req)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, errorTypeOf(err))
			return nil, err
		}

		span.SetAttributes(attribute.Int("kurirgo.status_code", resp.StatusCode))
		span.SetStatus(codes.Ok, "")
		return resp, nil
	}
}
