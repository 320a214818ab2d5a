package kurirgo

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/trace/noop"
)

func TestChainMiddlewareEmpty(t *testing.T) {
	transport := TransportFunc(func(ctx context.Context, req *Request) (*Response, error) {
		return &Response{StatusCode: 200}, nil
	})

	chained := chainMiddleware(transport, nil)

	resp, err := chained.Send(context.Background(), NewRequest("GET", "/x"))
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestChainMiddlewareOrder(t *testing.T) {
	var order []string

	record := func(name string) Middleware {
		return func(ctx context.Context, req *Request, next Transport) (*Response, error) {
			order = append(order, name+":before")
			resp, err := next.Send(ctx, req)
			order = append(order, name+":after")
			return resp, err
		}
	}

	transport := TransportFunc(func(ctx context.Context, req *Request) (*Response, error) {
		order = append(order, "transport")
		return &Response{StatusCode: 200}, nil
	})

	chained := chainMiddleware(transport, []Middleware{record("first"), record("second")})

	if _, err := chained.Send(context.Background(), NewRequest("GET", "/x")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	want := []string{"first:before", "second:before", "transport", "second:after", "first:after"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestChainMiddlewareCanModifyRequest(t *testing.T) {
	var seen string
	transport := TransportFunc(func(ctx context.Context, req *Request) (*Response, error) {
		seen = req.Header["X-Injected"]
		return &Response{StatusCode: 200}, nil
	})

	inject := func(ctx context.Context, req *Request, next Transport) (*Response, error) {
		return next.Send(ctx, req.WithHeader("X-Injected", "yes"))
	}

	chained := chainMiddleware(transport, []Middleware{inject})

	if _, err := chained.Send(context.Background(), NewRequest("GET", "/x")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if seen != "yes" {
		t.Errorf("transport saw X-Injected=%q, want %q", seen, "yes")
	}
}

func TestChainMiddlewareShortCircuit(t *testing.T) {
	reached := false
	transport := TransportFunc(func(ctx context.Context, req *Request) (*Response, error) {
		reached = true
		return &Response{StatusCode: 200}, nil
	})

	block := func(ctx context.Context, req *Request, next Transport) (*Response, error) {
		return nil, errors.New("blocked")
	}

	chained := chainMiddleware(transport, []Middleware{block})

	_, err := chained.Send(context.Background(), NewRequest("GET", "/x"))
	if err == nil || err.Error() != "blocked" {
		t.Errorf("err = %v, want blocked", err)
	}
	if reached {
		t.Error("transport should not run when middleware short-circuits")
	}
}

func TestTracingMiddlewareSuccess(t *testing.T) {
	tracer := noop.NewTracerProvider().Tracer("test")

	transport := TransportFunc(func(ctx context.Context, req *Request) (*Response, error) {
		return &Response{StatusCode: 200}, nil
	})

	chained := chainMiddleware(transport, []Middleware{TracingMiddleware(tracer)})

	resp, err := chained.Send(context.Background(), NewRequest("GET", "/traced"))
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestTracingMiddlewareError(t *testing.T) {
	tracer := noop.NewTracerProvider().Tracer("test")

	transport := TransportFunc(func(ctx context.Context, req *Request) (*Response, error) {
		return nil, &Error{Type: ErrorTypeNetwork, Message: "boom"}
	})

	chained := chainMiddleware(transport, []Middleware{TracingMiddleware(tracer)})

	_, err := chained.Send(context.Background(), NewRequest("GET", "/traced"))
	var e *Error
	if !errors.As(err, &e) || e.Type != ErrorTypeNetwork {
		t.Errorf("err = %v, want the transport's Network error", err)
	}
}
