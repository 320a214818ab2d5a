package kurirgo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Transport sends a prepared request and classifies the outcome. A nil
// error means the endpoint answered successfully; every failure is
// returned as a typed *Error so downstream layers can act on the
// classification alone. Implementations must honor ctx as the abort
// signal for the attempt.
type Transport interface {
	Send(ctx context.Context, req *Request) (*Response, error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, req *Request) (*Response, error)

// Send implements Transport.
func (f TransportFunc) Send(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// Response is the successful outcome of a call. The body is fully
// buffered; callers may share a Response across waiters and must treat it
// as read-only.
type Response struct {
	StatusCode int
	Header     map[string]string
	Body       []byte
}

// Decode unmarshals the JSON body into v.
func (r *Response) Decode(v any) error {
	if r == nil {
		return fmt.Errorf("kurirgo: decode on nil response")
	}
	return json.Unmarshal(r.Body, v)
}

// HTTPTransport sends requests over HTTP and maps the response status to
// the failure taxonomy: 401 becomes Auth, 404 NotFound, 429 Throttle,
// other 4xx Client, 5xx Server; connection problems become Network and a
// cancelled context Cancelled. Retry-After headers on 429 and 503 are
// parsed into the failure so retry policies can honor server pacing.
type HTTPTransport struct {
	client  *http.Client
	baseURL string
}

// NewHTTPTransport creates a transport resolving targets against baseURL.
// An empty baseURL requires absolute URL targets.
func NewHTTPTransport(baseURL string) *HTTPTransport {
	return NewHTTPTransportWithClient(baseURL, &http.Client{Timeout: 30 * time.Second})
}

// NewHTTPTransportWithClient creates a transport using the supplied client.
func NewHTTPTransportWithClient(baseURL string, client *http.Client) *HTTPTransport {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPTransport{client: client, baseURL: strings.TrimSuffix(baseURL, "/")}
}

// Send implements Transport.
func (t *HTTPTransport) Send(ctx context.Context, req *Request) (*Response, error) {
	target, err := t.resolveURL(req)
	if err != nil {
		return nil, &Error{
			Type:      ErrorTypeValidation,
			Message:   "invalid request target",
			Cause:     err,
			Method:    req.Method,
			Target:    req.Target,
			Timestamp: time.Now(),
		}
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, &Error{
			Type:      ErrorTypeValidation,
			Message:   "building request failed",
			Cause:     err,
			Method:    req.Method,
			Target:    req.Target,
			Timestamp: time.Now(),
		}
	}
	for name, value := range req.Header {
		httpReq.Header.Set(name, value)
	}

	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, classifySendError(ctx, req, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &Error{
			Type:       ErrorTypeNetwork,
			Message:    "reading response body failed",
			Cause:      err,
			StatusCode: httpResp.StatusCode,
			Method:     req.Method,
			Target:     req.Target,
			Timestamp:  time.Now(),
		}
	}

	if httpResp.StatusCode < 400 {
		header := make(map[string]string, len(httpResp.Header))
		for name := range httpResp.Header {
			header[name] = httpResp.Header.Get(name)
		}
		return &Response{
			StatusCode: httpResp.StatusCode,
			Header:     header,
			Body:       respBody,
		}, nil
	}

	return nil, classifyStatus(req, httpResp)
}

func (t *HTTPTransport) resolveURL(req *Request) (string, error) {
	raw := req.Target
	if t.baseURL != "" && !strings.Contains(raw, "://") {
		if !strings.HasPrefix(raw, "/") {
			raw = "/" + raw
		}
		raw = t.baseURL + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}

	if len(req.Params) > 0 {
		q := u.Query()
		for name, value := range req.Params {
			q.Set(name, value)
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// classifySendError maps a transport-level failure. The context is
// consulted first so cancellation wins over whatever the connection was
// doing when it died.
func classifySendError(ctx context.Context, req *Request, err error) *Error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		e := cancellationError(ctxErr)
		e.Method = req.Method
		e.Target = req.Target
		return e
	}

	msg := "connection failed"
	if timeoutErr, ok := err.(interface{ Timeout() bool }); ok && timeoutErr.Timeout() {
		msg = "request timed out"
	}
	return &Error{
		Type:      ErrorTypeNetwork,
		Message:   msg,
		Cause:     err,
		Method:    req.Method,
		Target:    req.Target,
		Timestamp: time.Now(),
	}
}

func classifyStatus(req *Request, resp *http.Response) *Error {
	e := &Error{
		Message:    fmt.Sprintf("endpoint returned %d %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
		StatusCode: resp.StatusCode,
		Method:     req.Method,
		Target:     req.Target,
		Timestamp:  time.Now(),
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		e.Type = ErrorTypeAuth
		e.Message = "authorization rejected"
	case resp.StatusCode == http.StatusNotFound:
		e.Type = ErrorTypeNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		e.Type = ErrorTypeThrottle
		e.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
	case resp.StatusCode >= 500:
		e.Type = ErrorTypeServer
		e.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
	default:
		e.Type = ErrorTypeClient
	}
	return e
}

// parseRetryAfter parses the Retry-After header value. It supports both
// delay-seconds format and HTTP-date format, capped at one hour.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
		if seconds > 0 {
			delay := time.Duration(seconds) * time.Second
			if delay > time.Hour {
				delay = time.Hour
			}
			return delay
		}
		return 0
	}

	if t, err := http.ParseTime(value); err == nil {
		delay := time.Until(t)
		if delay > 0 && delay <= time.Hour {
			return delay
		}
	}

	return 0
}
