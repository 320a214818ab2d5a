package kurirgo

import (
	"crypto/sha256"
	"fmt"
	"hash/fnv"
	"sort"
	"time"
)

// Request describes one logical call to the remote endpoint: a method, a
// target identifier (path or operation name), optional parameters, headers
// and body. A Request is treated as immutable once handed to the client;
// per-attempt variants such as credential injection work on clones.
type Request struct {
	Method string
	Target string
	Params map[string]string
	Header map[string]string
	Body   []byte
}

// NewRequest builds a request with the given method and target.
func NewRequest(method, target string) *Request {
	return &Request{Method: method, Target: target}
}

// WithParam returns a copy of the request with the parameter set.
func (r *Request) WithParam(name, value string) *Request {
	c := r.clone()
	if c.Params == nil {
		c.Params = make(map[string]string, 1)
	}
	c.Params[name] = value
	return c
}

// WithHeader returns a copy of the request with the header set.
func (r *Request) WithHeader(name, value string) *Request {
	c := r.clone()
	if c.Header == nil {
		c.Header = make(map[string]string, 1)
	}
	c.Header[name] = value
	return c
}

// WithBody returns a copy of the request carrying body.
func (r *Request) WithBody(body []byte) *Request {
	c := r.clone()
	c.Body = body
	return c
}

// clone copies the request deeply enough that mutating the copy's maps
// never touches the original.
func (r *Request) clone() *Request {
	c := &Request{
		Method: r.Method,
		Target: r.Target,
		Body:   r.Body,
	}
	if r.Params != nil {
		c.Params = make(map[string]string, len(r.Params))
		for k, v := range r.Params {
			c.Params[k] = v
		}
	}
	if r.Header != nil {
		c.Header = make(map[string]string, len(r.Header))
		for k, v := range r.Header {
			c.Header[k] = v
		}
	}
	return c
}

// validate rejects requests the transport could never send. It runs before
// any registry or window registration so a malformed call fails without
// leaving shared state behind.
func (r *Request) validate() error {
	if r == nil {
		return &Error{
			Type:      ErrorTypeValidation,
			Message:   "request is nil",
			Timestamp: time.Now(),
		}
	}
	if r.Method == "" {
		return &Error{
			Type:      ErrorTypeValidation,
			Message:   "request method is empty",
			Timestamp: time.Now(),
		}
	}
	if r.Target == "" {
		return &Error{
			Type:      ErrorTypeValidation,
			Message:   "request target is empty",
			Timestamp: time.Now(),
		}
	}
	return nil
}

// FingerprintFunc builds the identity key for coalescing concurrent
// identical calls.
type FingerprintFunc func(*Request) string

// DefaultFingerprint hashes method, target, sorted parameters and, for
// mutating methods, the body. Headers do not participate, so per-attempt
// credential injection never splits an in-flight group.
func DefaultFingerprint(req *Request) string {
	h := fnv.New64a()
	h.Write([]byte(req.Method))
	h.Write([]byte{0})
	h.Write([]byte(req.Target))

	if len(req.Params) > 0 {
		keys := make([]string, 0, len(req.Params))
		for k := range req.Params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			h.Write([]byte{0})
			h.Write([]byte(k))
			h.Write([]byte{'='})
			h.Write([]byte(req.Params[k]))
		}
	}

	if len(req.Body) > 0 && isMutating(req.Method) {
		sum := sha256.Sum256(req.Body)
		h.Write(sum[:])
	}

	return fmt.Sprintf("%x", h.Sum64())
}

// DedupCondition decides whether a request is eligible for in-flight
// coalescing.
type DedupCondition func(*Request) bool

// DefaultDedupCondition coalesces safe idempotent methods only.
func DefaultDedupCondition(req *Request) bool {
	return isIdempotent(req.Method)
}

func isIdempotent(method string) bool {
	switch method {
	case "GET", "HEAD", "OPTIONS":
		return true
	default:
		return false
	}
}

func isMutating(method string) bool {
	switch method {
	case "POST", "PUT", "PATCH":
		return true
	default:
		return false
	}
}
