package kurirgo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client is a resilient asynchronous request orchestrator. It layers
// retries, in-flight deduplication, credential refresh, batching,
// throttling, circuit breaking, caching, middleware and metrics around a
// pluggable transport. It is safe for concurrent use.
type Client struct {
	transport Transport
	sender    Transport

	maxRetries      int
	initialBackoff  time.Duration
	maxBackoff      time.Duration
	backoffStrategy BackoffStrategy
	jitter          float64
	retryCondition  RetryCondition
	retryPolicy     RetryPolicy
	retryBudget     *RetryBudget

	registry       *InFlightRegistry
	fingerprint    FingerprintFunc
	dedupCondition DedupCondition

	credentials CredentialSource
	refresher   *CredentialRefresher
	credHeader  string
	credScheme  string

	batchConfig *BatchConfig
	batcher     *BatchCoalescer

	throttle         *Throttle
	throttleRegistry *ThrottleRegistry
	circuitBreaker   *CircuitBreaker

	cache          Cache
	cacheTTL       time.Duration
	cacheCondition CacheCondition

	attemptTimeout time.Duration

	middleware []Middleware

	metrics *MetricsCollector
	debug   *DebugConfig
	logger  Logger

	validationError error
}

// Option represents a configuration option.
type Option func(*Client)

// New constructs a Client using the provided functional options. A best
// effort validation is performed; Call surfaces the validation error, and
// IsValid / ValidationError expose it directly.
func New(options ...Option) *Client {
	client := &Client{
		transport:       NewHTTPTransport(""),
		maxRetries:      3,
		initialBackoff:  100 * time.Millisecond,
		maxBackoff:      10 * time.Second,
		backoffStrategy: BackoffExponential,
		jitter:          0,
		retryCondition:  DefaultRetryCondition,
		retryPolicy:     nil,
		retryBudget:     nil,
		registry:        NewInFlightRegistry(),
		fingerprint:     DefaultFingerprint,
		dedupCondition:  DefaultDedupCondition,
		credHeader:      "Authorization",
		credScheme:      "Bearer ",
		throttle:        nil,
		circuitBreaker:  nil,
		cache:           nil,
		cacheTTL:        5 * time.Minute,
		cacheCondition:  DefaultCacheCondition,
		middleware:      []Middleware{},
		metrics:         nil,
		debug:           DefaultDebugConfig(),
		logger:          nil,
	}

	for _, option := range options {
		option(client)
	}

	if err := client.ValidateConfiguration(); err != nil {
		client.validationError = err
	}

	if client.retryPolicy == nil {
		client.retryPolicy = NewRetryPolicyWithCondition(
			client.backoffStrategy,
			client.maxRetries,
			client.initialBackoff,
			client.maxBackoff,
			client.jitter,
			client.retryCondition,
		)
	}

	if client.credentials != nil {
		client.refresher = NewCredentialRefresher(client.credentials)
		client.refresher.onRefresh = client.metrics.RecordCredentialRefresh
	}

	client.sender = chainMiddleware(client.transport, client.middleware)

	if client.batchConfig != nil {
		client.batcher = newBatchCoalescer(*client.batchConfig, client.sendBatch)
		client.batcher.onFlush = client.observeBatchFlush
	}

	return client
}

// Get performs a GET call against target.
func (c *Client) Get(ctx context.Context, target string, opts ...CallOption) (*Response, error) {
	return c.Call(ctx, NewRequest(http.MethodGet, target), opts...)
}

// Post performs a POST call with a JSON body.
func (c *Client) Post(ctx context.Context, target string, body []byte, opts ...CallOption) (*Response, error) {
	req := NewRequest(http.MethodPost, target).
		WithHeader("Content-Type", "application/json").
		WithBody(body)
	return c.Call(ctx, req, opts...)
}

// GetJSON performs a GET call and decodes the JSON response body into v.
func (c *Client) GetJSON(ctx context.Context, target string, v any, opts ...CallOption) error {
	resp, err := c.Get(ctx, target, opts...)
	if err != nil {
		return err
	}
	return resp.Decode(v)
}

// PostJSON performs a POST call marshaling body as JSON and decodes the
// response into v. A nil v skips decoding.
func (c *Client) PostJSON(ctx context.Context, target string, body, v any, opts ...CallOption) error {
	data, err := json.Marshal(body)
	if err != nil {
		return &Error{
			Type:      ErrorTypeValidation,
			Message:   "marshaling request body failed",
			Cause:     err,
			Method:    http.MethodPost,
			Target:    target,
			Timestamp: time.Now(),
		}
	}

	resp, err := c.Post(ctx, target, data, opts...)
	if err != nil {
		return err
	}
	if v == nil {
		return nil
	}
	return resp.Decode(v)
}

// Call executes one logical call applying all reliability layers. The
// settled outcome is exactly one of a *Response or an error; ctx cancels
// this caller's participation at any point.
func (c *Client) Call(ctx context.Context, req *Request, opts ...CallOption) (*Response, error) {
	start := time.Now()

	if c.validationError != nil {
		return nil, c.validationError
	}

	if err := req.validate(); err != nil {
		return nil, err
	}

	settings := newCallSettings(opts)

	requestID := c.newRequestID()

	if c.debug != nil && c.debug.Enabled && c.debug.LogRequests && c.logger != nil {
		c.logger.Debug("Starting call", "requestID", requestID, "method", req.Method, "target", req.Target)
	}

	if settings.slot != nil {
		var ticket *slotTicket
		var preempted bool
		ctx, ticket, preempted = settings.slot.bind(ctx)
		defer settings.slot.release(ticket)

		if preempted {
			if c.metrics != nil {
				c.metrics.RecordSupersession()
			}
			if c.debug != nil && c.debug.Enabled && c.debug.LogRequests && c.logger != nil {
				c.logger.Debug("Superseded previous call", "requestID", requestID, "target", req.Target)
			}
		}
	}

	if c.metrics != nil {
		c.metrics.RecordCallStart(req.Method, req.Target)
	}

	resp, err := c.callShared(ctx, req, settings, requestID)

	if c.metrics != nil {
		c.metrics.RecordCallEnd(req.Method, req.Target)
	}

	duration := time.Since(start)
	statusCode := 0
	if resp != nil {
		statusCode = resp.StatusCode
	}
	if c.metrics != nil {
		c.metrics.RecordCall(req.Method, req.Target, statusCode, duration)
	}

	return resp, err
}

// callShared folds identical concurrent calls into one shared operation.
// The first caller owns the dispatch; later ones join and wait. Every
// sharer receives the identical settled outcome, except callers whose
// context ends first, which get their own cancellation.
func (c *Client) callShared(ctx context.Context, req *Request, settings *callSettings, requestID string) (*Response, error) {
	dedupEnabled := settings.dedupe && c.dedupCondition(req)
	if !dedupEnabled {
		return c.run(ctx, req, settings, requestID)
	}

	key := c.fingerprint(req)
	entry, owner := c.registry.Acquire(ctx, key)

	if owner {
		go func() {
			resp, err := c.run(entry.Context(), req, settings, requestID)
			c.registry.Settle(entry, resp, err)
		}()
	} else {
		if c.metrics != nil {
			c.metrics.RecordDedupHit(req.Method, req.Target)
		}
		if c.debug != nil && c.debug.Enabled && c.debug.LogDedup && c.logger != nil {
			c.logger.Debug("Joined in-flight call", "requestID", requestID, "key", key)
		}
	}

	return entry.Wait(ctx)
}

// run resolves one shared operation: cache lookup, then either batch
// enqueue or the dispatch loop, then cache fill.
func (c *Client) run(ctx context.Context, req *Request, settings *callSettings, requestID string) (*Response, error) {
	cacheEnabled := c.cache != nil && !settings.cacheOff && c.cacheCondition(req)

	var cacheKey string
	if cacheEnabled {
		cacheKey = c.fingerprint(req)
		if entry, found := c.cache.Get(cacheKey); found {
			if c.metrics != nil {
				c.metrics.RecordCacheHit(req.Method, req.Target)
			}
			if c.debug != nil && c.debug.Enabled && c.debug.LogCache && c.logger != nil {
				c.logger.Debug("Cache hit", "requestID", requestID, "cacheKey", cacheKey)
			}
			return entry.Response, nil
		}

		if c.metrics != nil {
			c.metrics.RecordCacheMiss(req.Method, req.Target)
		}
		if c.debug != nil && c.debug.Enabled && c.debug.LogCache && c.logger != nil {
			c.logger.Debug("Cache miss", "requestID", requestID, "cacheKey", cacheKey)
		}
	}

	var resp *Response
	var err error
	if settings.batchable && c.batcher != nil {
		if c.debug != nil && c.debug.Enabled && c.debug.LogBatch && c.logger != nil {
			c.logger.Debug("Enqueued into batch window", "requestID", requestID, "target", req.Target)
		}
		resp, err = c.batcher.Enqueue(ctx, req)
	} else {
		resp, err = c.dispatch(ctx, req, settings.policy(c), requestID)
	}

	if cacheEnabled && err == nil && resp != nil && resp.StatusCode < 400 {
		ttl := settings.ttl(c)
		c.cache.Set(cacheKey, &CacheEntry{Response: resp}, ttl)

		if mem, ok := c.cache.(*InMemoryCache); ok && c.metrics != nil {
			c.metrics.RecordCacheSize("default", mem.Len())
		}
		if c.debug != nil && c.debug.Enabled && c.debug.LogCache && c.logger != nil {
			c.logger.Debug("Response cached", "requestID", requestID, "cacheKey", cacheKey, "ttl", ttl)
		}
	}

	return resp, err
}

// dispatch runs the attempt loop: throttle, circuit breaker, credential
// injection, send, then classification into return, auth-refresh cycle,
// or backoff and retry. Attempts are strictly sequential; cancellation
// wins over any pending retry.
func (c *Client) dispatch(ctx context.Context, req *Request, policy RetryPolicy, requestID string) (*Response, error) {
	attempt := 0
	authRetried := false

	for {
		if ctx.Err() != nil {
			return nil, cancellationError(ctx.Err())
		}

		throttle, throttleKey := c.throttleFor(req)
		if err := throttle.Wait(ctx); err != nil {
			if c.debug != nil && c.debug.Enabled && c.debug.LogThrottle && c.logger != nil {
				c.logger.Warn("Throttle wait failed", "requestID", requestID, "key", throttleKey, "target", req.Target)
			}
			if c.metrics != nil {
				c.metrics.RecordError(errorTypeOf(err), req.Method, req.Target)
			}
			return nil, c.stamp(asError(err), requestID, req, attempt)
		}
		if throttle != nil && c.metrics != nil {
			c.metrics.RecordThrottleTokens(throttleKey, throttle.Tokens())
		}

		if c.circuitBreaker != nil && !c.circuitBreaker.Allow() {
			if c.debug != nil && c.debug.Enabled && c.debug.LogCircuit && c.logger != nil {
				c.logger.Warn("Circuit breaker open", "requestID", requestID, "target", req.Target)
			}
			if c.metrics != nil {
				c.metrics.RecordError(ErrorTypeCircuitOpen, req.Method, req.Target)
			}
			return nil, c.newError(ErrorTypeCircuitOpen, "circuit breaker is open", ErrCircuitOpen, requestID, req, attempt)
		}

		if attempt > 0 {
			if c.debug != nil && c.debug.Enabled && c.debug.LogRetries && c.logger != nil {
				c.logger.Info("Retry attempt", "requestID", requestID, "attempt", attempt, "target", req.Target)
			}
			if c.metrics != nil {
				c.metrics.RecordRetry(req.Method, req.Target, attempt)
			}
		}

		attemptReq := req
		var cred Credential
		if c.refresher != nil {
			var terr error
			cred, terr = c.refresher.Token(ctx)
			if terr != nil {
				return nil, c.stamp(asError(terr), requestID, req, attempt)
			}
			attemptReq = req.WithHeader(c.credHeader, c.credScheme+cred.Token)
		}

		resp, err := c.sendAttempt(ctx, attemptReq)

		if c.circuitBreaker != nil {
			if err == nil {
				c.circuitBreaker.RecordSuccess()
			} else if !IsCancelled(err) {
				c.circuitBreaker.RecordFailure()
				if c.debug != nil && c.debug.Enabled && c.debug.LogCircuit && c.logger != nil {
					c.logger.Warn("Circuit breaker failure recorded", "requestID", requestID, "error", err.Error())
				}
			}
			if c.metrics != nil {
				c.metrics.RecordCircuitBreakerState("default", c.circuitBreaker.State())
			}
		}

		if err == nil {
			return resp, nil
		}

		cerr := c.stamp(asError(err), requestID, req, attempt)

		if c.metrics != nil {
			c.metrics.RecordError(cerr.Type, req.Method, req.Target)
		}

		if cerr.Type == ErrorTypeCancelled {
			return nil, cerr
		}

		if cerr.Type == ErrorTypeAuth && c.refresher != nil && !authRetried {
			authRetried = true
			if _, rerr := c.refresher.Refresh(ctx, cred); rerr != nil {
				return nil, c.stamp(asError(rerr), requestID, req, attempt)
			}
			if c.debug != nil && c.debug.Enabled && c.debug.LogAuth && c.logger != nil {
				c.logger.Info("Credentials refreshed, replaying attempt", "requestID", requestID, "target", req.Target)
			}
			continue
		}

		delay, retry := policy.ShouldRetry(cerr, attempt)
		if !retry {
			return nil, cerr
		}

		if c.retryBudget != nil && !c.retryBudget.Allow() {
			if c.debug != nil && c.debug.Enabled && c.debug.LogRetries && c.logger != nil {
				c.logger.Warn("Retry budget exceeded", "requestID", requestID, "target", req.Target)
			}
			if c.metrics != nil {
				c.metrics.RecordRetryBudgetExceeded(req.Target)
			}
			return nil, c.newError(ErrorTypeRetryBudgetExceeded, "retry budget exceeded", ErrRetryBudgetExceeded, requestID, req, attempt)
		}

		if c.debug != nil && c.debug.Enabled && c.debug.LogRetries && c.logger != nil {
			c.logger.Info("Scheduling retry", "requestID", requestID, "attempt", attempt+1, "backoff", delay, "target", req.Target)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, cancellationError(ctx.Err())
		case <-timer.C:
		}

		attempt++
	}
}

// throttleFor resolves the throttle pacing req: the registry entry when
// a registry is configured, the client-wide throttle otherwise. A nil
// throttle disables pacing.
func (c *Client) throttleFor(req *Request) (*Throttle, string) {
	if c.throttleRegistry != nil {
		return c.throttleRegistry.ThrottleFor(req)
	}
	return c.throttle, "default"
}

// sendAttempt delivers one attempt through the middleware chain. With an
// attempt timeout configured, a timed out attempt is reported as a
// Network failure as long as the call's own context is still live, so
// the retry loop may try again.
func (c *Client) sendAttempt(ctx context.Context, req *Request) (*Response, error) {
	if c.attemptTimeout <= 0 {
		return c.sender.Send(ctx, req)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
	defer cancel()

	resp, err := c.sender.Send(attemptCtx, req)
	if err != nil && attemptCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		return nil, &Error{
			Type:      ErrorTypeNetwork,
			Message:   "attempt timed out",
			Cause:     err,
			Timestamp: time.Now(),
		}
	}
	return resp, err
}

// sendBatch delivers one composite call through the dispatch loop, so
// batched windows get credentials, throttling and retry like any single
// call.
func (c *Client) sendBatch(ctx context.Context, items []BatchItem) ([]BatchItemResult, error) {
	body, err := json.Marshal(items)
	if err != nil {
		return nil, err
	}

	req := NewRequest(http.MethodPost, c.batchConfig.Target).
		WithHeader("Content-Type", "application/json").
		WithBody(body)

	resp, err := c.dispatch(ctx, req, c.retryPolicy, c.newRequestID())
	if err != nil {
		return nil, err
	}

	var results []BatchItemResult
	if err := resp.Decode(&results); err != nil {
		return nil, fmt.Errorf("decode composite response: %w", err)
	}
	return results, nil
}

func (c *Client) observeBatchFlush(size int, full bool) {
	if c.metrics != nil {
		c.metrics.RecordBatchFlush(size, full)
	}
	if c.debug != nil && c.debug.Enabled && c.debug.LogBatch && c.logger != nil {
		c.logger.Debug("Batch window flushed", "size", size, "full", full)
	}
}

func (c *Client) newRequestID() string {
	if c.debug != nil && c.debug.Enabled && c.debug.RequestIDGen != nil {
		return c.debug.RequestIDGen()
	}
	return ""
}

// stamp fills call identity onto an error without clobbering fields the
// producer already set.
func (c *Client) stamp(err *Error, requestID string, req *Request, attempt int) *Error {
	if err.RequestID == "" {
		err.RequestID = requestID
	}
	if err.Method == "" {
		err.Method = req.Method
	}
	if err.Target == "" {
		err.Target = req.Target
	}
	err.Attempt = attempt
	if err.Timestamp.IsZero() {
		err.Timestamp = time.Now()
	}
	return err
}

func (c *Client) newError(errorType, message string, cause error, requestID string, req *Request, attempt int) *Error {
	return &Error{
		Type:      errorType,
		Message:   message,
		Cause:     cause,
		RequestID: requestID,
		Method:    req.Method,
		Target:    req.Target,
		Attempt:   attempt,
		Timestamp: time.Now(),
	}
}

// IsValid reports whether configuration validation passed at construction.
func (c *Client) IsValid() bool {
	return c.validationError == nil
}

// ValidationError returns the configuration validation error, if any.
func (c *Client) ValidationError() error {
	return c.validationError
}

// ValidateConfigurationStrict panics if configuration is invalid.
func (c *Client) ValidateConfigurationStrict() {
	if err := c.ValidateConfiguration(); err != nil {
		panic(fmt.Sprintf("invalid client configuration: %v", err))
	}
}

// callSettings carries per-call behavior resolved from CallOptions.
type callSettings struct {
	dedupe      bool
	batchable   bool
	retryPolicy RetryPolicy
	noRetry     bool
	slot        *Slot
	cacheOff    bool
	cacheTTL    time.Duration
}

// CallOption adjusts a single call.
type CallOption func(*callSettings)

func newCallSettings(opts []CallOption) *callSettings {
	settings := &callSettings{
		dedupe: true,
	}
	for _, opt := range opts {
		opt(settings)
	}
	return settings
}

func (s *callSettings) policy(c *Client) RetryPolicy {
	if s.noRetry {
		return noRetryPolicy
	}
	if s.retryPolicy != nil {
		return s.retryPolicy
	}
	return c.retryPolicy
}

func (s *callSettings) ttl(c *Client) time.Duration {
	if s.cacheTTL > 0 {
		return s.cacheTTL
	}
	return c.cacheTTL
}

var noRetryPolicy = NewRetryPolicy(BackoffFixed, 0, time.Millisecond, time.Millisecond, 0)

// Dedupe controls whether this call may share an identical in-flight
// call. Deduplication is on by default for idempotent methods.
func Dedupe(enabled bool) CallOption {
	return func(s *callSettings) {
		s.dedupe = enabled
	}
}

// Batchable marks this call eligible for window coalescing. It only
// takes effect on clients configured with WithBatching.
func Batchable() CallOption {
	return func(s *callSettings) {
		s.batchable = true
	}
}

// CallRetryPolicy overrides the client retry policy for this call.
func CallRetryPolicy(policy RetryPolicy) CallOption {
	return func(s *callSettings) {
		s.retryPolicy = policy
	}
}

// NoRetry disables retries for this call.
func NoRetry() CallOption {
	return func(s *callSettings) {
		s.noRetry = true
	}
}

// InSlot binds this call to slot, cancelling the slot's previous call
// before dispatching.
func InSlot(slot *Slot) CallOption {
	return func(s *callSettings) {
		s.slot = slot
	}
}

// NoCache bypasses the response cache for this call.
func NoCache() CallOption {
	return func(s *callSettings) {
		s.cacheOff = true
	}
}

// CallCacheTTL overrides the cache TTL for this call's response.
func CallCacheTTL(ttl time.Duration) CallOption {
	return func(s *callSettings) {
		s.cacheTTL = ttl
	}
}
