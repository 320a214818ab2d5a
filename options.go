package kurirgo

import (
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// WithTransport sets the transport calls are dispatched through.
func WithTransport(transport Transport) Option {
	return func(c *Client) {
		c.transport = transport
	}
}

// WithBaseURL dispatches through an HTTP transport rooted at baseURL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.transport = NewHTTPTransport(baseURL)
	}
}

// WithHTTPClient dispatches through an HTTP transport rooted at baseURL
// using a custom http.Client.
func WithHTTPClient(baseURL string, client *http.Client) Option {
	return func(c *Client) {
		c.transport = NewHTTPTransportWithClient(baseURL, client)
	}
}

// WithMaxRetries sets the maximum number of retry attempts.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithInitialBackoff sets the initial backoff duration.
func WithInitialBackoff(d time.Duration) Option {
	return func(c *Client) {
		c.initialBackoff = d
	}
}

// WithMaxBackoff sets the maximum backoff duration.
func WithMaxBackoff(d time.Duration) Option {
	return func(c *Client) {
		c.maxBackoff = d
	}
}

// WithBackoffStrategy selects how retry delays grow across attempts.
func WithBackoffStrategy(strategy BackoffStrategy) Option {
	return func(c *Client) {
		c.backoffStrategy = strategy
	}
}

// WithJitter sets the jitter factor for backoff (0.0 to 1.0).
func WithJitter(f float64) Option {
	return func(c *Client) {
		if f < 0 {
			f = 0
		}
		if f > 1 {
			f = 1
		}
		c.jitter = f
	}
}

// WithRetryCondition sets a custom retry condition.
func WithRetryCondition(fn RetryCondition) Option {
	return func(c *Client) {
		c.retryCondition = fn
	}
}

// WithRetryPolicy sets a custom retry policy, overriding the granular
// backoff options.
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(c *Client) {
		c.retryPolicy = policy
	}
}

// WithRetryBudget caps retries across all calls to limit per window.
func WithRetryBudget(limit int, window time.Duration) Option {
	return func(c *Client) {
		c.retryBudget = NewRetryBudget(limit, window)
	}
}

// WithThrottle caps outbound dispatch at rps requests per second with
// the given burst.
func WithThrottle(rps float64, burst int) Option {
	return func(c *Client) {
		c.throttle = NewThrottle(rps, burst)
	}
}

// WithThrottleRegistry paces dispatch through per-key throttles instead
// of a single client-wide throttle.
func WithThrottleRegistry(registry *ThrottleRegistry) Option {
	return func(c *Client) {
		c.throttleRegistry = registry
	}
}

// WithCircuitBreaker sets the circuit breaker configuration.
func WithCircuitBreaker(config CircuitBreakerConfig) Option {
	return func(c *Client) {
		c.circuitBreaker = NewCircuitBreaker(config)
	}
}

// WithCache enables caching with the default in-memory cache.
func WithCache(ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = NewInMemoryCache()
		c.cacheTTL = ttl
	}
}

// WithCustomCache sets a custom cache implementation.
func WithCustomCache(cache Cache, ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = cache
		c.cacheTTL = ttl
	}
}

// WithCacheCondition sets a custom cache condition function.
func WithCacheCondition(fn CacheCondition) Option {
	return func(c *Client) {
		c.cacheCondition = fn
	}
}

// WithCredentials attaches a credential source. Tokens are injected into
// every dispatch and refreshed once per logical call on an Auth failure.
func WithCredentials(source CredentialSource) Option {
	return func(c *Client) {
		c.credentials = source
	}
}

// WithTokenSource attaches an oauth2 token source as the credential
// source.
func WithTokenSource(src oauth2.TokenSource) Option {
	return func(c *Client) {
		c.credentials = TokenSourceCredentials(src)
	}
}

// WithCredentialHeader overrides the header and scheme tokens are
// injected with. Defaults are "Authorization" and "Bearer ".
func WithCredentialHeader(header, scheme string) Option {
	return func(c *Client) {
		c.credHeader = header
		c.credScheme = scheme
	}
}

// WithBatching coalesces batchable calls into composite requests.
func WithBatching(config BatchConfig) Option {
	return func(c *Client) {
		c.batchConfig = &config
	}
}

// WithFingerprint sets a custom request fingerprint function.
func WithFingerprint(fn FingerprintFunc) Option {
	return func(c *Client) {
		c.fingerprint = fn
	}
}

// WithDedupCondition sets a custom deduplication condition function.
func WithDedupCondition(fn DedupCondition) Option {
	return func(c *Client) {
		c.dedupCondition = fn
	}
}

// WithMiddleware adds middleware to the client.
func WithMiddleware(middleware ...Middleware) Option {
	return func(c *Client) {
		c.middleware = append(c.middleware, middleware...)
	}
}

// WithAttemptTimeout bounds each dispatch attempt. A timed out attempt
// counts as a Network failure and may be retried while the call's own
// context is still live.
func WithAttemptTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.attemptTimeout = d
	}
}

// WithMetrics enables Prometheus metrics collection.
func WithMetrics() Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollector()
	}
}

// WithMetricsCollector sets a custom metrics collector.
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(c *Client) {
		c.metrics = collector
	}
}

// WithDebug enables debug logging with default configuration.
func WithDebug() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
	}
}

// WithDebugConfig sets custom debug configuration.
func WithDebugConfig(config *DebugConfig) Option {
	return func(c *Client) {
		c.debug = config
	}
}

// WithLogger sets a custom logger for debug output.
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithSimpleLogger enables debug logging with a simple console logger.
func WithSimpleLogger() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
		c.logger = NewSimpleLogger()
	}
}

// WithRequestIDGenerator sets a custom function for generating request IDs.
func WithRequestIDGenerator(gen func() string) Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.RequestIDGen = gen
	}
}

// ValidateConfiguration validates the client configuration and returns an
// error if invalid.
func (c *Client) ValidateConfiguration() error {
	var errors []string

	errors = append(errors, c.validateTransportConfig()...)
	errors = append(errors, c.validateRetryConfig()...)
	errors = append(errors, c.validateDedupConfig()...)
	errors = append(errors, c.validateCredentialConfig()...)
	errors = append(errors, c.validateBatchConfig()...)
	errors = append(errors, c.validateCacheConfig()...)
	errors = append(errors, c.validateCircuitBreakerConfig()...)
	errors = append(errors, c.validateMiddlewareConfig()...)
	errors = append(errors, c.validateDebugConfig()...)
	errors = append(errors, c.validateExtremeValues()...)

	if len(errors) > 0 {
		return &Error{
			Type:    ErrorTypeValidation,
			Message: "configuration validation failed",
			Cause:   fmt.Errorf("validation errors: %v", errors),
		}
	}

	return nil
}

func (c *Client) validateTransportConfig() []string {
	var errors []string

	if c.transport == nil {
		errors = append(errors, "transport cannot be nil")
	}

	return errors
}

func (c *Client) validateRetryConfig() []string {
	var errors []string

	if c.maxRetries < 0 {
		errors = append(errors, "maxRetries must be non-negative")
	}

	if c.initialBackoff <= 0 {
		errors = append(errors, "initialBackoff must be positive")
	}

	if c.maxBackoff < c.initialBackoff {
		errors = append(errors, "maxBackoff must be greater than or equal to initialBackoff")
	}

	if c.jitter < 0 || c.jitter > 1 {
		errors = append(errors, "jitter must be between 0 and 1")
	}

	if c.attemptTimeout < 0 {
		errors = append(errors, "attemptTimeout must be non-negative")
	}

	return errors
}

func (c *Client) validateDedupConfig() []string {
	var errors []string

	if c.fingerprint == nil {
		errors = append(errors, "fingerprint function cannot be nil")
	}
	if c.dedupCondition == nil {
		errors = append(errors, "deduplication condition cannot be nil")
	}

	return errors
}

func (c *Client) validateCredentialConfig() []string {
	var errors []string

	if c.credentials != nil {
		if c.credHeader == "" {
			errors = append(errors, "credential header must be set when credentials are enabled")
		}
	}

	return errors
}

func (c *Client) validateBatchConfig() []string {
	var errors []string

	if c.batchConfig != nil {
		if c.batchConfig.Target == "" {
			errors = append(errors, "batch target must be set when batching is enabled")
		}
		if c.batchConfig.MaxDelay < 0 {
			errors = append(errors, "batch MaxDelay must be non-negative")
		}
		if c.batchConfig.MaxItems < 0 {
			errors = append(errors, "batch MaxItems must be non-negative")
		}
	}

	return errors
}

func (c *Client) validateCacheConfig() []string {
	var errors []string

	if c.cache != nil && c.cacheTTL <= 0 {
		errors = append(errors, "cacheTTL must be positive when cache is enabled")
	}

	return errors
}

func (c *Client) validateCircuitBreakerConfig() []string {
	var errors []string

	if c.circuitBreaker != nil {
		if c.circuitBreaker.config.FailureThreshold <= 0 {
			errors = append(errors, "circuitBreaker FailureThreshold must be positive")
		}
		if c.circuitBreaker.config.RecoveryTimeout <= 0 {
			errors = append(errors, "circuitBreaker RecoveryTimeout must be positive")
		}
		if c.circuitBreaker.config.SuccessThreshold <= 0 {
			errors = append(errors, "circuitBreaker SuccessThreshold must be positive")
		}
	}

	return errors
}

func (c *Client) validateMiddlewareConfig() []string {
	var errors []string

	for i, middleware := range c.middleware {
		if middleware == nil {
			errors = append(errors, fmt.Sprintf("middleware[%d] cannot be nil", i))
		}
	}

	return errors
}

func (c *Client) validateDebugConfig() []string {
	var errors []string

	if c.debug != nil && c.debug.Enabled {
		if c.debug.RequestIDGen == nil {
			errors = append(errors, "debug RequestIDGen must be set when debug is enabled")
		}
		if c.logger == nil {
			errors = append(errors, "logger must be set when debug is enabled")
		}
	}

	return errors
}

func (c *Client) validateExtremeValues() []string {
	var errors []string

	if c.maxRetries > 100 {
		errors = append(errors, "maxRetries > 100 may cause excessive resource usage")
	}

	if c.initialBackoff > 10*time.Minute {
		errors = append(errors, "initialBackoff > 10m may cause very long delays")
	}
	if c.maxBackoff > 1*time.Hour {
		errors = append(errors, "maxBackoff > 1h may cause extremely long delays")
	}

	if c.batchConfig != nil && c.batchConfig.MaxDelay > 10*time.Second {
		errors = append(errors, "batch MaxDelay > 10s may hold calls for too long")
	}

	if c.cache != nil && c.cacheTTL > 24*time.Hour {
		errors = append(errors, "cacheTTL > 24h may cause stale data issues")
	}

	return errors
}
