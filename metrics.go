package kurirgo

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector provides Prometheus metrics for kurirgo's call
// lifecycle and reliability layers. It is safe for concurrent use. A nil
// collector is valid and records nothing.
type MetricsCollector struct {
	callsTotal    *prometheus.CounterVec
	callDuration  *prometheus.HistogramVec
	callsInFlight *prometheus.GaugeVec

	retriesTotal *prometheus.CounterVec

	circuitBreakerState *prometheus.GaugeVec

	throttleTokens *prometheus.GaugeVec

	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec
	cacheSize   *prometheus.GaugeVec

	dedupHits *prometheus.CounterVec

	batchFlushes *prometheus.CounterVec
	batchSize    prometheus.Histogram

	credentialRefreshes *prometheus.CounterVec

	supersessions prometheus.Counter

	retryBudgetExceeded *prometheus.CounterVec

	errorsTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetricsCollector creates a metrics collector on the default registerer.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry creates a collector using the supplied
// registerer.
func NewMetricsCollectorWithRegistry(registry prometheus.Registerer) *MetricsCollector {
	mc := &MetricsCollector{
		callsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "kurirgo_calls_total",
				Help: "Total number of logical calls settled",
			},
			[]string{"method", "status_code", "target"},
		),
		callDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kurirgo_call_duration_seconds",
				Help:    "Duration of logical calls in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "status_code", "target"},
		),
		callsInFlight: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "kurirgo_calls_in_flight",
				Help: "Number of logical calls currently in flight",
			},
			[]string{"method", "target"},
		),
		retriesTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "kurirgo_retries_total",
				Help: "Total number of retry attempts",
			},
			[]string{"method", "target", "attempt"},
		),
		circuitBreakerState: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "kurirgo_circuit_breaker_state",
				Help: "Current state of circuit breaker (0=closed, 1=open, 2=half-open)",
			},
			[]string{"name"},
		),
		throttleTokens: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "kurirgo_throttle_tokens",
				Help: "Current number of available throttle tokens",
			},
			[]string{"name"},
		),
		cacheHits: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "kurirgo_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"method", "target"},
		),
		cacheMisses: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "kurirgo_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"method", "target"},
		),
		cacheSize: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "kurirgo_cache_size",
				Help: "Current number of entries in cache",
			},
			[]string{"name"},
		),
		dedupHits: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "kurirgo_dedup_hits_total",
				Help: "Total number of calls joined to an identical in-flight call",
			},
			[]string{"method", "target"},
		),
		batchFlushes: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "kurirgo_batch_flushes_total",
				Help: "Total number of batch window flushes",
			},
			[]string{"reason"},
		),
		batchSize: promauto.With(registry).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "kurirgo_batch_size",
				Help:    "Number of items per flushed batch window",
				Buckets: []float64{1, 2, 4, 8, 16, 32},
			},
		),
		credentialRefreshes: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "kurirgo_credential_refreshes_total",
				Help: "Total number of credential refresh operations",
			},
			[]string{"outcome"},
		),
		supersessions: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Name: "kurirgo_supersessions_total",
				Help: "Total number of calls cancelled by a newer call on the same slot",
			},
		),
		retryBudgetExceeded: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "kurirgo_retry_budget_exceeded_total",
				Help: "Total number of times the retry budget was exceeded",
			},
			[]string{"target"},
		),
		errorsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "kurirgo_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type", "method", "target"},
		),
	}
	mc.registry, _ = registry.(*prometheus.Registry)

	return mc
}

// RecordCall records call count and duration.
func (mc *MetricsCollector) RecordCall(method, target string, statusCode int, duration time.Duration) {
	if mc == nil {
		return
	}

	statusCodeStr := strconv.Itoa(statusCode)
	mc.callsTotal.WithLabelValues(method, statusCodeStr, target).Inc()
	mc.callDuration.WithLabelValues(method, statusCodeStr, target).Observe(duration.Seconds())
}

// RecordCallStart increments the in-flight gauge.
func (mc *MetricsCollector) RecordCallStart(method, target string) {
	if mc == nil {
		return
	}

	mc.callsInFlight.WithLabelValues(method, target).Inc()
}

// RecordCallEnd decrements the in-flight gauge.
func (mc *MetricsCollector) RecordCallEnd(method, target string) {
	if mc == nil {
		return
	}

	mc.callsInFlight.WithLabelValues(method, target).Dec()
}

// RecordRetry increments the retry counter for an attempt.
func (mc *MetricsCollector) RecordRetry(method, target string, attempt int) {
	if mc == nil {
		return
	}

	attemptStr := strconv.Itoa(attempt)
	mc.retriesTotal.WithLabelValues(method, target, attemptStr).Inc()
}

// RecordCircuitBreakerState sets the gauge to the breaker state.
func (mc *MetricsCollector) RecordCircuitBreakerState(name string, state CircuitState) {
	if mc == nil {
		return
	}

	var stateValue float64
	switch state {
	case StateClosed:
		stateValue = 0
	case StateOpen:
		stateValue = 1
	case StateHalfOpen:
		stateValue = 2
	}

	mc.circuitBreakerState.WithLabelValues(name).Set(stateValue)
}

// RecordThrottleTokens sets the available token gauge.
func (mc *MetricsCollector) RecordThrottleTokens(name string, tokens float64) {
	if mc == nil {
		return
	}

	mc.throttleTokens.WithLabelValues(name).Set(tokens)
}

// RecordCacheHit increments the cache hit counter.
func (mc *MetricsCollector) RecordCacheHit(method, target string) {
	if mc == nil {
		return
	}

	mc.cacheHits.WithLabelValues(method, target).Inc()
}

// RecordCacheMiss increments the cache miss counter.
func (mc *MetricsCollector) RecordCacheMiss(method, target string) {
	if mc == nil {
		return
	}

	mc.cacheMisses.WithLabelValues(method, target).Inc()
}

// RecordCacheSize sets the cache size gauge.
func (mc *MetricsCollector) RecordCacheSize(name string, size int) {
	if mc == nil {
		return
	}

	mc.cacheSize.WithLabelValues(name).Set(float64(size))
}

// RecordDedupHit increments the dedup hit counter.
func (mc *MetricsCollector) RecordDedupHit(method, target string) {
	if mc == nil {
		return
	}

	mc.dedupHits.WithLabelValues(method, target).Inc()
}

// RecordBatchFlush records one window flush with its size and trigger.
func (mc *MetricsCollector) RecordBatchFlush(size int, full bool) {
	if mc == nil {
		return
	}

	reason := "delay"
	if full {
		reason = "full"
	}
	mc.batchFlushes.WithLabelValues(reason).Inc()
	mc.batchSize.Observe(float64(size))
}

// RecordCredentialRefresh increments the refresh counter by outcome.
func (mc *MetricsCollector) RecordCredentialRefresh(outcome string) {
	if mc == nil {
		return
	}

	mc.credentialRefreshes.WithLabelValues(outcome).Inc()
}

// RecordSupersession increments the supersession counter.
func (mc *MetricsCollector) RecordSupersession() {
	if mc == nil {
		return
	}

	mc.supersessions.Inc()
}

// RecordRetryBudgetExceeded increments the budget exceeded counter.
func (mc *MetricsCollector) RecordRetryBudgetExceeded(target string) {
	if mc == nil {
		return
	}

	mc.retryBudgetExceeded.WithLabelValues(target).Inc()
}

// RecordError increments the error counter by type.
func (mc *MetricsCollector) RecordError(errorType, method, target string) {
	if mc == nil {
		return
	}

	mc.errorsTotal.WithLabelValues(errorType, method, target).Inc()
}

// GetRegistry exposes the underlying prometheus registry when the
// collector was built on one.
func (mc *MetricsCollector) GetRegistry() *prometheus.Registry {
	return mc.registry
}
