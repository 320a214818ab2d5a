// Package kurirgo provides a resilient asynchronous request orchestrator with
// composable reliability primitives:
//
//   - Retries with fixed / linear / exponential backoff + optional jitter
//   - In-flight de-duplication (merges concurrent identical calls into one)
//   - Single-flight credential refresh with one replay per logical call
//   - Window batching (coalesces eligible calls into composite requests)
//   - Token bucket throttling and a circuit breaker (open / half-open / closed)
//   - In-memory response caching with per-call overrides
//   - Middleware chain for cross-cutting concerns (tracing, logging, etc.)
//   - Prometheus metrics and lightweight structured debug logging
//
// Design goals:
//   - Small surface area – functional options configure everything
//   - Every blocking point honors the caller's context
//   - Safe concurrent use of a single *Client instance
//   - Extensibility via pluggable transport, cache, metrics and middleware
//
// Typical usage:
//
//	client := kurirgo.New(
//	    kurirgo.WithBaseURL("https://api.example.com"),
//	    kurirgo.WithMaxRetries(3),
//	    kurirgo.WithThrottle(50, 10),
//	    kurirgo.WithCache(5*time.Minute),
//	    kurirgo.WithCredentials(source),
//	)
//	resp, err := client.Get(ctx, "/data")
//
// Identical idempotent calls issued concurrently share a single dispatch by
// default; override with Dedupe(false) or WithDedupCondition. The library
// avoids opinionated logging: provide a Logger (e.g. via WithSimpleLogger) +
// enable debug flags selectively (WithDebug / WithDebugConfig) for insight
// without noise.
package kurirgo
