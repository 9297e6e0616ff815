// Package metrics provides the Prometheus registry and HTTP handler for the Marvel client.
// All metrics are defined in their respective packages (client, cache, ratelimit, pagination)
// to maintain modularity and avoid circular dependencies.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the Marvel client.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Handler exposes every registered metric in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Metrics Documentation
//
// Quota Metrics (pkg/ratelimit):
//   - marvel_quota_remaining (Gauge): Calls left in today's quota
//   - marvel_quota_calls_total (Counter): Calls counted against the quota
//   - marvel_quota_blocks_total (Counter): Requests blocked because the quota is used up
//   - marvel_quota_throttles_total (Counter): Requests throttled because the quota is low
//
// Cache Metrics (pkg/cache):
//   - marvel_cache_hits_total{layer="redis"} (Counter): Cache hits by layer
//   - marvel_cache_misses_total (Counter): Cache misses
//   - marvel_cache_size_bytes{layer="redis"} (Gauge): Bytes moved through the cache
//   - marvel_304_responses_total (Counter): 304 Not Modified responses
//   - marvel_conditional_requests_total (Counter): Conditional requests sent with If-None-Match
//   - marvel_cache_errors_total{operation} (Counter): Cache operation errors
//
// Request Metrics (pkg/client):
//   - marvel_requests_total{endpoint, status} (Counter): Requests by endpoint and outcome
//   - marvel_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - marvel_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network, decode)
//   - marvel_circuit_breaker_state (Gauge): 0=closed, 1=half-open, 2=open
//
// Retry Metrics (pkg/client):
//   - marvel_retries_total{error_class} (Counter): Retry attempts by error class
//   - marvel_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - marvel_retry_exhausted_total{error_class} (Counter): Requests that exhausted max retries
//
// Pagination Metrics (pkg/pagination):
//   - marvel_pages_loaded_total{kind} (Counter): Pages merged into the list (initial, next)
//   - marvel_page_load_failures_total{kind} (Counter): Failed page loads
//   - marvel_page_load_duration_seconds (Histogram): Time from trigger to merged page
//   - marvel_characters_loaded (Gauge): Characters currently in the list
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(marvel_cache_hits_total[5m])) /
//   (sum(rate(marvel_cache_hits_total[5m])) + sum(rate(marvel_cache_misses_total[5m])))
//
//   # Quota running low
//   marvel_quota_remaining < 300
//
//   # Page load failure ratio
//   sum(rate(marvel_page_load_failures_total[5m])) / sum(rate(marvel_pages_loaded_total[5m]))
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(marvel_request_duration_seconds_bucket[5m]))
