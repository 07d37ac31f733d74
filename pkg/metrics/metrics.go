// Package metrics exposes the Prometheus metrics of the catalog client.
// Metrics are defined in their own packages (client, cache, ratelimit,
// pagination, selection) and registered via promauto; this package serves them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer all artic metrics use.
var Registry = prometheus.DefaultRegisterer

// Gatherer collects the registered metrics.
var Gatherer = prometheus.DefaultGatherer

// Handler serves the registered metrics in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics
//
// Requests (pkg/client):
//   - artic_requests_total{status} (Counter): API requests by HTTP status
//   - artic_request_duration_seconds (Histogram): API request duration
//   - artic_errors_total{class} (Counter): failures by class (client, server, rate_limit, network, decode)
//   - artic_pages_total{outcome} (Counter): page fetches by outcome (ok, end, error)
//
// Retries (pkg/client):
//   - artic_retries_total{error_class} (Counter)
//   - artic_retry_backoff_seconds{error_class} (Histogram)
//   - artic_retry_exhausted_total{error_class} (Counter)
//
// Rate limit (pkg/ratelimit):
//   - artic_rate_limit_remaining (Gauge): X-RateLimit-Remaining as last reported
//   - artic_rate_limit_blocks_total (Counter): waits caused by Retry-After
//   - artic_rate_limit_throttles_total (Counter): requests delayed by a low quota
//
// Cache (pkg/cache):
//   - artic_cache_hits_total, artic_cache_misses_total (Counter)
//   - artic_304_responses_total (Counter)
//   - artic_conditional_requests_total (Counter)
//   - artic_cache_errors_total{operation} (Counter)
//
// Selection (pkg/pagination, pkg/selection):
//   - artic_selections_total{outcome} (Counter): complete, exhausted, incomplete
//   - artic_selection_pages_fetched (Histogram): pages fetched per run
//   - artic_selection_page_retries_total (Counter)
//   - artic_selection_store_errors_total{operation} (Counter)
//
// Example queries:
//
//	# Cache hit rate
//	sum(rate(artic_cache_hits_total[5m])) /
//	(sum(rate(artic_cache_hits_total[5m])) + sum(rate(artic_cache_misses_total[5m])))
//
//	# Share of selections that ended early
//	rate(artic_selections_total{outcome="incomplete"}[1h])
//
//	# P95 request latency
//	histogram_quantile(0.95, rate(artic_request_duration_seconds_bucket[5m]))
