// Package metrics exposes the Prometheus metrics of the WaniKani client.
// Metrics are declared with promauto next to the code that records them
// (client, pagination, wanikani, ratelimit, retry); this package only
// serves them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler serves all registered metrics in the Prometheus text format.
// promauto registers every package's metrics with the default registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{})
}

// Metrics reference
//
// Requests (pkg/client):
//   - wanikani_requests_total{endpoint, status} (Counter)
//   - wanikani_request_duration_seconds{endpoint} (Histogram)
//   - wanikani_errors_total{class} (Counter): client, server, rate_limit,
//     network, configuration
//
// Pagination (pkg/pagination, pkg/wanikani):
//   - wanikani_pages_fetched_total{endpoint} (Counter)
//   - wanikani_records_yielded_total{endpoint} (Counter)
//
// Rate limit (pkg/ratelimit):
//   - wanikani_rate_limit_remaining (Gauge)
//   - wanikani_rate_limit_waits_total (Counter)
//
// Retry (pkg/retry):
//   - wanikani_retries_total{error_class} (Counter)
//   - wanikani_retry_backoff_seconds{error_class} (Histogram)
//   - wanikani_retry_exhausted_total{error_class} (Counter)
//
// Example queries:
//
//	# Requests per page fetched (1.0 means no wasted requests)
//	sum(rate(wanikani_requests_total[5m])) / sum(rate(wanikani_pages_fetched_total[5m]))
//
//	# Close to the rate limit
//	wanikani_rate_limit_remaining < 5
//
//	# P95 request latency
//	histogram_quantile(0.95, rate(wanikani_request_duration_seconds_bucket[5m]))
