// Package metrics exposes the Prometheus registry used by the catalog.
// Metrics are defined next to the code that records them (shopify, cache,
// catalog, ratelimit) and registered through promauto; this package serves
// them and documents what exists.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the catalog.
var Registry = prometheus.DefaultRegisterer

// BuildInfo reports the running version; the value is always 1.
var BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "catalog_build_info",
	Help: "Build information of the catalog server",
}, []string{"version", "env"})

// SetBuildInfo records version and environment on BuildInfo.
func SetBuildInfo(version, env string) {
	BuildInfo.WithLabelValues(version, env).Set(1)
}

// Handler returns the /metrics HTTP handler for the default gatherer.
func Handler() http.Handler {
	return promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Upstream (internal/shopify):
//   - catalog_upstream_requests_total{endpoint, status} (Counter)
//   - catalog_upstream_request_duration_seconds{endpoint} (Histogram)
//   - catalog_upstream_errors_total{class} (Counter)
//   - catalog_upstream_admin_fallbacks_total (Counter): 404 on the primary admin host
//   - catalog_upstream_retries_total{error_class} (Counter)
//   - catalog_upstream_retry_exhausted_total (Counter)
//
// Throttle (pkg/ratelimit):
//   - catalog_throttle_available{scope} (Gauge): last reported cost budget
//   - catalog_throttle_waits_total{scope} (Counter)
//   - catalog_throttle_wait_seconds{scope} (Histogram)
//
// Cache (pkg/cache):
//   - catalog_cache_hits_total{layer} (Counter): memory, kv, disk
//   - catalog_cache_misses_total{kind} (Counter)
//   - catalog_cache_errors_total{layer, operation} (Counter)
//   - catalog_cache_loads_total{kind, result} (Counter): ok, error, stale
//   - catalog_cache_negative_writes_total{kind} (Counter)
//   - catalog_cache_shared_waits_total{kind} (Counter)
//   - catalog_cache_memory_entries (Gauge)
//
// Catalog (pkg/catalog):
//   - catalog_admin_enrichments_total{result} (Counter): ok, failed, skipped
//   - catalog_cars_resolved (Gauge): cars in the last full catalog load
//
// Example Prometheus Queries:
//
//   # Cache hit rate
//   sum(rate(catalog_cache_hits_total[5m])) /
//   (sum(rate(catalog_cache_hits_total[5m])) + sum(rate(catalog_cache_misses_total[5m])))
//
//   # Stale data served
//   rate(catalog_cache_loads_total{result="stale"}[5m])
//
//   # P95 upstream latency
//   histogram_quantile(0.95, rate(catalog_upstream_request_duration_seconds_bucket[5m]))
