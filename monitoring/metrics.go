// Package monitoring provides metrics and observability for the feed republisher
package monitoring

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Feed polling metrics
	feedFetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "republisher_feed_fetch_total",
			Help: "Total number of feed fetch attempts",
		},
		[]string{"url", "status"},
	)

	feedFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "republisher_feed_fetch_duration_seconds",
			Help:    "Duration of feed fetch operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"url", "status"},
	)

	itemsRegistered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "republisher_items_registered_total",
			Help: "Number of new feed items registered as pending",
		},
		[]string{"url"},
	)

	// Extraction metrics
	extractionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "republisher_extractions_total",
			Help: "Total number of page extraction attempts",
		},
		[]string{"status"},
	)

	// Publishing metrics
	publishAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "republisher_publish_attempts_total",
			Help: "Total number of per-target publish attempts",
		},
		[]string{"target", "status"},
	)

	publishDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "republisher_publish_duration_seconds",
			Help:    "Duration of per-target publish attempts",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"target", "status"},
	)

	itemOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "republisher_item_outcomes_total",
			Help: "Outcome of processed items",
		},
		[]string{"outcome"},
	)

	coolingTargets = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "republisher_cooling_targets",
			Help: "Number of targets currently in cooldown",
		},
	)

	// Cycle metrics
	cycleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "republisher_cycle_duration_seconds",
			Help:    "Duration of poll and process cycles",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		},
		[]string{"kind"},
	)

	cycleItems = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "republisher_cycle_items",
			Help:    "Number of items handled per cycle",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100},
		},
		[]string{"kind"},
	)

	// Store metrics
	storeOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "republisher_store_operations_total",
			Help: "Total number of store operations",
		},
		[]string{"operation", "status"},
	)

	storeOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "republisher_store_operation_duration_seconds",
			Help:    "Duration of store operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "status"},
	)

	// Category cache metrics
	cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "republisher_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"operation"},
	)

	cacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "republisher_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"operation"},
	)

	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "republisher_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "republisher_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)
)

// RecordFeedFetch records metrics for feed fetching
func RecordFeedFetch(url, status string, duration float64) {
	feedFetchTotal.WithLabelValues(url, status).Inc()
	feedFetchDuration.WithLabelValues(url, status).Observe(duration)
}

// RecordItemsRegistered records newly registered items for a feed
func RecordItemsRegistered(url string, count int) {
	if count > 0 {
		itemsRegistered.WithLabelValues(url).Add(float64(count))
	}
}

// RecordExtraction records the status of a page extraction
func RecordExtraction(status string) {
	extractionsTotal.WithLabelValues(status).Inc()
}

// RecordPublishAttempt records one per-target publish attempt
func RecordPublishAttempt(target, status string, duration float64) {
	publishAttempts.WithLabelValues(target, status).Inc()
	publishDuration.WithLabelValues(target, status).Observe(duration)
}

// RecordItemOutcome records the outcome of one processed item
func RecordItemOutcome(outcome string) {
	itemOutcomes.WithLabelValues(outcome).Inc()
}

// UpdateCoolingTargets sets the cooling targets gauge
func UpdateCoolingTargets(count int) {
	coolingTargets.Set(float64(count))
}

// RecordCycle records metrics for a finished poll or process cycle
func RecordCycle(kind string, duration float64, items int) {
	cycleDuration.WithLabelValues(kind).Observe(duration)
	cycleItems.WithLabelValues(kind).Observe(float64(items))
}

// RecordStoreOperation records store operation metrics
func RecordStoreOperation(operation, status string, duration float64) {
	storeOperations.WithLabelValues(operation, status).Inc()
	storeOperationDuration.WithLabelValues(operation, status).Observe(duration)
}

// RecordCacheHit records a cache hit
func RecordCacheHit(operation string) {
	cacheHits.WithLabelValues(operation).Inc()
}

// RecordCacheMiss records a cache miss
func RecordCacheMiss(operation string) {
	cacheMisses.WithLabelValues(operation).Inc()
}

// RecordHTTPRequest records HTTP request metrics
func RecordHTTPRequest(method, endpoint, status string, duration float64) {
	httpRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	httpRequestDuration.WithLabelValues(method, endpoint, status).Observe(duration)
}

// MetricsHandler returns an HTTP handler for serving Prometheus metrics
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// SetupMetricsEndpoint configures the metrics endpoint on the given router
func SetupMetricsEndpoint(router *mux.Router) {
	router.Handle("/metrics", MetricsHandler()).Methods("GET")
}
