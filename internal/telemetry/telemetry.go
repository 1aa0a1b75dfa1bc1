// Package telemetry exposes Prometheus collectors for the harvester service.
package telemetry

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchesTotal          *prometheus.CounterVec
	itemsCollectedTotal   *prometheus.CounterVec
	duplicatesTotal       *prometheus.CounterVec
	fetchDurationSeconds  *prometheus.HistogramVec
	rateLimitDelaySeconds *prometheus.HistogramVec
	embedderLatencySecs   prometheus.Histogram
	embeddingCacheOps     *prometheus.CounterVec
	httpRequestsTotal     *prometheus.CounterVec
	httpRequestDuration   *prometheus.HistogramVec

	once sync.Once
)

// Init registers the Prometheus collectors. Safe to call multiple times.
func Init() {
	once.Do(func() {
		fetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_fetches_total",
				Help: "Total fetch attempts, labeled by source and outcome.",
			},
			[]string{"source", "outcome"},
		)

		itemsCollectedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_items_collected_total",
				Help: "Total items parsed out of successful fetches, labeled by source.",
			},
			[]string{"source"},
		)

		duplicatesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_duplicates_total",
				Help: "Total items classified as duplicates, labeled by match reason.",
			},
			[]string{"reason"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvester_fetch_duration_seconds",
				Help:    "Histogram of per-source fetch latencies.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"source"},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvester_rate_limit_delay_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		embedderLatencySecs = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "harvester_embedder_latency_seconds",
				Help:    "Histogram of embedder round-trip latencies.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
		)

		embeddingCacheOps = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_embedding_cache_ops_total",
				Help: "Embedding cache lookups, labeled by result (hit, miss, corrupt).",
			},
			[]string{"result"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total HTTP requests served, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSource extracts a lowercase hostname from a URL, or "unknown".
func SanitizeSource(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler exposing the Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch records one fetch attempt outcome and its latency.
func ObserveFetch(source, outcome string, duration time.Duration) {
	fetchesTotal.WithLabelValues(source, outcome).Inc()
	fetchDurationSeconds.WithLabelValues(source).Observe(duration.Seconds())
}

// ObserveItemsCollected adds to the per-source item counter.
func ObserveItemsCollected(source string, count int) {
	if count > 0 {
		itemsCollectedTotal.WithLabelValues(source).Add(float64(count))
	}
}

// ObserveDuplicate records a duplicate verdict by match reason.
func ObserveDuplicate(reason string) {
	duplicatesTotal.WithLabelValues(reason).Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	rateLimitDelaySeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveEmbedderLatency records one embedder round trip.
func ObserveEmbedderLatency(duration time.Duration) {
	embedderLatencySecs.Observe(duration.Seconds())
}

// ObserveCacheHit, ObserveCacheMiss and ObserveCacheCorrupt record embedding
// cache lookup results.
func ObserveCacheHit()     { embeddingCacheOps.WithLabelValues("hit").Inc() }
func ObserveCacheMiss()    { embeddingCacheOps.WithLabelValues("miss").Inc() }
func ObserveCacheCorrupt() { embeddingCacheOps.WithLabelValues("corrupt").Inc() }

// ObserveHTTPRequest records metrics for a served HTTP request.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
