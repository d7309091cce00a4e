// Package metrics exposes Prometheus collectors for the extraction service.
package metrics

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
	crawlPagesTotal            *prometheus.CounterVec
	crawlBytesTotal            *prometheus.CounterVec
	extractionsTotal           *prometheus.CounterVec
	extractionDurationSeconds  *prometheus.HistogramVec
	extractionAttempts         *prometheus.HistogramVec
	tasksTotal                 *prometheus.CounterVec
	activeExtractions          prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagelens_crawl_pages_total",
				Help: "Total number of pages fetched, labeled by site and status.",
			},
			[]string{"site", "status"},
		)

		crawlBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagelens_crawl_bytes_total",
				Help: "Total number of bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		extractionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagelens_extractions_total",
				Help: "Total number of extraction outcomes, labeled by mode, provider and status.",
			},
			[]string{"mode", "provider", "status"},
		)

		extractionDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pagelens_extraction_duration_seconds",
				Help:    "Histogram of extraction latencies, labeled by mode and provider.",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"mode", "provider"},
		)

		extractionAttempts = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pagelens_extraction_attempts",
				Help:    "Histogram of attempts used per extraction, labeled by provider.",
				Buckets: []float64{1, 2, 3, 4, 5},
			},
			[]string{"provider"},
		)

		tasksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagelens_tasks_total",
				Help: "Total number of tasks processed, labeled by status.",
			},
			[]string{"status"},
		)

		activeExtractions = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "pagelens_active_extractions",
				Help: "Number of extraction batches currently in flight.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveCrawl increments the crawl metrics.
func ObserveCrawl(site string, status string, bytesFetched int) {
	sanitizedSite := SanitizeSite(site)
	crawlPagesTotal.WithLabelValues(sanitizedSite, status).Inc()
	if bytesFetched > 0 {
		crawlBytesTotal.WithLabelValues(sanitizedSite).Add(float64(bytesFetched))
	}
}

// ObserveExtraction records one extraction outcome.
func ObserveExtraction(mode, provider, status string, attempts int, duration time.Duration) {
	extractionsTotal.WithLabelValues(mode, provider, status).Inc()
	extractionDurationSeconds.WithLabelValues(mode, provider).Observe(duration.Seconds())
	extractionAttempts.WithLabelValues(provider).Observe(float64(attempts))
}

// ObserveTask increments the task counter for the given status.
func ObserveTask(status string) {
	tasksTotal.WithLabelValues(status).Inc()
}

// IncActiveExtractions increments the in-flight batch gauge.
func IncActiveExtractions() {
	activeExtractions.Inc()
}

// DecActiveExtractions decrements the in-flight batch gauge.
func DecActiveExtractions() {
	activeExtractions.Dec()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
