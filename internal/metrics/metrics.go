// Package metrics exposes Prometheus collectors for the exhibition crawler.
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
	fetchesTotal              *prometheus.CounterVec
	fetchBytesTotal           *prometheus.CounterVec
	cacheLookupsTotal         *prometheus.CounterVec
	detailPagesTotal          *prometheus.CounterVec
	extractionDurationSeconds *prometheus.HistogramVec
	siteCrawlsTotal           *prometheus.CounterVec
	siteCrawlDurationSeconds  prometheus.Histogram
	exhibitionsSavedTotal     prometheus.Counter
	activeSiteCrawls          prometheus.Gauge
	rateLimitDelaysSeconds    *prometheus.HistogramVec
	httpRequestsTotal         *prometheus.CounterVec
	httpRequestDuration       *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors. It is safe to call this function multiple
// times; every observer calls it.
func Init() {
	once.Do(func() {
		fetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exhibitions_fetches_total",
				Help: "Page fetch attempts, labeled by tier and outcome.",
			},
			[]string{"tier", "outcome"},
		)
		fetchBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exhibitions_fetch_bytes_total",
				Help: "HTML bytes returned, labeled by tier.",
			},
			[]string{"tier"},
		)
		cacheLookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exhibitions_cache_lookups_total",
				Help: "Page cache lookups, labeled by result.",
			},
			[]string{"result"},
		)
		detailPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exhibitions_detail_pages_total",
				Help: "Detail pages processed, labeled by status.",
			},
			[]string{"status"},
		)
		extractionDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "exhibitions_extraction_duration_seconds",
				Help:    "Latency of extraction calls, labeled by operation and outcome.",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 90},
			},
			[]string{"operation", "outcome"},
		)
		siteCrawlsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exhibitions_site_crawls_total",
				Help: "Site crawls, labeled by status.",
			},
			[]string{"status"},
		)
		siteCrawlDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "exhibitions_site_crawl_duration_seconds",
				Help:    "Wall time of a full site crawl.",
				Buckets: []float64{5, 15, 30, 60, 120, 300, 600},
			},
		)
		exhibitionsSavedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "exhibitions_saved_total",
				Help: "Exhibition rows written to the store.",
			},
		)
		activeSiteCrawls = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "exhibitions_active_site_crawls",
				Help: "Site crawls currently running.",
			},
		)
		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "exhibitions_rate_limit_delays_seconds",
				Help:    "Histogram of per-host politeness waits.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"host"},
		)
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
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

// SanitizeHost extracts a lowercase hostname from a URL, or "unknown".
func SanitizeHost(rawURL string) string {
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
	Init()
	return promhttp.Handler()
}

// ObserveFetch records one fetch attempt.
func ObserveFetch(tier, outcome string, bytesFetched int) {
	Init()
	fetchesTotal.WithLabelValues(tier, outcome).Inc()
	if bytesFetched > 0 {
		fetchBytesTotal.WithLabelValues(tier).Add(float64(bytesFetched))
	}
}

// ObserveCacheLookup records a cache hit or miss.
func ObserveCacheLookup(hit bool) {
	Init()
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookupsTotal.WithLabelValues(result).Inc()
}

// ObserveDetailPage records the final status of one detail page.
func ObserveDetailPage(status string) {
	Init()
	detailPagesTotal.WithLabelValues(status).Inc()
}

// ObserveExtraction records one extraction call.
func ObserveExtraction(operation string, err error, duration time.Duration) {
	Init()
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	extractionDurationSeconds.WithLabelValues(operation, outcome).Observe(duration.Seconds())
}

// ObserveSiteCrawl records a finished site crawl.
func ObserveSiteCrawl(status string, saved int, duration time.Duration) {
	Init()
	siteCrawlsTotal.WithLabelValues(status).Inc()
	siteCrawlDurationSeconds.Observe(duration.Seconds())
	if saved > 0 {
		exhibitionsSavedTotal.Add(float64(saved))
	}
}

// IncActiveSiteCrawls increments the running site crawl gauge.
func IncActiveSiteCrawls() {
	Init()
	activeSiteCrawls.Inc()
}

// DecActiveSiteCrawls decrements the running site crawl gauge.
func DecActiveSiteCrawls() {
	Init()
	activeSiteCrawls.Dec()
}

// ObserveRateLimitDelay records the duration of a politeness wait.
func ObserveRateLimitDelay(host string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(host).Observe(duration.Seconds())
}

// ObserveHTTPRequest records one request served by the ops API.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
