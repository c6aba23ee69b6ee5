// Package metrics defines the Prometheus collectors published by the
// service. A single Metrics value is constructed at startup and threaded
// into the components that observe it.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every collector the service publishes.
type Metrics struct {
	// Browser pool gauges, refreshed after every acquire and release.
	BrowserPoolTotal     prometheus.Gauge
	BrowserPoolInUse     prometheus.Gauge
	BrowserPoolAvailable prometheus.Gauge

	// Two-tier cache counters, labeled by tier ("fast" or "durable").
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec

	// Scrape wall-clock duration in milliseconds, labeled by domain.
	ScrapingDurationMS *prometheus.HistogramVec

	// LLM accounting, labeled by model and endpoint tag; calls also carry
	// the outcome status ("ok", "timeout", "auth", "rate_limited",
	// "protocol", "error").
	OpenAITokensUsed *prometheus.CounterVec
	OpenAIAPICalls   *prometheus.CounterVec

	// Active, unexpired run count, refreshed on a 60 s cadence.
	RunsActive prometheus.Gauge

	// HTTP surface.
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates and registers all collectors on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		BrowserPoolTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "browser_pool_total",
			Help: "Configured size of the browser worker pool.",
		}),
		BrowserPoolInUse: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "browser_pool_in_use",
			Help: "Browser workers currently leased.",
		}),
		BrowserPoolAvailable: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "browser_pool_available",
			Help: "Browser workers free for acquisition.",
		}),
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Scrape cache hits by tier.",
		}, []string{"tier"}),
		CacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Scrape cache misses by tier.",
		}, []string{"tier"}),
		ScrapingDurationMS: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scraping_duration_ms",
			Help:    "Wall-clock duration of full scrape pipelines in milliseconds.",
			Buckets: []float64{500, 1000, 2500, 5000, 10000, 20000, 40000, 80000},
		}, []string{"domain"}),
		OpenAITokensUsed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "openai_tokens_used_total",
			Help: "Total tokens consumed by LLM calls.",
		}, []string{"model", "endpoint"}),
		OpenAIAPICalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "openai_api_calls_total",
			Help: "LLM provider calls by outcome; retries count separately.",
		}, []string{"model", "endpoint", "status"}),
		RunsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "runs_active",
			Help: "Active, unexpired pipeline runs.",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests served.",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}

	reg.MustRegister(
		m.BrowserPoolTotal,
		m.BrowserPoolInUse,
		m.BrowserPoolAvailable,
		m.CacheHits,
		m.CacheMisses,
		m.ScrapingDurationMS,
		m.OpenAITokensUsed,
		m.OpenAIAPICalls,
		m.RunsActive,
		m.HTTPRequests,
		m.HTTPRequestDuration,
	)

	return m
}

// NewForTest creates an unregistered-collector set on a throwaway registry,
// for use in package tests.
func NewForTest() *Metrics {
	return New(prometheus.NewRegistry())
}
