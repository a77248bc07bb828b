package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation, capacity limits.
	HTTPRequestsInFlight prometheus.Gauge

	// Upstream provider call rate by provider and status. Watch for: error vs success ratio.
	UpstreamCallsTotal *prometheus.CounterVec

	// Upstream latency per call. Watch for: p95 > 2s (provider degradation), p99 near the 10s timeout.
	UpstreamDurationSeconds *prometheus.HistogramVec

	// Upstream failures by provider and category (timeout, rate_limited, upstream_5xx, ...).
	UpstreamErrorsTotal *prometheus.CounterVec

	// Circuit breaker state per provider: 0 closed, 1 half-open, 2 open.
	CircuitBreakerState *prometheus.GaugeVec

	// Normalizer failures by provider and reason (incomplete, provider_error, decode).
	NormalizeErrorsTotal *prometheus.CounterVec

	// Cache hits by endpoint tag (onecall, om, geocode, aqi, ...).
	CacheHitsTotal *prometheus.CounterVec

	// Cache misses by endpoint tag. Hit rate = hits/(hits+misses).
	CacheMissesTotal *prometheus.CounterVec

	// Cache backend errors by operation (get, set). Always non-fatal to the request.
	CacheErrorsTotal *prometheus.CounterVec

	// Cache operation latency by operation. Watch for: slow disk or remote backend.
	CacheOperationDurationSeconds *prometheus.HistogramVec

	// Concurrent misses for the same key. Watch for: hot keys that would benefit from coalescing.
	CacheStampedeDetectedTotal *prometheus.CounterVec

	// Number of callers sharing a missed key when a stampede was detected.
	CacheStampedeConcurrency *prometheus.HistogramVec

	// Requests served from another caller's in-flight fetch (coalescing enabled).
	RequestCoalescingHitsTotal *prometheus.CounterVec

	// Time coalesced callers waited for the shared fetch.
	RequestCoalescingWaitSeconds *prometheus.HistogramVec

	// Warming passes. Watch for: passes without matching completions.
	CacheWarmingTotal prometheus.Counter

	// Warming passes with at least one failed target.
	CacheWarmingErrorsTotal prometheus.Counter

	// Duration of a full warming pass.
	CacheWarmingDurationSeconds prometheus.Histogram

	// Confidence classifications by level. Watch for: persistent low agreement between providers.
	ConfidenceScoresTotal *prometheus.CounterVec

	// PAGASA scrape outcomes (ok, fetch_failed, parse_failed).
	RegionalScrapesTotal *prometheus.CounterVec

	// Rate limit denials. Watch for: overload, capacity exceeded.
	RateLimitDeniedTotal prometheus.Counter
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	UpstreamCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstreamCallsTotal",
			Help: "Total number of upstream provider calls",
		},
		[]string{"provider", "status"},
	)
	UpstreamDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstreamDurationSeconds",
			Help:    "Upstream provider latency in seconds (per call)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"provider", "status"},
	)
	UpstreamErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstreamErrorsTotal",
			Help: "Upstream provider failures by category",
		},
		[]string{"provider", "category"},
	)
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuitBreakerState",
			Help: "Circuit breaker state per provider (0 closed, 1 half-open, 2 open)",
		},
		[]string{"provider"},
	)
	NormalizeErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "normalizeErrorsTotal",
			Help: "Provider payloads that could not be normalized",
		},
		[]string{"provider", "reason"},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "Total number of cache hits by endpoint tag",
		},
		[]string{"tag"},
	)
	CacheMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheMissesTotal",
			Help: "Total number of cache misses by endpoint tag",
		},
		[]string{"tag"},
	)
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheErrorsTotal",
			Help: "Cache backend errors by operation",
		},
		[]string{"operation"},
	)
	CacheOperationDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cacheOperationDurationSeconds",
			Help:    "Cache operation latency in seconds",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5},
		},
		[]string{"operation"},
	)
	CacheStampedeDetectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheStampedeDetectedTotal",
			Help: "Concurrent cache misses for the same key",
		},
		[]string{"tag"},
	)
	CacheStampedeConcurrency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cacheStampedeConcurrency",
			Help:    "Concurrent callers on a missed key when a stampede was detected",
			Buckets: []float64{2, 3, 5, 10, 20, 50},
		},
		[]string{"tag"},
	)
	RequestCoalescingHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "requestCoalescingHitsTotal",
			Help: "Requests served from a shared in-flight upstream fetch",
		},
		[]string{"tag"},
	)
	RequestCoalescingWaitSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "requestCoalescingWaitSeconds",
			Help:    "Time coalesced requests waited for the shared fetch",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"tag"},
	)
	CacheWarmingTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingTotal",
			Help: "Total number of cache warming passes",
		},
	)
	CacheWarmingErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingErrorsTotal",
			Help: "Cache warming passes with at least one failed target",
		},
	)
	CacheWarmingDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cacheWarmingDurationSeconds",
			Help:    "Duration of a cache warming pass in seconds",
			Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30},
		},
	)
	ConfidenceScoresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "confidenceScoresTotal",
			Help: "Confidence classifications by level",
		},
		[]string{"confidence"},
	)
	RegionalScrapesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "regionalScrapesTotal",
			Help: "PAGASA forecast scrapes by outcome",
		},
		[]string{"outcome"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		UpstreamCallsTotal, UpstreamDurationSeconds, UpstreamErrorsTotal, CircuitBreakerState,
		NormalizeErrorsTotal,
		CacheHitsTotal, CacheMissesTotal, CacheErrorsTotal, CacheOperationDurationSeconds,
		CacheStampedeDetectedTotal, CacheStampedeConcurrency,
		RequestCoalescingHitsTotal, RequestCoalescingWaitSeconds,
		CacheWarmingTotal, CacheWarmingErrorsTotal, CacheWarmingDurationSeconds,
		ConfidenceScoresTotal, RegionalScrapesTotal,
		RateLimitDeniedTotal,
	)
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
