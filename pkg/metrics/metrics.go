// Package metrics registers the tracker's Prometheus instruments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Scraper
	ScrapeAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ntk_scrape_attempts_total",
			Help: "Scrape cycles by result (ok, fetch_error, insert_error)",
		},
		[]string{"result"},
	)

	ScrapeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ntk_scrape_duration_seconds",
			Help:    "Duration of the upstream page fetch",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)

	// BreakerState is 0 closed, 1 half-open, 2 open.
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ntk_circuit_breaker_state",
			Help: "Circuit breaker state by breaker name",
		},
		[]string{"name"},
	)

	LastOccupancy = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ntk_occupancy_people",
			Help: "People count of the most recent reading",
		},
	)

	// Store
	ReadingsInserted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ntk_readings_inserted_total",
			Help: "Readings written to the store, including imports",
		},
	)

	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ntk_store_errors_total",
			Help: "Store failures converted to neutral results, by operation",
		},
		[]string{"operation"},
	)

	StorageBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ntk_storage_used_bytes",
			Help: "Bytes allocated under the data directory",
		},
	)

	// Cache
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ntk_cache_hits_total",
			Help: "Cache hits by namespace",
		},
		[]string{"namespace"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ntk_cache_misses_total",
			Help: "Cache misses by namespace",
		},
		[]string{"namespace"},
	)

	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ntk_cache_evictions_total",
			Help: "Cache entries dropped by reason (expired, invalidated, flushed)",
		},
		[]string{"reason"},
	)

	// Prediction
	PredictDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ntk_predict_build_seconds",
			Help:    "Time to assemble an uncached day curve",
			Buckets: prometheus.DefBuckets,
		},
	)

	// HTTP
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ntk_http_requests_total",
			Help: "HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ntk_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	RateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ntk_rate_limited_total",
			Help: "Requests rejected by a rate limiter, by limiter group",
		},
		[]string{"group"},
	)

	// Live updates
	LiveClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ntk_live_clients",
			Help: "Connected WebSocket clients",
		},
	)
)
