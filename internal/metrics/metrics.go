package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "scopenav"
)

var (
	gatewayDurationBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

	// Backend Gateway Metrics
	GatewayRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "gateway_requests_total",
		Help:      "Count of requests issued to the scopes backend.",
	}, []string{"operation", "status"})

	GatewayRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "gateway_request_duration_seconds",
		Help:      "Time taken for a scopes backend request, including retries.",
		Buckets:   gatewayDurationBuckets,
	}, []string{"operation"})

	DegradedFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "degraded_fetches_total",
		Help:      "Count of failed fetches replaced by an empty result or placeholder.",
	}, []string{"operation"})

	// Scope Cache Metrics
	ScopeCacheLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scope_cache_lookups_total",
		Help:      "Scope cache lookups by result (hit, miss, shared).",
	}, []string{"result"})

	ScopeCacheEvictionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scope_cache_evictions_total",
		Help:      "Scope cache entries dropped after a failed fetch.",
	})

	// State Machine Metrics
	StateUpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "state_updates_total",
		Help:      "Snapshots published by each state machine.",
	}, []string{"machine"})

	StaleResultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stale_results_total",
		Help:      "Async results discarded because a newer request superseded them.",
	}, []string{"machine", "operation"})

	// API Server Metrics
	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "api_requests_total",
		Help:      "Requests served by the scopes API.",
	}, []string{"route", "code"})

	// Catalog Metrics
	CatalogReloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "catalog_reloads_total",
		Help:      "Catalog reloads by status (applied, unchanged, failed).",
	}, []string{"status"})

	CatalogObjects = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "catalog_objects",
		Help:      "Objects loaded in the serving catalog.",
	}, []string{"kind"})
)
