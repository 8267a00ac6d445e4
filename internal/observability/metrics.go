// Package observability holds the Prometheus collectors shared by the resolver components.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cache lookup outcomes.
const (
	CacheFresh = "fresh"
	CacheStale = "stale"
	CacheMiss  = "miss"
	CacheError = "error"
)

var (
	// CacheLookups counts Cache Store lookups by memoized function and outcome.
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flavorwise_cache_lookups_total",
			Help: "Total number of cache store lookups by function and result",
		},
		[]string{"function", "result"},
	)

	// CacheWriteFailures counts upserts that failed and left the result uncached.
	CacheWriteFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flavorwise_cache_write_failures_total",
			Help: "Total number of failed cache store writes",
		},
		[]string{"function"},
	)

	// PoolInflight tracks tasks currently executing on each worker pool.
	PoolInflight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "flavorwise_pool_inflight",
			Help: "Number of tasks currently running on a worker pool",
		},
		[]string{"pool"},
	)

	// PoolTasks counts completed pool tasks by outcome (ok, error, timeout, panic).
	PoolTasks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flavorwise_pool_tasks_total",
			Help: "Total number of worker pool tasks by outcome",
		},
		[]string{"pool", "outcome"},
	)

	// ProviderCalls counts outbound provider API calls.
	ProviderCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flavorwise_provider_calls_total",
			Help: "Total number of provider API calls by provider, operation and error kind",
		},
		[]string{"provider", "operation", "outcome"},
	)

	// ProviderCallDuration observes outbound provider API latency.
	ProviderCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flavorwise_provider_call_duration_seconds",
			Help:    "Latency of provider API calls",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
		[]string{"provider", "operation"},
	)

	// FindRequests counts resolver lookups by cloud, mode and outcome.
	FindRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flavorwise_find_requests_total",
			Help: "Total number of flavor resolver requests by cloud type, mode and outcome",
		},
		[]string{"cloud_type", "mode", "outcome"},
	)

	// Recommendations counts emitted migration recommendations per source cloud.
	Recommendations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flavorwise_migration_recommendations_total",
			Help: "Total number of migration recommendations emitted",
		},
		[]string{"cloud_type"},
	)
)
