package metrics

import "github.com/prometheus/client_golang/prometheus"

// Search pipeline Prometheus metrics.
var (
	SearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_requests_total",
			Help:      "Search calls by result mode and outcome",
		},
		[]string{"mode", "outcome"},
	)

	SearchStageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_stage_duration_seconds",
			Help:      "Duration of search pipeline stages in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"stage"}, // access / structured / semantic / merge
	)

	SearchDegradedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_degraded_total",
			Help:      "Searches that fell back to structured-only ranking",
		},
		[]string{"reason"},
	)

	AccessCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "access_cache_total",
			Help:      "Access resolver cache hits and misses",
		},
		[]string{"result"},
	)

	SyncTasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_tasks_total",
			Help:      "Semantic sync tasks by result",
		},
		[]string{"result"}, // synced / unchanged / gone / retry / failed / dropped
	)

	SyncQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sync_queue_depth",
			Help:      "Pending tasks in the sync outbox",
		},
	)

	ToolCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool calls by outcome",
		},
		[]string{"outcome"}, // ok / invalid_filter / timeout / unavailable
	)

	searchGroup = group{collectors: []prometheus.Collector{
		SearchRequestsTotal, SearchStageDuration, SearchDegradedTotal,
		AccessCacheTotal, SyncTasksTotal, SyncQueueDepth, ToolCallsTotal,
	}}
)

// RegisterSearchMetrics registers the search, access and sync collectors. Safe to call more than once.
func RegisterSearchMetrics() { searchGroup.register() }
