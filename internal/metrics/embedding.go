package metrics

import "github.com/prometheus/client_golang/prometheus"

// Embedding provider metrics. Status is "success" or the failure class.
var (
	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_requests_total",
			Help:      "Embedding provider calls by status",
		},
		[]string{"provider", "model", "status"},
	)

	EmbeddingRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "embedding_request_duration_seconds",
			Help:      "Embedding provider call latency",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"provider", "model"},
	)

	EmbeddingTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_tokens_total",
			Help:      "Tokens billed by the embedding provider",
		},
		[]string{"provider", "model", "type"},
	)

	EmbeddingCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_cache_total",
			Help:      "Query embedding cache lookups",
		},
		[]string{"result"}, // hit / miss
	)

	embeddingGroup = group{collectors: []prometheus.Collector{
		EmbeddingRequestsTotal, EmbeddingRequestDuration, EmbeddingTokensTotal, EmbeddingCacheTotal,
	}}
)

// RegisterEmbeddingMetrics registers the embedding collectors. Safe to call more than once.
func RegisterEmbeddingMetrics() { embeddingGroup.register() }
