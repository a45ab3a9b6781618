package metrics

import "github.com/prometheus/client_golang/prometheus"

// Embedding Prometheus metrics.
var (
	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docingest",
			Name:      "embedding_requests_total",
			Help:      "Total number of embedding requests",
		},
		[]string{"provider", "model", "status"},
	)

	EmbeddingRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docingest",
			Name:      "embedding_request_duration_seconds",
			Help:      "Embedding request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"provider", "model"},
	)

	EmbeddingTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docingest",
			Name:      "embedding_tokens_total",
			Help:      "Total embedding tokens consumed",
		},
		[]string{"provider", "model", "type"},
	)

	EmbeddingErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docingest",
			Name:      "embedding_errors_total",
			Help:      "Total embedding errors",
		},
		[]string{"provider", "model", "error_type"},
	)

	EmbeddingBatchSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docingest",
			Name:      "embedding_batch_size",
			Help:      "Number of texts per embedding model call",
			Buckets:   []float64{1, 4, 8, 16, 32, 64, 128, 256},
		},
		[]string{"provider", "model"},
	)

	EmbeddingCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docingest",
			Name:      "embedding_cache_total",
			Help:      "Embedding cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)

	EmbeddingCacheEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "docingest",
			Name:      "embedding_cache_entries",
			Help:      "Vectors held by the embedding cache",
		},
	)

	EmbeddingModelLoadSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "docingest",
			Name:      "embedding_model_load_seconds",
			Help:      "Time the lazy model load took; zero until the first cache miss",
		},
	)
)

var embMetricsRegistered bool

// RegisterEmbeddingMetrics registers Prometheus embedding metrics. Must be called once from main.
func RegisterEmbeddingMetrics() {
	if embMetricsRegistered {
		return
	}
	prometheus.MustRegister(
		EmbeddingRequestsTotal,
		EmbeddingRequestDuration,
		EmbeddingTokensTotal,
		EmbeddingErrorsTotal,
		EmbeddingBatchSize,
		EmbeddingCacheTotal,
		EmbeddingCacheEntries,
		EmbeddingModelLoadSeconds,
	)
	embMetricsRegistered = true
}
