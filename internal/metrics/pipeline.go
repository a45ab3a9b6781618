package metrics

import "github.com/prometheus/client_golang/prometheus"

// Pipeline Prometheus metrics.
var (
	PipelineRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docingest",
			Name:      "pipeline_runs_total",
			Help:      "Pipeline runs by final status",
		},
		[]string{"status"}, // "completed" / "partial" / "error"
	)

	PipelineStageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docingest",
			Name:      "pipeline_stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"stage"},
	)

	PipelinePagesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "docingest",
			Name:      "pipeline_pages_total",
			Help:      "Pages parsed",
		},
	)

	PipelineChunksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docingest",
			Name:      "pipeline_chunks_total",
			Help:      "Chunks by pipeline step",
		},
		[]string{"step"}, // "created" / "selected" / "embedded" / "uploaded"
	)

	UploadBatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docingest",
			Name:      "upload_batches_total",
			Help:      "Index upsert batches by result",
		},
		[]string{"status"}, // "ok" / "error" / "canceled"
	)

	PipelineInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "docingest",
			Name:      "pipeline_documents_in_flight",
			Help:      "Documents currently being processed",
		},
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers Prometheus pipeline metrics. Must be called once from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(PipelineRunsTotal)
	prometheus.MustRegister(PipelineStageDuration)
	prometheus.MustRegister(PipelinePagesTotal)
	prometheus.MustRegister(PipelineChunksTotal)
	prometheus.MustRegister(UploadBatchesTotal)
	prometheus.MustRegister(PipelineInFlight)
	pipelineMetricsRegistered = true
}
