package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	pipelineStageTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabletalk_pipeline_stage_total",
			Help: "Pipeline stage executions by outcome status.",
		},
		[]string{"stage", "status"},
	)
	pipelineStageDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tabletalk_pipeline_stage_duration_seconds",
			Help:    "Pipeline stage latency.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"stage"},
	)
	pipelineIntentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabletalk_pipeline_intent_total",
			Help: "Follow-up intents chosen by the SQL generation stage.",
		},
		[]string{"intent"},
	)
	llmRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabletalk_llm_requests_total",
			Help: "Language model completions by provider and result.",
		},
		[]string{"provider", "status"},
	)
	llmLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tabletalk_llm_latency_seconds",
			Help:    "Language model completion latency.",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
		},
		[]string{"provider"},
	)
	sqlGenerationAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabletalk_sql_generation_attempts_total",
			Help: "SQL synthesizer attempts by result.",
		},
		[]string{"result"},
	)
	warehouseRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tabletalk_warehouse_retries_total",
			Help: "Warehouse operations retried after a transient error.",
		},
	)
	uploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabletalk_uploads_total",
			Help: "Table uploads by result.",
		},
		[]string{"status"},
	)
	uploadRowsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tabletalk_upload_rows_total",
			Help: "Rows written by table uploads.",
		},
	)
	uploadDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tabletalk_upload_duration_seconds",
			Help:    "Table upload latency from parse to commit.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
	)
)

func init() {
	prometheus.MustRegister(
		pipelineStageTotal,
		pipelineStageDurationSeconds,
		pipelineIntentTotal,
		llmRequestsTotal,
		llmLatencySeconds,
		sqlGenerationAttemptsTotal,
		warehouseRetriesTotal,
		uploadsTotal,
		uploadRowsTotal,
		uploadDurationSeconds,
	)
}

func ObservePipelineStage(stage, status string, elapsed time.Duration) {
	pipelineStageTotal.WithLabelValues(stage, status).Inc()
	pipelineStageDurationSeconds.WithLabelValues(stage).Observe(elapsed.Seconds())
}

func IncrementIntent(intent string) {
	pipelineIntentTotal.WithLabelValues(intent).Inc()
}

func ObserveLLMRequest(provider string, err error, elapsed time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	llmRequestsTotal.WithLabelValues(provider, status).Inc()
	llmLatencySeconds.WithLabelValues(provider).Observe(elapsed.Seconds())
}

func IncrementSQLGenerationAttempt(result string) {
	sqlGenerationAttemptsTotal.WithLabelValues(result).Inc()
}

func IncrementWarehouseRetry() {
	warehouseRetriesTotal.Inc()
}

func ObserveUpload(rows int, err error, elapsed time.Duration) {
	if err != nil {
		uploadsTotal.WithLabelValues("error").Inc()
		return
	}
	uploadsTotal.WithLabelValues("success").Inc()
	if rows > 0 {
		uploadRowsTotal.Add(float64(rows))
	}
	uploadDurationSeconds.Observe(elapsed.Seconds())
}
