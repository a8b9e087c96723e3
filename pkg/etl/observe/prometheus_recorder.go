package observe

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	model "github.com/vitoriamariadb/tidal/pkg/etl/core/model"
	logger "github.com/vitoriamariadb/tidal/pkg/etl/support/logger"
)

// PrometheusRecorder is a Prometheus implementation of MetricRecorder.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	runDurationSeconds   *prometheus.HistogramVec
	runStatusCounter     *prometheus.CounterVec
	batchDurationSeconds *prometheus.HistogramVec
	batchRowsRead        *prometheus.CounterVec
	batchRowsWritten     *prometheus.CounterVec
	chunkSizeGauge       *prometheus.GaugeVec
	chunkFailureCounter  *prometheus.CounterVec
	checkpointCounter    *prometheus.CounterVec
	retryCounter         *prometheus.CounterVec
	operationSeconds     *prometheus.HistogramVec
}

// NewPrometheusRecorder creates a PrometheusRecorder with its own registry.
func NewPrometheusRecorder() *PrometheusRecorder {
	registry := prometheus.NewRegistry()

	// Register Go runtime and process metrics.
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &PrometheusRecorder{
		registry: registry,
		runDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "etl_run_duration_seconds",
			Help:    "Duration of pipeline runs.",
			Buckets: prometheus.DefBuckets,
		}, []string{"pipeline", "status"}),
		runStatusCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "etl_run_status_total",
			Help: "Total pipeline runs by status.",
		}, []string{"pipeline", "status"}),
		batchDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "etl_batch_duration_seconds",
			Help:    "Duration of batch executions.",
			Buckets: prometheus.DefBuckets,
		}, []string{"pipeline"}),
		batchRowsRead: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "etl_batch_rows_read_total",
			Help: "Total rows read into batches.",
		}, []string{"pipeline"}),
		batchRowsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "etl_batch_rows_written_total",
			Help: "Total rows written by batches.",
		}, []string{"pipeline"}),
		chunkSizeGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "etl_chunk_size_rows",
			Help: "Current adaptive chunk size.",
		}, []string{"pipeline"}),
		chunkFailureCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "etl_chunk_failure_total",
			Help: "Total failed chunks.",
		}, []string{"pipeline"}),
		checkpointCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "etl_checkpoint_total",
			Help: "Total checkpoints persisted.",
		}, []string{"pipeline"}),
		retryCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "etl_load_retry_total",
			Help: "Total retried load attempts.",
		}, []string{"pipeline"}),
		operationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "etl_operation_duration_seconds",
			Help:    "Duration of named pipeline operations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"pipeline", "operation"}),
	}

	registry.MustRegister(r.runDurationSeconds)
	registry.MustRegister(r.runStatusCounter)
	registry.MustRegister(r.batchDurationSeconds)
	registry.MustRegister(r.batchRowsRead)
	registry.MustRegister(r.batchRowsWritten)
	registry.MustRegister(r.chunkSizeGauge)
	registry.MustRegister(r.chunkFailureCounter)
	registry.MustRegister(r.checkpointCounter)
	registry.MustRegister(r.retryCounter)
	registry.MustRegister(r.operationSeconds)

	return r
}

// GetRegistry returns the Prometheus registry for exposition.
func (r *PrometheusRecorder) GetRegistry() *prometheus.Registry {
	return r.registry
}

// Handler returns an HTTP handler serving the registry.
func (r *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// RecordRunStart records the start of a pipeline run.
func (r *PrometheusRecorder) RecordRunStart(ctx context.Context, pipeline string) {
	logger.Debugf("Metrics: pipeline '%s' run started.", pipeline)
}

// RecordRunEnd records the completion of a pipeline run.
func (r *PrometheusRecorder) RecordRunEnd(ctx context.Context, report *model.RunReport) {
	status := string(report.Status)
	r.runStatusCounter.WithLabelValues(report.Pipeline, status).Inc()
	r.runDurationSeconds.WithLabelValues(report.Pipeline, status).Observe(report.Duration.Seconds())
	logger.Debugf("Metrics: pipeline '%s' run ended. Duration: %.3fs", report.Pipeline, report.Duration.Seconds())
}

// RecordBatch records the outcome of one batch.
func (r *PrometheusRecorder) RecordBatch(ctx context.Context, pipeline string, outcome model.BatchOutcome) {
	r.batchDurationSeconds.WithLabelValues(pipeline).Observe(outcome.Duration.Seconds())
	r.batchRowsRead.WithLabelValues(pipeline).Add(float64(outcome.RowsIn))
	r.batchRowsWritten.WithLabelValues(pipeline).Add(float64(outcome.RowsOut))
	r.chunkSizeGauge.WithLabelValues(pipeline).Set(float64(outcome.ChunkSize))
}

// RecordChunkFailure records one failed chunk.
func (r *PrometheusRecorder) RecordChunkFailure(ctx context.Context, pipeline string) {
	r.chunkFailureCounter.WithLabelValues(pipeline).Inc()
}

// RecordCheckpoint records one persisted checkpoint.
func (r *PrometheusRecorder) RecordCheckpoint(ctx context.Context, pipeline string) {
	r.checkpointCounter.WithLabelValues(pipeline).Inc()
}

// RecordRetry records one retried load attempt.
func (r *PrometheusRecorder) RecordRetry(ctx context.Context, pipeline string) {
	r.retryCounter.WithLabelValues(pipeline).Inc()
}

// RecordDuration records the execution time of a named operation.
func (r *PrometheusRecorder) RecordDuration(ctx context.Context, pipeline, operation string, duration time.Duration) {
	r.operationSeconds.WithLabelValues(pipeline, operation).Observe(duration.Seconds())
}

var _ MetricRecorder = (*PrometheusRecorder)(nil)
