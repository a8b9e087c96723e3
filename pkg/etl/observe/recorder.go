// Package observe provides metrics recording and tracing bootstrap for
// pipeline runs. The engine records through the MetricRecorder abstraction so
// backends can be swapped without touching orchestration code.
package observe

import (
	"context"
	"time"

	model "github.com/vitoriamariadb/tidal/pkg/etl/core/model"
)

// MetricRecorder records pipeline execution metrics.
type MetricRecorder interface {
	// RecordRunStart records the start of a pipeline run.
	RecordRunStart(ctx context.Context, pipeline string)
	// RecordRunEnd records the completion of a pipeline run with its report.
	RecordRunEnd(ctx context.Context, report *model.RunReport)
	// RecordBatch records the outcome of one batch.
	RecordBatch(ctx context.Context, pipeline string, outcome model.BatchOutcome)
	// RecordChunkFailure records one failed chunk.
	RecordChunkFailure(ctx context.Context, pipeline string)
	// RecordCheckpoint records one persisted checkpoint.
	RecordCheckpoint(ctx context.Context, pipeline string)
	// RecordRetry records one retried load attempt.
	RecordRetry(ctx context.Context, pipeline string)
	// RecordDuration records the execution time of a named operation.
	RecordDuration(ctx context.Context, pipeline, operation string, duration time.Duration)
}
