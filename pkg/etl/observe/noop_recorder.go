package observe

import (
	"context"
	"time"

	model "github.com/vitoriamariadb/tidal/pkg/etl/core/model"
)

// NoOpMetricRecorder is a MetricRecorder that does nothing. It is used when
// metrics are disabled and during testing.
type NoOpMetricRecorder struct{}

// NewNoOpMetricRecorder creates a NoOpMetricRecorder.
func NewNoOpMetricRecorder() MetricRecorder {
	return &NoOpMetricRecorder{}
}

func (r *NoOpMetricRecorder) RecordRunStart(ctx context.Context, pipeline string)         {}
func (r *NoOpMetricRecorder) RecordRunEnd(ctx context.Context, report *model.RunReport)   {}
func (r *NoOpMetricRecorder) RecordBatch(ctx context.Context, pipeline string, outcome model.BatchOutcome) {
}
func (r *NoOpMetricRecorder) RecordChunkFailure(ctx context.Context, pipeline string) {}
func (r *NoOpMetricRecorder) RecordCheckpoint(ctx context.Context, pipeline string)   {}
func (r *NoOpMetricRecorder) RecordRetry(ctx context.Context, pipeline string)        {}
func (r *NoOpMetricRecorder) RecordDuration(ctx context.Context, pipeline, operation string, duration time.Duration) {
}

var _ MetricRecorder = (*NoOpMetricRecorder)(nil)
