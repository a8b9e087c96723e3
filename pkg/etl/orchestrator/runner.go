package orchestrator

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"

	checkpoint "github.com/vitoriamariadb/tidal/pkg/etl/checkpoint"
	connector "github.com/vitoriamariadb/tidal/pkg/etl/connector"
	config "github.com/vitoriamariadb/tidal/pkg/etl/core/config"
	model "github.com/vitoriamariadb/tidal/pkg/etl/core/model"
	planner "github.com/vitoriamariadb/tidal/pkg/etl/engine/planner"
	pool "github.com/vitoriamariadb/tidal/pkg/etl/engine/pool"
	retry "github.com/vitoriamariadb/tidal/pkg/etl/engine/retry"
	export "github.com/vitoriamariadb/tidal/pkg/etl/export"
	incremental "github.com/vitoriamariadb/tidal/pkg/etl/incremental"
	lineage "github.com/vitoriamariadb/tidal/pkg/etl/lineage"
	observe "github.com/vitoriamariadb/tidal/pkg/etl/observe"
	quality "github.com/vitoriamariadb/tidal/pkg/etl/quality"
	exception "github.com/vitoriamariadb/tidal/pkg/etl/support/exception"
	logger "github.com/vitoriamariadb/tidal/pkg/etl/support/logger"
)

// Runner executes pipelines. One Runner serves any number of pipelines;
// per-run state lives on the stack of Run.
type Runner struct {
	cfg          *config.Config
	planner      *planner.BatchPlanner
	pool         *pool.WorkerPool
	retryFactory *retry.DefaultRetryPolicyFactory
	store        checkpoint.Store
	recovery     *checkpoint.RecoveryCoordinator
	tracker      *incremental.Tracker
	connectors   *connector.Factory
	exporter     *export.Exporter
	lineage      *lineage.Tracker
	recorder     observe.MetricRecorder
	telemetry    *observe.Telemetry
}

// NewRunner creates a Runner.
func NewRunner(
	cfg *config.Config,
	batchPlanner *planner.BatchPlanner,
	workerPool *pool.WorkerPool,
	retryFactory *retry.DefaultRetryPolicyFactory,
	store checkpoint.Store,
	recovery *checkpoint.RecoveryCoordinator,
	tracker *incremental.Tracker,
	connectors *connector.Factory,
	exporter *export.Exporter,
	lineageTracker *lineage.Tracker,
	recorder observe.MetricRecorder,
	telemetry *observe.Telemetry,
) *Runner {
	return &Runner{
		cfg:          cfg,
		planner:      batchPlanner,
		pool:         workerPool,
		retryFactory: retryFactory,
		store:        store,
		recovery:     recovery,
		tracker:      tracker,
		connectors:   connectors,
		exporter:     exporter,
		lineage:      lineageTracker,
		recorder:     recorder,
		telemetry:    telemetry,
	}
}

// Start runs the pipeline from the beginning, ignoring any stored
// checkpoints.
func (r *Runner) Start(ctx context.Context, p Pipeline) (*model.RunReport, error) {
	return r.run(ctx, p, nil)
}

// Resume continues the pipeline from its latest valid checkpoint. Replay is
// at least once: the batch in flight when the previous run stopped is
// executed again, so transforms and loads must be idempotent.
func (r *Runner) Resume(ctx context.Context, p Pipeline) (*model.RunReport, error) {
	record, err := r.recovery.Recover(ctx, p.Name)
	if err != nil {
		return nil, err
	}
	logger.Infof("Resuming pipeline '%s' from checkpoint seq=%d step=%s.", p.Name, record.SequenceNumber, record.Step)
	return r.run(ctx, p, record)
}

// run is the batch loop shared by Start and Resume.
func (r *Runner) run(ctx context.Context, p Pipeline, resumeFrom *model.CheckpointRecord) (*model.RunReport, error) {
	engineCfg := r.cfg.Tidal.Engine
	report := &model.RunReport{
		RunID:     uuid.New().String(),
		Pipeline:  p.Name,
		StartedAt: time.Now().UTC(),
	}
	r.recorder.RecordRunStart(ctx, p.Name)

	ctx, span := r.telemetry.Tracer.Start(ctx, "pipeline.run")
	defer span.End()

	finish := func(status model.RunStatus, runErr error) (*model.RunReport, error) {
		report.Status = status
		report.Duration = time.Since(report.StartedAt)
		r.recorder.RecordRunEnd(ctx, report)
		logger.Infof("Pipeline '%s' run %s finished: status=%s read=%d written=%d batches=%d duration=%s",
			p.Name, report.RunID, status, report.RowsRead, report.RowsWritten, len(report.Batches), report.Duration)
		return report, runErr
	}

	records, err := r.extract(ctx, p)
	if err != nil {
		report.Failures = append(report.Failures, err.Error())
		return finish(model.RunStatusFailed, err)
	}
	report.RowsRead = len(records)

	// Resume restarts the failed batch from its recorded offset; everything
	// before the offset was loaded and checkpointed by the previous run.
	offset := 0
	chunkSize := engineCfg.InitialChunkRows
	batchIndex := 0
	var written model.Snapshot
	if resumeFrom != nil {
		offset = metadataInt(resumeFrom.Metadata, "offset")
		if size := metadataInt(resumeFrom.Metadata, "chunk_size"); size > 0 {
			chunkSize = size
		}
		batchIndex = metadataInt(resumeFrom.Metadata, "batch_index") + 1
		written = resumeFrom.Payload
		if offset > len(records) {
			offset = len(records)
		}
	}

	destConn, err := r.connectors.ForRef(p.DestRef)
	if err != nil {
		report.Failures = append(report.Failures, err.Error())
		return finish(model.RunStatusFailed, err)
	}

	validator := quality.NewValidator(p.Rules...)
	policy := r.retryFactory.FromConfig(engineCfg.Retry)
	budget := time.Duration(engineCfg.BatchTimeoutSeconds) * time.Second
	r.planner.ResetStreak()

	// Once a batch loses a chunk the accumulated output has a gap, so that
	// batch and every later one go uncheckpointed; a resume then replays
	// from the last fully complete batch and recovers the lost rows.
	checkpointing := true

	for offset < len(records) {
		if ctx.Err() != nil {
			report.Failures = append(report.Failures, ctx.Err().Error())
			return finish(model.RunStatusFailed, ctx.Err())
		}

		end := offset + chunkSize*engineCfg.ChunksPerBatch
		if end > len(records) {
			end = len(records)
		}
		slice := records[offset:end]

		chunks, plan, err := r.planner.Partition(slice, chunkSize)
		if err != nil {
			report.Failures = append(report.Failures, err.Error())
			return finish(model.RunStatusFailed, err)
		}

		result, err := r.pool.Run(ctx, chunks, r.transform(p), pool.Options{
			Concurrency: engineCfg.Concurrency,
			FailFast:    engineCfg.FailFast,
			Budget:      budget,
			BatchIndex:  batchIndex,
			Pipeline:    p.Name,
		})
		if err != nil {
			// Timed out and failed fast batches are never checkpointed so a
			// resume replays them in full.
			for range result.Failed {
				r.recorder.RecordChunkFailure(ctx, p.Name)
			}
			report.Failures = append(report.Failures, err.Error())
			if exception.IsBatchTimeout(err) {
				logger.Errorf("Pipeline '%s' batch %d exceeded its %s budget.", p.Name, batchIndex, budget)
			}
			return finish(model.RunStatusFailed, err)
		}

		for _, failure := range result.Failed {
			r.recorder.RecordChunkFailure(ctx, p.Name)
			report.Failures = append(report.Failures, failure.Err.Error())
		}

		output := result.Output()
		qualityReport := validator.Validate(output)
		if !qualityReport.Valid && r.cfg.Tidal.Quality.Mode == "strict" {
			err := exception.NewETLErrorf(moduleName, "pipeline '%s' batch %d failed %d quality rules", p.Name, batchIndex, qualityReport.Failed)
			report.Failures = append(report.Failures, err.Error())
			return finish(model.RunStatusFailed, err)
		}

		written = append(written, output...)

		if err := r.load(ctx, p, destConn, written, policy); err != nil {
			report.Failures = append(report.Failures, err.Error())
			return finish(model.RunStatusFailed, err)
		}

		if len(result.Failed) > 0 {
			checkpointing = false
			logger.Warnf("Pipeline '%s' batch %d lost %d chunks and is not checkpointed.", p.Name, batchIndex, len(result.Failed))
		}

		outcome := model.BatchOutcome{
			Index:        batchIndex,
			ChunkSize:    chunkSize,
			RowsIn:       plan.TotalRecords,
			RowsOut:      len(output),
			FailedChunks: len(result.Failed),
			Duration:     result.Duration,
		}

		if checkpointing {
			metadata := model.Metadata{
				"run_id":       report.RunID,
				"offset":       end,
				"chunk_size":   chunkSize,
				"batch_index":  batchIndex,
				"rows_written": len(written),
			}
			step := fmt.Sprintf("batch-%d", batchIndex)
			if _, err := r.store.Create(ctx, p.Name, step, written, metadata); err != nil {
				report.Failures = append(report.Failures, err.Error())
				return finish(model.RunStatusFailed, err)
			}
			r.recorder.RecordCheckpoint(ctx, p.Name)
			outcome.Checkpointed = true

			r.lineage.RecordStep(p.SourceRef, p.Name+"/"+step, p.DestRef, model.Metadata{
				"rows_in":  plan.TotalRecords,
				"rows_out": len(output),
			})
		}

		report.Batches = append(report.Batches, outcome)
		report.RowsWritten = len(written)
		r.recorder.RecordBatch(ctx, p.Name, outcome)

		if len(result.Failed) == 0 {
			perChunk := result.Duration
			if plan.ChunkCount > 0 {
				perChunk = result.Duration / time.Duration(plan.ChunkCount)
			}
			chunkSize = r.planner.Adapt(chunkSize, perChunk, memoryPressure())
		}

		offset = end
		batchIndex++
	}

	status := model.RunStatusCompleted
	if len(report.Failures) > 0 {
		status = model.RunStatusPartiallyFailed
	}

	// The watermark only advances after every batch landed; a partially
	// failed run keeps the old watermark so failed records are re-extracted.
	if p.Incremental.Enabled && status == model.RunStatusCompleted && len(records) > 0 {
		if err := r.commitWatermark(ctx, p, records); err != nil {
			report.Failures = append(report.Failures, err.Error())
			return finish(model.RunStatusFailed, err)
		}
	}

	if len(p.Exports) > 0 {
		objects, err := r.exporter.ExportAll(ctx, written, p.Exports)
		if err != nil {
			report.Failures = append(report.Failures, err.Error())
			status = model.RunStatusPartiallyFailed
		}
		for _, objectName := range objects {
			logger.Infof("Pipeline '%s' exported %q.", p.Name, objectName)
		}
	}

	return finish(status, nil)
}

// extract reads the source snapshot and, for incremental pipelines, reduces
// it to the delta beyond the stored watermark.
func (r *Runner) extract(ctx context.Context, p Pipeline) (model.Snapshot, error) {
	sourceConn, err := r.connectors.ForRef(p.SourceRef)
	if err != nil {
		return nil, err
	}
	snapshot, err := sourceConn.Read(ctx, p.SourceRef, p.SourceOptions)
	if err != nil {
		return nil, err
	}

	if !p.Incremental.Enabled {
		return snapshot, nil
	}

	delta, err := r.tracker.Delta(ctx, snapshot, p.Incremental.KeyColumn, p.Incremental.ComparisonColumn, p.stateKey())
	if err != nil {
		return nil, err
	}
	if len(delta.DeletedKeys) > 0 {
		logger.Infof("Pipeline '%s': %d keys deleted since last run.", p.Name, len(delta.DeletedKeys))
	}
	logger.Infof("Pipeline '%s': delta reduced %d records to %d.", p.Name, len(snapshot), len(delta.Records))
	return delta.Records, nil
}

// transform wraps the pipeline transform, defaulting to identity.
func (r *Runner) transform(p Pipeline) pool.TransformFunc {
	if p.Transform != nil {
		return p.Transform
	}
	return func(ctx context.Context, records model.Snapshot) (model.Snapshot, error) {
		return records, nil
	}
}

// load rewrites the destination with the accumulated output under the retry
// policy. Rewriting the full output keeps replays idempotent.
func (r *Runner) load(ctx context.Context, p Pipeline, destConn connector.Connector, written model.Snapshot, policy retry.RetryPolicy) error {
	attempt := 0
	return retry.Execute(ctx, policy, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			r.recorder.RecordRetry(ctx, p.Name)
		}
		return destConn.Write(ctx, written, p.DestRef, p.DestOptions)
	})
}

// commitWatermark advances the incremental state to the maximum observed
// watermark, with CDC hashes when configured.
func (r *Runner) commitWatermark(ctx context.Context, p Pipeline, records model.Snapshot) error {
	watermark, err := incremental.MaxWatermark(records, p.Incremental.ComparisonColumn)
	if err != nil {
		return err
	}
	var hashes map[string]string
	if r.cfg.Tidal.Incremental.Mode == "cdc" {
		hashes = incremental.KeyHashes(records, p.Incremental.KeyColumn)
	}
	return r.tracker.Commit(ctx, p.stateKey(), watermark, hashes)
}

// metadataInt reads an integer metadata value, tolerating the float64 form
// JSON decoding produces.
func metadataInt(md model.Metadata, key string) int {
	switch v := md[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

// memoryPressure estimates heap pressure as the in-use fraction of the heap
// obtained from the runtime.
func memoryPressure() float64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	if m.HeapSys == 0 {
		return 0
	}
	return float64(m.HeapInuse) / float64(m.HeapSys)
}
