package checkpoint

import (
	"context"
	"errors"

	model "github.com/vitoriamariadb/tidal/pkg/etl/core/model"
	exception "github.com/vitoriamariadb/tidal/pkg/etl/support/exception"
	logger "github.com/vitoriamariadb/tidal/pkg/etl/support/logger"
)

// RecoveryCoordinator decides the resumption point for a pipeline from its
// stored checkpoints. Recovery is step-granular: a batch that failed partway
// is retried in full from its own start, which requires the transform applied
// per batch to be idempotent up to the load stage.
type RecoveryCoordinator struct {
	store Store
}

// NewRecoveryCoordinator creates a RecoveryCoordinator over a Store.
func NewRecoveryCoordinator(store Store) *RecoveryCoordinator {
	return &RecoveryCoordinator{store: store}
}

// CanRecover reports whether the pipeline has at least one valid checkpoint.
func (c *RecoveryCoordinator) CanRecover(ctx context.Context, pipelineName string) bool {
	_, err := c.store.LoadLatestValid(ctx, pipelineName)
	return err == nil
}

// Recover returns the contents of the latest valid checkpoint. The caller
// resumes execution at the returned step, not at row granularity. It returns
// NoRecoverableStateError when the pipeline has nothing valid to resume from.
func (c *RecoveryCoordinator) Recover(ctx context.Context, pipelineName string) (*model.CheckpointRecord, error) {
	record, err := c.store.LoadLatestValid(ctx, pipelineName)
	if err != nil {
		if errors.Is(err, ErrCheckpointNotFound) {
			return nil, exception.NewNoRecoverableStateError(pipelineName)
		}
		if exception.IsCorruptCheckpoint(err) {
			logger.Errorf("Pipeline %q has only corrupt checkpoints: %v", pipelineName, err)
			return nil, err
		}
		return nil, err
	}

	logger.Infof("Pipeline %q recoverable at step %q (seq=%d, rows=%d).",
		pipelineName, record.Step, record.SequenceNumber, len(record.Payload))
	return record, nil
}
