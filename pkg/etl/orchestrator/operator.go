package orchestrator

import (
	"context"

	checkpoint "github.com/vitoriamariadb/tidal/pkg/etl/checkpoint"
	model "github.com/vitoriamariadb/tidal/pkg/etl/core/model"
	logger "github.com/vitoriamariadb/tidal/pkg/etl/support/logger"
)

// Operator is the operational surface of the engine: starting and resuming
// pipelines and inspecting or purging their checkpoints.
type Operator struct {
	runner *Runner
	store  checkpoint.Store
}

// NewOperator creates an Operator.
func NewOperator(runner *Runner, store checkpoint.Store) *Operator {
	return &Operator{runner: runner, store: store}
}

// StartPipeline runs the pipeline from the beginning.
func (o *Operator) StartPipeline(ctx context.Context, p Pipeline) (*model.RunReport, error) {
	logger.Infof("Starting pipeline '%s'.", p.Name)
	return o.runner.Start(ctx, p)
}

// ResumePipeline continues the pipeline from its latest valid checkpoint. It
// returns a NoRecoverableStateError when nothing is stored and a
// CorruptCheckpointError when every stored checkpoint fails verification.
func (o *Operator) ResumePipeline(ctx context.Context, p Pipeline) (*model.RunReport, error) {
	logger.Infof("Resuming pipeline '%s'.", p.Name)
	return o.runner.Resume(ctx, p)
}

// InspectCheckpoints lists the pipeline's checkpoints, newest first,
// including entries that fail checksum verification.
func (o *Operator) InspectCheckpoints(ctx context.Context, pipelineName string) ([]model.CheckpointInfo, error) {
	return o.store.List(ctx, pipelineName)
}

// PurgeCheckpoints deletes all but the newest keepLastN valid checkpoints
// and returns the number deleted.
func (o *Operator) PurgeCheckpoints(ctx context.Context, pipelineName string, keepLastN int) (int, error) {
	deleted, err := o.store.Expire(ctx, pipelineName, keepLastN)
	if err != nil {
		return 0, err
	}
	logger.Infof("Purged %d checkpoints for pipeline '%s' (kept %d).", deleted, pipelineName, keepLastN)
	return deleted, nil
}
