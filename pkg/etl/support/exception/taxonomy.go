package exception

import (
	"errors"
	"fmt"
	"time"
)

// ChunkProcessingError reports the failure of a single chunk inside a batch.
// It carries the chunk index so callers can tell which unit failed while the
// rest of the batch may have completed.
type ChunkProcessingError struct {
	Pipeline   string
	ChunkIndex int
	Err        error
}

func (e *ChunkProcessingError) Error() string {
	return fmt.Sprintf("pipeline %q: chunk %d failed: %v", e.Pipeline, e.ChunkIndex, e.Err)
}

func (e *ChunkProcessingError) Unwrap() error { return e.Err }

// NewChunkProcessingError creates a ChunkProcessingError for the given chunk.
func NewChunkProcessingError(pipeline string, chunkIndex int, err error) *ChunkProcessingError {
	return &ChunkProcessingError{Pipeline: pipeline, ChunkIndex: chunkIndex, Err: err}
}

// IsChunkProcessingError reports whether err wraps a ChunkProcessingError.
func IsChunkProcessingError(err error) bool {
	var e *ChunkProcessingError
	return errors.As(err, &e)
}

// CorruptCheckpointError reports a checkpoint whose stored checksum does not
// match its payload, or whose envelope cannot be decoded. A corrupt
// checkpoint is never loaded; recovery falls back to the next older one.
type CorruptCheckpointError struct {
	Ref    string
	Reason string
}

func (e *CorruptCheckpointError) Error() string {
	return fmt.Sprintf("corrupt checkpoint %q: %s", e.Ref, e.Reason)
}

// NewCorruptCheckpointError creates a CorruptCheckpointError.
func NewCorruptCheckpointError(ref, reason string) *CorruptCheckpointError {
	return &CorruptCheckpointError{Ref: ref, Reason: reason}
}

// IsCorruptCheckpoint reports whether err wraps a CorruptCheckpointError.
func IsCorruptCheckpoint(err error) bool {
	var e *CorruptCheckpointError
	return errors.As(err, &e)
}

// NoRecoverableStateError reports that a pipeline has no valid checkpoint to
// resume from. Callers are expected to fall back to a fresh start.
type NoRecoverableStateError struct {
	Pipeline string
}

func (e *NoRecoverableStateError) Error() string {
	return fmt.Sprintf("pipeline %q has no recoverable state", e.Pipeline)
}

// NewNoRecoverableStateError creates a NoRecoverableStateError.
func NewNoRecoverableStateError(pipeline string) *NoRecoverableStateError {
	return &NoRecoverableStateError{Pipeline: pipeline}
}

// IsNoRecoverableState reports whether err wraps a NoRecoverableStateError.
func IsNoRecoverableState(err error) bool {
	var e *NoRecoverableStateError
	return errors.As(err, &e)
}

// WatermarkRegressionError reports an attempt to commit a watermark that
// compares lower than the currently stored one. Watermarks only move forward.
type WatermarkRegressionError struct {
	StateKey string
	Current  interface{}
	Proposed interface{}
}

func (e *WatermarkRegressionError) Error() string {
	return fmt.Sprintf("watermark regression for %q: current=%v proposed=%v", e.StateKey, e.Current, e.Proposed)
}

// NewWatermarkRegressionError creates a WatermarkRegressionError.
func NewWatermarkRegressionError(stateKey string, current, proposed interface{}) *WatermarkRegressionError {
	return &WatermarkRegressionError{StateKey: stateKey, Current: current, Proposed: proposed}
}

// IsWatermarkRegression reports whether err wraps a WatermarkRegressionError.
func IsWatermarkRegression(err error) bool {
	var e *WatermarkRegressionError
	return errors.As(err, &e)
}

// BatchTimeoutError reports a batch that exceeded its wall-clock budget.
// Timed-out batches are never checkpointed.
type BatchTimeoutError struct {
	BatchIndex int
	Budget     time.Duration
}

func (e *BatchTimeoutError) Error() string {
	return fmt.Sprintf("batch %d exceeded time budget %s", e.BatchIndex, e.Budget)
}

// NewBatchTimeoutError creates a BatchTimeoutError.
func NewBatchTimeoutError(batchIndex int, budget time.Duration) *BatchTimeoutError {
	return &BatchTimeoutError{BatchIndex: batchIndex, Budget: budget}
}

// IsBatchTimeout reports whether err wraps a BatchTimeoutError.
func IsBatchTimeout(err error) bool {
	var e *BatchTimeoutError
	return errors.As(err, &e)
}
