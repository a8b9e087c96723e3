// Package checkpoint persists and retrieves durable, checksummed pipeline
// state. A checkpoint is either fully visible and valid or not visible at
// all; partial writes are never observable.
package checkpoint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	model "github.com/vitoriamariadb/tidal/pkg/etl/core/model"
)

// ErrCheckpointNotFound is returned when a pipeline has no stored checkpoints.
var ErrCheckpointNotFound = errors.New("checkpoint data not found")

// Store is the persistence contract for checkpoints. Writes for one pipeline
// are serialized; different pipelines are fully independent.
type Store interface {
	// Create serializes the payload and metadata, computes a checksum and
	// atomically publishes the checkpoint under the next sequence number for
	// the pipeline. It returns the checkpoint ID.
	Create(ctx context.Context, pipelineName, step string, payload model.Snapshot, metadata model.Metadata) (string, error)

	// LoadLatestValid scans sequence numbers from newest to oldest, verifies
	// checksums and returns the first valid checkpoint. It returns
	// ErrCheckpointNotFound when nothing is stored and a
	// CorruptCheckpointError only when every stored checkpoint fails
	// verification.
	LoadLatestValid(ctx context.Context, pipelineName string) (*model.CheckpointRecord, error)

	// List returns checkpoint metadata for the pipeline, newest first.
	List(ctx context.Context, pipelineName string) ([]model.CheckpointInfo, error)

	// Expire deletes all but the newest keepLastN valid checkpoints and
	// returns the number deleted.
	Expire(ctx context.Context, pipelineName string, keepLastN int) (int, error)
}

// payloadChecksum returns the hex-encoded SHA-256 digest of the serialized
// payload bytes.
func payloadChecksum(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
