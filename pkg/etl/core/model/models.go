// Package model defines the domain types shared across the Tidal ETL engine:
// records and snapshots, chunks and batch plans, checkpoint records and
// incremental state.
package model

import (
	"crypto/sha256"
	"database/sql/driver"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Record is a mapping from column name to a scalar value. Rows are otherwise
// opaque to the engine.
type Record map[string]interface{}

// Value implements the `driver.Valuer` interface, converting the Record to a JSON string.
func (r Record) Value() (driver.Value, error) {
	if r == nil {
		return "{}", nil
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements the `sql.Scanner` interface, converting a JSON string to a Record.
func (r *Record) Scan(value interface{}) error {
	if value == nil {
		*r = make(Record)
		return nil
	}
	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("unsupported Scan type for Record: %T", value)
	}

	if len(b) == 0 {
		*r = make(Record)
		return nil
	}

	if err := json.Unmarshal(b, r); err != nil {
		return fmt.Errorf("failed to unmarshal Record JSON: %w", err)
	}
	return nil
}

// Hash returns a stable hex-encoded SHA-256 digest of the record content.
// Keys are sorted and values are canonicalized through JSON, so a record
// hashes the same before and after a store round trip (int64(3) and the
// float64(3) JSON decoding yields encode identically) while a number and
// its string form stay distinct.
func (r Record) Hash() string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		v, err := json.Marshal(r[k])
		if err != nil {
			v = []byte(fmt.Sprintf("%v", r[k]))
		}
		fmt.Fprintf(h, "%s=%s;", k, v)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Snapshot is an ordered sequence of Records produced by one extraction or
// one processing stage. Order is significant for round-trip behavior.
type Snapshot []Record

// Len returns the number of records in the snapshot.
func (s Snapshot) Len() int {
	return len(s)
}

// Clone returns a shallow copy of the snapshot. Record maps are shared;
// callers that mutate rows must copy them first.
func (s Snapshot) Clone() Snapshot {
	if s == nil {
		return nil
	}
	out := make(Snapshot, len(s))
	copy(out, s)
	return out
}

// ChunkStatus represents the processing state of a chunk.
type ChunkStatus string

const (
	ChunkStatusPending ChunkStatus = "PENDING"
	ChunkStatusRunning ChunkStatus = "RUNNING"
	ChunkStatusDone    ChunkStatus = "DONE"
	ChunkStatusFailed  ChunkStatus = "FAILED"
)

// String returns the string representation of the ChunkStatus.
func (s ChunkStatus) String() string {
	return string(s)
}

// Chunk is a contiguous sub-partition of one batch's input records, the unit
// of parallel execution. Index is 0-based and contiguous within a batch.
type Chunk struct {
	Index   int
	Records Snapshot
	Status  ChunkStatus
}

// BatchPlan describes one partitioning of a snapshot. ChunkSize mutates
// between batches, never within one.
type BatchPlan struct {
	ChunkSize    int
	ChunkCount   int
	TotalRecords int
}

// ChunkOutput is the transform result for one chunk.
type ChunkOutput struct {
	Index   int
	Records Snapshot
}

// ChunkFailure names a chunk that failed and the error it failed with.
type ChunkFailure struct {
	Index int
	Err   error
}

// BatchResult is the outcome of running one batch through the worker pool.
// Succeeded outputs are ordered by ascending chunk index regardless of
// completion order.
type BatchResult struct {
	Succeeded []ChunkOutput
	Failed    []ChunkFailure
	Duration  time.Duration
}

// AllSucceeded reports whether every chunk in the batch completed.
func (r BatchResult) AllSucceeded() bool {
	return len(r.Failed) == 0
}

// Output concatenates the succeeded chunk outputs in ascending index order.
func (r BatchResult) Output() Snapshot {
	var total int
	for _, o := range r.Succeeded {
		total += len(o.Records)
	}
	out := make(Snapshot, 0, total)
	for _, o := range r.Succeeded {
		out = append(out, o.Records...)
	}
	return out
}

// Metadata is a key-value store persisted alongside checkpoints and reported
// by pipeline runs.
type Metadata map[string]interface{}

// Value implements the `driver.Valuer` interface, converting the Metadata to a JSON string.
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements the `sql.Scanner` interface, converting a JSON string to Metadata.
func (m *Metadata) Scan(value interface{}) error {
	if value == nil {
		*m = make(Metadata)
		return nil
	}
	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("unsupported Scan type for Metadata: %T", value)
	}

	if len(b) == 0 {
		*m = make(Metadata)
		return nil
	}

	if err := json.Unmarshal(b, m); err != nil {
		return fmt.Errorf("failed to unmarshal Metadata JSON: %w", err)
	}
	return nil
}

// CheckpointRecord is a durable, checksummed snapshot of pipeline state at a
// given step. Only the highest sequence number with a valid checksum is
// considered current for a pipeline.
type CheckpointRecord struct {
	PipelineName   string
	SequenceNumber uint64
	Step           string
	Payload        Snapshot
	Metadata       Metadata
	Checksum       string
	CreatedAt      time.Time
}

// CheckpointInfo is the listing view of a checkpoint: everything but the payload.
type CheckpointInfo struct {
	PipelineName   string
	SequenceNumber uint64
	Step           string
	Metadata       Metadata
	Checksum       string
	CreatedAt      time.Time
	Valid          bool
}

// IncrementalState is the persisted watermark state for one logical source.
// Watermark only ever increases for a given StateKey. KeyHashes is populated
// in CDC mode only and maps key value to last observed content hash.
type IncrementalState struct {
	StateKey         string
	KeyColumn        string
	ComparisonColumn string
	Watermark        interface{}
	KeyHashes        map[string]string
	UpdatedAt        time.Time
}

// DeltaResult is the output of a delta computation: the rows to process plus,
// in CDC mode, the keys that disappeared since the previous extraction.
type DeltaResult struct {
	Records     Snapshot
	DeletedKeys []string
}

// RunStatus represents the outcome of one pipeline run.
type RunStatus string

const (
	RunStatusCompleted       RunStatus = "COMPLETED"
	RunStatusFailed          RunStatus = "FAILED"
	RunStatusPartiallyFailed RunStatus = "PARTIALLY_FAILED"
)

// String returns the string representation of the RunStatus.
func (s RunStatus) String() string {
	return string(s)
}

// BatchOutcome summarizes one batch inside a run.
type BatchOutcome struct {
	Index        int
	ChunkSize    int
	RowsIn       int
	RowsOut      int
	FailedChunks int
	Duration     time.Duration
	Checkpointed bool
}

// RunReport summarizes one pipeline run.
type RunReport struct {
	RunID       string
	Pipeline    string
	Status      RunStatus
	RowsRead    int
	RowsWritten int
	Batches     []BatchOutcome
	StartedAt   time.Time
	Duration    time.Duration
	Failures    []string
}
