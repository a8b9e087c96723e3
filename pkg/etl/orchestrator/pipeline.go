// Package orchestrator drives pipeline runs end to end: extraction, delta
// computation, batched parallel transformation, validation, loading,
// checkpointing and recovery.
package orchestrator

import (
	connector "github.com/vitoriamariadb/tidal/pkg/etl/connector"
	pool "github.com/vitoriamariadb/tidal/pkg/etl/engine/pool"
	export "github.com/vitoriamariadb/tidal/pkg/etl/export"
	quality "github.com/vitoriamariadb/tidal/pkg/etl/quality"
)

const moduleName = "orchestrator"

// IncrementalSpec enables delta extraction for a pipeline.
type IncrementalSpec struct {
	Enabled bool
	// KeyColumn uniquely identifies a record in the source.
	KeyColumn string
	// ComparisonColumn orders records for watermark comparison.
	ComparisonColumn string
	// StateKey names the persisted watermark state. Empty defaults to the
	// pipeline name.
	StateKey string
}

// Pipeline describes one ETL pipeline.
type Pipeline struct {
	Name      string
	SourceRef string
	DestRef   string

	// Transform is applied per chunk by the worker pool. Nil passes records
	// through unchanged.
	Transform pool.TransformFunc

	SourceOptions connector.Options
	DestOptions   connector.Options

	Incremental IncrementalSpec

	// Rules are evaluated against each batch output before loading.
	Rules []quality.Rule

	// Exports are shipped after a non-failed run.
	Exports []export.Request
}

func (p Pipeline) stateKey() string {
	if p.Incremental.StateKey != "" {
		return p.Incremental.StateKey
	}
	return p.Name
}
