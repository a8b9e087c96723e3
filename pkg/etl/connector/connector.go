// Package connector provides file-format connectors that read and write
// snapshots. The engine treats snapshots as opaque ordered record sequences
// and never inspects on-disk layout; connectors own that boundary.
package connector

import (
	"context"
	"path/filepath"
	"strings"

	model "github.com/vitoriamariadb/tidal/pkg/etl/core/model"
	exception "github.com/vitoriamariadb/tidal/pkg/etl/support/exception"
)

const moduleName = "connector"

// Options carries format-specific settings for one read or write.
type Options map[string]interface{}

// Connector reads a snapshot from a source ref and writes one to a dest ref.
type Connector interface {
	Read(ctx context.Context, sourceRef string, options Options) (model.Snapshot, error)
	Write(ctx context.Context, snapshot model.Snapshot, destRef string, options Options) error
}

// Factory resolves a Connector from a ref's file extension.
type Factory struct{}

// NewFactory creates a Factory.
func NewFactory() *Factory {
	return &Factory{}
}

// ForRef returns the connector handling the ref's format.
func (f *Factory) ForRef(ref string) (Connector, error) {
	switch strings.ToLower(filepath.Ext(ref)) {
	case ".csv":
		return NewCSVConnector(), nil
	case ".json":
		return NewJSONConnector(), nil
	case ".parquet":
		return NewParquetConnector(), nil
	default:
		return nil, exception.NewETLErrorf(moduleName, "no connector registered for ref %q", ref)
	}
}
