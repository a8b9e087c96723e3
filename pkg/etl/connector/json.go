package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	model "github.com/vitoriamariadb/tidal/pkg/etl/core/model"
	exception "github.com/vitoriamariadb/tidal/pkg/etl/support/exception"
	logger "github.com/vitoriamariadb/tidal/pkg/etl/support/logger"
)

// JSONConnector reads and writes snapshots as a JSON array of objects.
// Numeric values decode as float64 per encoding/json.
type JSONConnector struct{}

// NewJSONConnector creates a JSONConnector.
func NewJSONConnector() *JSONConnector {
	return &JSONConnector{}
}

// Read implements Connector.
func (c *JSONConnector) Read(ctx context.Context, sourceRef string, options Options) (model.Snapshot, error) {
	data, err := os.ReadFile(sourceRef)
	if err != nil {
		return nil, exception.NewETLError(moduleName, fmt.Sprintf("failed to read JSON source %q", sourceRef), err, false, true)
	}

	var snapshot model.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, exception.NewETLError(moduleName, fmt.Sprintf("failed to parse JSON source %q", sourceRef), err, false, false)
	}
	logger.Debugf("Read %d records from JSON source %q.", len(snapshot), sourceRef)
	return snapshot, nil
}

// Write implements Connector. The "pretty" option enables indented output.
func (c *JSONConnector) Write(ctx context.Context, snapshot model.Snapshot, destRef string, options Options) error {
	if snapshot == nil {
		snapshot = model.Snapshot{}
	}

	var (
		data []byte
		err  error
	)
	if pretty, _ := options["pretty"].(bool); pretty {
		data, err = json.MarshalIndent(snapshot, "", "  ")
	} else {
		data, err = json.Marshal(snapshot)
	}
	if err != nil {
		return exception.NewETLError(moduleName, "failed to serialize snapshot to JSON", err, false, false)
	}

	if err := os.WriteFile(destRef, data, 0o644); err != nil {
		return exception.NewETLError(moduleName, fmt.Sprintf("failed to write JSON dest %q", destRef), err, false, true)
	}
	logger.Debugf("Wrote %d records to JSON dest %q.", len(snapshot), destRef)
	return nil
}

// Verify interfaces
var _ Connector = (*JSONConnector)(nil)
