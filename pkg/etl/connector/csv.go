package connector

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"

	model "github.com/vitoriamariadb/tidal/pkg/etl/core/model"
	exception "github.com/vitoriamariadb/tidal/pkg/etl/support/exception"
	logger "github.com/vitoriamariadb/tidal/pkg/etl/support/logger"
)

// CSVConnector reads and writes header-first CSV files. Cell values are
// type-inferred on read (bool, int, float, else string) unless the
// "infer_types" option is false.
type CSVConnector struct{}

// NewCSVConnector creates a CSVConnector.
func NewCSVConnector() *CSVConnector {
	return &CSVConnector{}
}

// Read implements Connector.
func (c *CSVConnector) Read(ctx context.Context, sourceRef string, options Options) (model.Snapshot, error) {
	f, err := os.Open(sourceRef)
	if err != nil {
		return nil, exception.NewETLError(moduleName, fmt.Sprintf("failed to open CSV source %q", sourceRef), err, false, true)
	}
	defer f.Close()

	infer := true
	if v, ok := options["infer_types"].(bool); ok {
		infer = v
	}

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, exception.NewETLError(moduleName, fmt.Sprintf("failed to parse CSV source %q", sourceRef), err, false, false)
	}
	if len(rows) == 0 {
		return model.Snapshot{}, nil
	}

	header := rows[0]
	snapshot := make(model.Snapshot, 0, len(rows)-1)
	for _, row := range rows[1:] {
		record := make(model.Record, len(header))
		for i, col := range header {
			if i >= len(row) {
				continue
			}
			if infer {
				record[col] = inferValue(row[i])
			} else {
				record[col] = row[i]
			}
		}
		snapshot = append(snapshot, record)
	}

	logger.Debugf("Read %d records from CSV source %q.", len(snapshot), sourceRef)
	return snapshot, nil
}

// Write implements Connector.
func (c *CSVConnector) Write(ctx context.Context, snapshot model.Snapshot, destRef string, options Options) error {
	f, err := os.Create(destRef)
	if err != nil {
		return exception.NewETLError(moduleName, fmt.Sprintf("failed to create CSV dest %q", destRef), err, false, true)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := columnOrder(snapshot)
	if len(header) > 0 {
		if err := w.Write(header); err != nil {
			return exception.NewETLError(moduleName, fmt.Sprintf("failed to write CSV header to %q", destRef), err, false, false)
		}
	}

	row := make([]string, len(header))
	for _, record := range snapshot {
		for i, col := range header {
			if v, ok := record[col]; ok && v != nil {
				row[i] = fmt.Sprint(v)
			} else {
				row[i] = ""
			}
		}
		if err := w.Write(row); err != nil {
			return exception.NewETLError(moduleName, fmt.Sprintf("failed to write CSV row to %q", destRef), err, false, false)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return exception.NewETLError(moduleName, fmt.Sprintf("failed to flush CSV dest %q", destRef), err, false, false)
	}
	logger.Debugf("Wrote %d records to CSV dest %q.", len(snapshot), destRef)
	return nil
}

// columnOrder returns the sorted union of column names across the snapshot.
func columnOrder(snapshot model.Snapshot) []string {
	set := map[string]bool{}
	for _, record := range snapshot {
		for col := range record {
			set[col] = true
		}
	}
	cols := make([]string, 0, len(set))
	for col := range set {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}

// inferValue parses a CSV cell into bool, int64 or float64 where possible.
func inferValue(s string) interface{} {
	if s == "" {
		return nil
	}
	if b, err := strconv.ParseBool(s); err == nil && (s == "true" || s == "false") {
		return b
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

// Verify interfaces
var _ Connector = (*CSVConnector)(nil)
