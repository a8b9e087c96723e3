package connector

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/common"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"

	model "github.com/vitoriamariadb/tidal/pkg/etl/core/model"
	exception "github.com/vitoriamariadb/tidal/pkg/etl/support/exception"
	logger "github.com/vitoriamariadb/tidal/pkg/etl/support/logger"
)

const parquetParallelism = 4

// ParquetConnector reads and writes snapshots as Parquet files. Every column
// is stored as a UTF8 byte array; values are stringified on write and
// type-inferred on read, mirroring the CSV connector.
type ParquetConnector struct{}

// NewParquetConnector creates a ParquetConnector.
func NewParquetConnector() *ParquetConnector {
	return &ParquetConnector{}
}

// Read implements Connector.
func (c *ParquetConnector) Read(ctx context.Context, sourceRef string, options Options) (model.Snapshot, error) {
	data, err := os.ReadFile(sourceRef)
	if err != nil {
		return nil, exception.NewETLError(moduleName, fmt.Sprintf("failed to read Parquet source %q", sourceRef), err, false, true)
	}

	pf, err := buffer.NewBufferFile(data)
	if err != nil {
		return nil, exception.NewETLError(moduleName, fmt.Sprintf("failed to open Parquet source %q", sourceRef), err, false, false)
	}
	defer pf.Close()

	pr, err := reader.NewParquetReader(pf, nil, parquetParallelism)
	if err != nil {
		return nil, exception.NewETLError(moduleName, fmt.Sprintf("failed to open Parquet source %q", sourceRef), err, false, false)
	}
	defer pr.ReadStop()

	num := int(pr.GetNumRows())
	snapshot := make(model.Snapshot, 0, num)
	if num == 0 {
		return snapshot, nil
	}

	cols, err := parquetColumns(pr)
	if err != nil {
		return nil, err
	}

	for _, col := range cols {
		values, _, _, err := pr.ReadColumnByPath(col.path, int64(num))
		if err != nil {
			return nil, exception.NewETLError(moduleName, fmt.Sprintf("failed to read Parquet column %q from %q", col.name, sourceRef), err, false, false)
		}
		for i, v := range values {
			if i >= len(snapshot) {
				snapshot = append(snapshot, make(model.Record, len(cols)))
			}
			if s, ok := v.(string); ok {
				snapshot[i][col.name] = inferValue(s)
			} else {
				snapshot[i][col.name] = v
			}
		}
	}

	logger.Debugf("Read %d records from Parquet source %q.", len(snapshot), sourceRef)
	return snapshot, nil
}

// Write implements Connector.
func (c *ParquetConnector) Write(ctx context.Context, snapshot model.Snapshot, destRef string, options Options) (err error) {
	header := columnOrder(snapshot)
	if len(header) == 0 {
		// A Parquet file needs at least one column; an empty snapshot
		// writes an empty placeholder column.
		header = []string{"_empty"}
	}

	md := make([]string, len(header))
	for i, col := range header {
		md[i] = fmt.Sprintf("name=%s, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY", col)
	}

	buf := new(bytes.Buffer)
	fw := writerfile.NewWriterFile(buf)
	pw, err := writer.NewCSVWriter(md, fw, parquetParallelism)
	if err != nil {
		return exception.NewETLError(moduleName, fmt.Sprintf("failed to create Parquet writer for %q", destRef), err, false, false)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, record := range snapshot {
		row := make([]*string, len(header))
		for i, col := range header {
			var s string
			if v, ok := record[col]; ok && v != nil {
				s = fmt.Sprint(v)
			}
			cell := s
			row[i] = &cell
		}
		if err := pw.WriteString(row); err != nil {
			return exception.NewETLError(moduleName, fmt.Sprintf("failed to write Parquet row to %q", destRef), err, false, false)
		}
	}

	// WriteStop can panic inside the library on malformed state, so
	// convert panics into errors instead of tearing down the worker.
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = exception.NewETLErrorf(moduleName, "panic during Parquet finalization for %q: %v", destRef, r)
			}
		}()
		if stopErr := pw.WriteStop(); stopErr != nil {
			err = exception.NewETLError(moduleName, fmt.Sprintf("failed to finalize Parquet dest %q", destRef), stopErr, false, false)
		}
	}()
	if err != nil {
		return err
	}

	if err := os.WriteFile(destRef, buf.Bytes(), 0o644); err != nil {
		return exception.NewETLError(moduleName, fmt.Sprintf("failed to write Parquet dest %q", destRef), err, false, true)
	}
	logger.Debugf("Wrote %d records to Parquet dest %q.", len(snapshot), destRef)
	return nil
}

type parquetColumn struct {
	name string
	path string
}

// parquetColumns lists the leaf columns of the file with their original
// (external) names and dotted paths.
func parquetColumns(pr *reader.ParquetReader) ([]parquetColumn, error) {
	sh := pr.SchemaHandler
	if sh == nil || len(sh.Infos) < 2 {
		return nil, exception.NewETLErrorf(moduleName, "Parquet file has no readable schema")
	}
	root := sh.Infos[0].InName
	cols := make([]parquetColumn, 0, len(sh.Infos)-1)
	for _, info := range sh.Infos[1:] {
		cols = append(cols, parquetColumn{
			name: info.ExName,
			path: common.PathToStr([]string{root, info.InName}),
		})
	}
	return cols, nil
}

// Verify interfaces
var _ Connector = (*ParquetConnector)(nil)
