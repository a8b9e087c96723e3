// Package export renders snapshots through the format connectors and ships
// the rendered files to a configured storage backend.
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	multierror "github.com/hashicorp/go-multierror"

	storageAdapter "github.com/vitoriamariadb/tidal/pkg/etl/adapter/storage"
	connector "github.com/vitoriamariadb/tidal/pkg/etl/connector"
	model "github.com/vitoriamariadb/tidal/pkg/etl/core/model"
	exception "github.com/vitoriamariadb/tidal/pkg/etl/support/exception"
	logger "github.com/vitoriamariadb/tidal/pkg/etl/support/logger"
)

const moduleName = "export"

// Request describes one export destination.
type Request struct {
	Format       string // "csv", "json" or "parquet".
	StorageRef   string // Named storage connection to upload through.
	Bucket       string // Bucket override; empty uses the connection default.
	ObjectPrefix string // Object name prefix; a timestamp and extension are appended.
	Options      connector.Options
}

// contentTypes maps formats to upload MIME types.
var contentTypes = map[string]string{
	"csv":     "text/csv",
	"json":    "application/json",
	"parquet": "application/octet-stream",
}

// Exporter renders snapshots and uploads them through the storage resolver.
type Exporter struct {
	factory  *connector.Factory
	resolver *storageAdapter.Resolver
}

// NewExporter creates an Exporter.
func NewExporter(factory *connector.Factory, resolver *storageAdapter.Resolver) *Exporter {
	return &Exporter{factory: factory, resolver: resolver}
}

// Export renders the snapshot in the requested format and uploads it. The
// uploaded object name is returned.
func (e *Exporter) Export(ctx context.Context, snapshot model.Snapshot, req Request) (string, error) {
	contentType, ok := contentTypes[req.Format]
	if !ok {
		return "", exception.NewETLErrorf(moduleName, "unsupported export format %q", req.Format)
	}

	conn, err := e.resolver.Resolve(ctx, req.StorageRef)
	if err != nil {
		return "", exception.NewETLError(moduleName, fmt.Sprintf("failed to resolve storage connection %q", req.StorageRef), err, false, true)
	}

	objectName := fmt.Sprintf("%s_%s.%s", req.ObjectPrefix, time.Now().UTC().Format("20060102150405"), req.Format)

	// Connectors render to files, so stage through a temp file and stream
	// it into the storage backend.
	tmp, err := os.CreateTemp("", "tidal-export-*."+req.Format)
	if err != nil {
		return "", exception.NewETLError(moduleName, "failed to create export staging file", err, false, true)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	c, err := e.factory.ForRef("export" + filepath.Ext(tmpPath))
	if err != nil {
		return "", err
	}
	if err := c.Write(ctx, snapshot, tmpPath, req.Options); err != nil {
		return "", err
	}

	f, err := os.Open(tmpPath)
	if err != nil {
		return "", exception.NewETLError(moduleName, "failed to reopen export staging file", err, false, true)
	}
	defer f.Close()

	if err := conn.Upload(ctx, req.Bucket, objectName, f, contentType); err != nil {
		return "", exception.NewETLError(moduleName, fmt.Sprintf("failed to upload export object %q", objectName), err, false, true)
	}

	logger.Infof("Exported %d records as %q via storage connection %q.", len(snapshot), objectName, req.StorageRef)
	return objectName, nil
}

// ExportAll runs every request, continuing past individual failures and
// aggregating their errors.
func (e *Exporter) ExportAll(ctx context.Context, snapshot model.Snapshot, reqs []Request) ([]string, error) {
	var (
		objects []string
		errs    *multierror.Error
	)
	for _, req := range reqs {
		objectName, err := e.Export(ctx, snapshot, req)
		if err != nil {
			logger.Errorf("Export to %q (%s) failed: %v", req.StorageRef, req.Format, err)
			errs = multierror.Append(errs, err)
			continue
		}
		objects = append(objects, objectName)
	}
	return objects, errs.ErrorOrNil()
}
