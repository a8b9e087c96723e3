package export_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storageAdapter "github.com/vitoriamariadb/tidal/pkg/etl/adapter/storage"
	storagelocal "github.com/vitoriamariadb/tidal/pkg/etl/adapter/storage/local"
	"github.com/vitoriamariadb/tidal/pkg/etl/connector"
	config "github.com/vitoriamariadb/tidal/pkg/etl/core/config"
	model "github.com/vitoriamariadb/tidal/pkg/etl/core/model"
	"github.com/vitoriamariadb/tidal/pkg/etl/export"
)

func newExporter(t *testing.T) (*export.Exporter, string) {
	t.Helper()
	baseDir := t.TempDir()
	cfg := config.NewConfig()
	cfg.Tidal.StorageConfigs = map[string]interface{}{
		"exports": map[string]interface{}{
			"type":     "local",
			"base_dir": baseDir,
		},
	}
	resolver := storageAdapter.NewResolver([]storageAdapter.Provider{storagelocal.NewLocalProvider(cfg)}, cfg)
	return export.NewExporter(connector.NewFactory(), resolver), baseDir
}

func exportSnapshot() model.Snapshot {
	return model.Snapshot{
		{"order_id": "o-1", "total": 42.5},
		{"order_id": "o-2", "total": 10.0},
	}
}

func TestExportUploadsRenderedObject(t *testing.T) {
	exporter, baseDir := newExporter(t)

	objectName, err := exporter.Export(context.Background(), exportSnapshot(), export.Request{
		Format:       "json",
		StorageRef:   "exports",
		Bucket:       "orders",
		ObjectPrefix: "orders",
	})
	require.NoError(t, err)
	assert.Contains(t, objectName, "orders_")
	assert.Contains(t, objectName, ".json")

	data, err := os.ReadFile(filepath.Join(baseDir, "orders", objectName))
	require.NoError(t, err)
	assert.Contains(t, string(data), "o-1")
}

func TestExportRejectsUnknownFormat(t *testing.T) {
	exporter, _ := newExporter(t)
	_, err := exporter.Export(context.Background(), exportSnapshot(), export.Request{
		Format:     "xml",
		StorageRef: "exports",
	})
	assert.Error(t, err)
}

func TestExportFailsOnUnknownStorageRef(t *testing.T) {
	exporter, _ := newExporter(t)
	_, err := exporter.Export(context.Background(), exportSnapshot(), export.Request{
		Format:     "csv",
		StorageRef: "missing",
	})
	assert.Error(t, err)
}

func TestExportAllContinuesPastFailures(t *testing.T) {
	exporter, baseDir := newExporter(t)

	objects, err := exporter.ExportAll(context.Background(), exportSnapshot(), []export.Request{
		{Format: "xml", StorageRef: "exports", Bucket: "orders", ObjectPrefix: "bad"},
		{Format: "csv", StorageRef: "exports", Bucket: "orders", ObjectPrefix: "good"},
	})
	require.Error(t, err)
	require.Len(t, objects, 1)
	assert.Contains(t, objects[0], "good_")

	entries, readErr := os.ReadDir(filepath.Join(baseDir, "orders"))
	require.NoError(t, readErr)
	assert.Len(t, entries, 1)
}

func TestExportAllWithNoRequests(t *testing.T) {
	exporter, _ := newExporter(t)
	objects, err := exporter.ExportAll(context.Background(), exportSnapshot(), nil)
	assert.NoError(t, err)
	assert.Empty(t, objects)
}
