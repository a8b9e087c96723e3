package local_test

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storageAdapter "github.com/vitoriamariadb/tidal/pkg/etl/adapter/storage"
	"github.com/vitoriamariadb/tidal/pkg/etl/adapter/storage/local"
	config "github.com/vitoriamariadb/tidal/pkg/etl/core/config"
)

func newAdapter(t *testing.T) storageAdapter.Connection {
	t.Helper()
	conn, err := local.NewLocalAdapter(storageAdapter.StorageConfig{
		Type:       local.ProviderType,
		BaseDir:    t.TempDir(),
		BucketName: "default-bucket",
	}, "exports")
	require.NoError(t, err)
	return conn
}

func TestUploadAndDownloadRoundTrip(t *testing.T) {
	conn := newAdapter(t)
	ctx := context.Background()

	require.NoError(t, conn.Upload(ctx, "orders", "2026/orders.csv", strings.NewReader("id,total\n1,10\n"), "text/csv"))

	r, err := conn.Download(ctx, "orders", "2026/orders.csv")
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "id,total\n1,10\n", string(data))
}

func TestEmptyBucketFallsBackToConfiguredDefault(t *testing.T) {
	conn := newAdapter(t)
	ctx := context.Background()

	require.NoError(t, conn.Upload(ctx, "", "orders.json", strings.NewReader("[]"), "application/json"))

	r, err := conn.Download(ctx, "default-bucket", "orders.json")
	require.NoError(t, err)
	r.Close()
}

func TestListObjectsFiltersByPrefix(t *testing.T) {
	conn := newAdapter(t)
	ctx := context.Background()

	require.NoError(t, conn.Upload(ctx, "orders", "daily/a.csv", strings.NewReader("a"), "text/csv"))
	require.NoError(t, conn.Upload(ctx, "orders", "daily/b.csv", strings.NewReader("b"), "text/csv"))
	require.NoError(t, conn.Upload(ctx, "orders", "monthly/c.csv", strings.NewReader("c"), "text/csv"))

	var names []string
	err := conn.ListObjects(ctx, "orders", "daily/", func(objectName string) error {
		names = append(names, objectName)
		return nil
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"daily/a.csv", "daily/b.csv"}, names)
}

func TestListObjectsOnMissingBucket(t *testing.T) {
	conn := newAdapter(t)
	err := conn.ListObjects(context.Background(), "nope", "", func(string) error {
		t.Fatal("callback should not run")
		return nil
	})
	assert.NoError(t, err)
}

func TestDeleteObjectToleratesMissing(t *testing.T) {
	conn := newAdapter(t)
	ctx := context.Background()

	require.NoError(t, conn.Upload(ctx, "orders", "a.csv", strings.NewReader("a"), "text/csv"))
	require.NoError(t, conn.DeleteObject(ctx, "orders", "a.csv"))
	assert.NoError(t, conn.DeleteObject(ctx, "orders", "a.csv"))

	_, err := conn.Download(ctx, "orders", "a.csv")
	assert.Error(t, err)
}

func TestUploadRejectsPathEscape(t *testing.T) {
	conn := newAdapter(t)
	err := conn.Upload(context.Background(), "orders", "../../escape.csv", strings.NewReader("x"), "text/csv")
	assert.Error(t, err)
}

func TestNewLocalAdapterRequiresBaseDir(t *testing.T) {
	_, err := local.NewLocalAdapter(storageAdapter.StorageConfig{Type: local.ProviderType}, "exports")
	assert.Error(t, err)
}

func TestProviderCachesConnections(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Tidal.StorageConfigs = map[string]interface{}{
		"exports": map[string]interface{}{
			"type":     "local",
			"base_dir": t.TempDir(),
		},
	}
	provider := local.NewLocalProvider(cfg)

	first, err := provider.GetConnection("exports")
	require.NoError(t, err)
	second, err := provider.GetConnection("exports")
	require.NoError(t, err)
	assert.Same(t, first, second)
	require.NoError(t, provider.CloseAll())
}

func TestProviderRejectsTypeMismatch(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Tidal.StorageConfigs = map[string]interface{}{
		"archive": map[string]interface{}{
			"type":        "gcs",
			"bucket_name": "archive",
		},
	}
	provider := local.NewLocalProvider(cfg)
	_, err := provider.GetConnection("archive")
	assert.Error(t, err)
}
