package checkpoint_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitoriamariadb/tidal/pkg/etl/checkpoint"
	model "github.com/vitoriamariadb/tidal/pkg/etl/core/model"
	exception "github.com/vitoriamariadb/tidal/pkg/etl/support/exception"
)

func testSnapshot(n int) model.Snapshot {
	snapshot := make(model.Snapshot, 0, n)
	for i := 0; i < n; i++ {
		snapshot = append(snapshot, model.Record{"id": float64(i), "name": "row"})
	}
	return snapshot
}

func newFileStore(t *testing.T) *checkpoint.FileStore {
	t.Helper()
	store, err := checkpoint.NewFileStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestFileStoreCreateAndLoadRoundTrip(t *testing.T) {
	store := newFileStore(t)
	ctx := context.Background()

	payload := testSnapshot(5)
	metadata := model.Metadata{"offset": float64(500), "batch_index": float64(0)}

	id, err := store.Create(ctx, "orders", "batch-0", payload, metadata)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	record, err := store.LoadLatestValid(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, "orders", record.PipelineName)
	assert.Equal(t, uint64(1), record.SequenceNumber)
	assert.Equal(t, "batch-0", record.Step)
	assert.Equal(t, payload, record.Payload)
	assert.Equal(t, metadata, record.Metadata)
	assert.NotEmpty(t, record.Checksum)
}

func TestFileStoreSequenceNumbersIncrease(t *testing.T) {
	store := newFileStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := store.Create(ctx, "orders", "batch", testSnapshot(1), nil)
		require.NoError(t, err)
	}

	record, err := store.LoadLatestValid(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), record.SequenceNumber)
}

func TestFileStoreLoadWithNoCheckpoints(t *testing.T) {
	store := newFileStore(t)
	_, err := store.LoadLatestValid(context.Background(), "orders")
	assert.ErrorIs(t, err, checkpoint.ErrCheckpointNotFound)
}

// corruptNewest flips the payload of the newest checkpoint file on disk so
// its checksum no longer matches.
func corruptNewest(t *testing.T, dir, pipeline string) {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(dir, pipeline))
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	newest := entries[len(entries)-1]
	path := filepath.Join(dir, pipeline, newest.Name())
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &doc))
	doc["payload"] = []map[string]interface{}{{"id": "tampered"}}
	tampered, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, tampered, 0o644))
}

func TestFileStoreFallsBackPastCorruptCheckpoint(t *testing.T) {
	dir := t.TempDir()
	store, err := checkpoint.NewFileStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Create(ctx, "orders", "batch-0", testSnapshot(2), nil)
	require.NoError(t, err)
	_, err = store.Create(ctx, "orders", "batch-1", testSnapshot(4), nil)
	require.NoError(t, err)

	corruptNewest(t, dir, "orders")

	record, err := store.LoadLatestValid(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), record.SequenceNumber)
	assert.Equal(t, "batch-0", record.Step)
}

func TestFileStoreAllCorruptReturnsCorruptError(t *testing.T) {
	dir := t.TempDir()
	store, err := checkpoint.NewFileStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Create(ctx, "orders", "batch-0", testSnapshot(2), nil)
	require.NoError(t, err)

	corruptNewest(t, dir, "orders")

	_, err = store.LoadLatestValid(ctx, "orders")
	require.Error(t, err)
	assert.True(t, exception.IsCorruptCheckpoint(err))
}

func TestFileStoreListMarksInvalidEntries(t *testing.T) {
	dir := t.TempDir()
	store, err := checkpoint.NewFileStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Create(ctx, "orders", "batch-0", testSnapshot(2), nil)
	require.NoError(t, err)
	_, err = store.Create(ctx, "orders", "batch-1", testSnapshot(2), nil)
	require.NoError(t, err)

	corruptNewest(t, dir, "orders")

	infos, err := store.List(ctx, "orders")
	require.NoError(t, err)
	require.Len(t, infos, 2)
	// Newest first.
	assert.Equal(t, uint64(2), infos[0].SequenceNumber)
	assert.False(t, infos[0].Valid)
	assert.True(t, infos[1].Valid)
}

func TestFileStoreExpireKeepsNewestValid(t *testing.T) {
	store := newFileStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := store.Create(ctx, "orders", "batch", testSnapshot(1), nil)
		require.NoError(t, err)
	}

	deleted, err := store.Expire(ctx, "orders", 2)
	require.NoError(t, err)
	assert.Equal(t, 3, deleted)

	infos, err := store.List(ctx, "orders")
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, uint64(5), infos[0].SequenceNumber)
	assert.Equal(t, uint64(4), infos[1].SequenceNumber)
}

func TestFileStoreExpireDeletesCorruptEntries(t *testing.T) {
	dir := t.TempDir()
	store, err := checkpoint.NewFileStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Create(ctx, "orders", "batch-0", testSnapshot(1), nil)
	require.NoError(t, err)
	_, err = store.Create(ctx, "orders", "batch-1", testSnapshot(1), nil)
	require.NoError(t, err)
	corruptNewest(t, dir, "orders")

	// keepLastN counts valid checkpoints only; the corrupt one is removed.
	deleted, err := store.Expire(ctx, "orders", 2)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	infos, err := store.List(ctx, "orders")
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.True(t, infos[0].Valid)
}

func TestFileStorePipelinesAreIndependent(t *testing.T) {
	store := newFileStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, "orders", "batch-0", testSnapshot(1), nil)
	require.NoError(t, err)
	_, err = store.Create(ctx, "customers", "batch-0", testSnapshot(2), nil)
	require.NoError(t, err)

	orders, err := store.LoadLatestValid(ctx, "orders")
	require.NoError(t, err)
	customers, err := store.LoadLatestValid(ctx, "customers")
	require.NoError(t, err)
	assert.Len(t, orders.Payload, 1)
	assert.Len(t, customers.Payload, 2)
}

func TestFileStoreRejectsEscapingPipelineName(t *testing.T) {
	store := newFileStore(t)
	_, err := store.Create(context.Background(), "../escape", "batch-0", testSnapshot(1), nil)
	assert.Error(t, err)
}
