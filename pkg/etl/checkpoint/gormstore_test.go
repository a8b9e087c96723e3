package checkpoint_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/vitoriamariadb/tidal/pkg/etl/checkpoint"
	model "github.com/vitoriamariadb/tidal/pkg/etl/core/model"
)

const checkpointSchema = `
CREATE TABLE IF NOT EXISTS etl_checkpoints (
    id              TEXT PRIMARY KEY,
    pipeline_name   TEXT NOT NULL,
    sequence_number INTEGER NOT NULL,
    step            TEXT NOT NULL,
    payload         BLOB,
    metadata        BLOB,
    checksum        TEXT NOT NULL,
    created_at      TIMESTAMP NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_ckpt_pipeline_seq
    ON etl_checkpoints (pipeline_name, sequence_number);
`

func newGormStore(t *testing.T) *checkpoint.GormStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.Exec(checkpointSchema).Error)
	t.Cleanup(func() {
		db.Exec("DELETE FROM etl_checkpoints")
	})
	return checkpoint.NewGormStore(db)
}

func TestGormStoreCreateAndLoadRoundTrip(t *testing.T) {
	store := newGormStore(t)
	ctx := context.Background()

	payload := testSnapshot(4)
	metadata := model.Metadata{"offset": float64(400)}

	id, err := store.Create(ctx, "orders", "batch-0", payload, metadata)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	record, err := store.LoadLatestValid(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), record.SequenceNumber)
	assert.Equal(t, "batch-0", record.Step)
	assert.Equal(t, payload, record.Payload)
	assert.Equal(t, metadata, record.Metadata)
}

func TestGormStoreSequencePerPipeline(t *testing.T) {
	store := newGormStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := store.Create(ctx, "orders", "batch", testSnapshot(1), nil)
		require.NoError(t, err)
	}
	_, err := store.Create(ctx, "customers", "batch", testSnapshot(1), nil)
	require.NoError(t, err)

	orders, err := store.LoadLatestValid(ctx, "orders")
	require.NoError(t, err)
	customers, err := store.LoadLatestValid(ctx, "customers")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), orders.SequenceNumber)
	assert.Equal(t, uint64(1), customers.SequenceNumber)
}

func TestGormStoreLoadWithNoCheckpoints(t *testing.T) {
	store := newGormStore(t)
	_, err := store.LoadLatestValid(context.Background(), "missing")
	assert.ErrorIs(t, err, checkpoint.ErrCheckpointNotFound)
}

func TestGormStoreListAndExpire(t *testing.T) {
	store := newGormStore(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := store.Create(ctx, "orders", "batch", testSnapshot(1), nil)
		require.NoError(t, err)
	}

	infos, err := store.List(ctx, "orders")
	require.NoError(t, err)
	require.Len(t, infos, 4)
	assert.Equal(t, uint64(4), infos[0].SequenceNumber)
	for _, info := range infos {
		assert.True(t, info.Valid)
	}

	deleted, err := store.Expire(ctx, "orders", 1)
	require.NoError(t, err)
	assert.Equal(t, 3, deleted)

	infos, err = store.List(ctx, "orders")
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, uint64(4), infos[0].SequenceNumber)
}
