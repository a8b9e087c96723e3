package incremental_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	model "github.com/vitoriamariadb/tidal/pkg/etl/core/model"
	"github.com/vitoriamariadb/tidal/pkg/etl/incremental"
)

const stateSchema = `
CREATE TABLE IF NOT EXISTS etl_incremental_state (
    state_key         TEXT PRIMARY KEY,
    key_column        TEXT NOT NULL,
    comparison_column TEXT NOT NULL,
    watermark         BLOB,
    key_hashes        BLOB,
    updated_at        TIMESTAMP NOT NULL
);
`

func newGormStateStore(t *testing.T) *incremental.GormStateStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.Exec(stateSchema).Error)
	t.Cleanup(func() {
		db.Exec("DELETE FROM etl_incremental_state")
	})
	return incremental.NewGormStateStore(db)
}

func TestGormStateStoreSaveAndLoadRoundTrip(t *testing.T) {
	store := newGormStateStore(t)
	ctx := context.Background()

	state := &model.IncrementalState{
		StateKey:         "orders",
		KeyColumn:        "order_id",
		ComparisonColumn: "updated_at",
		Watermark:        "2026-08-03T10:00:00Z",
		KeyHashes:        map[string]string{"o-1": "abc"},
		UpdatedAt:        time.Now().UTC(),
	}
	require.NoError(t, store.Save(ctx, state))

	loaded, err := store.Load(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, state.Watermark, loaded.Watermark)
	assert.Equal(t, state.KeyHashes, loaded.KeyHashes)
	assert.Equal(t, "order_id", loaded.KeyColumn)
}

func TestGormStateStoreUpsertsOnStateKey(t *testing.T) {
	store := newGormStateStore(t)
	ctx := context.Background()

	state := &model.IncrementalState{
		StateKey:         "orders",
		KeyColumn:        "order_id",
		ComparisonColumn: "updated_at",
		Watermark:        float64(100),
		UpdatedAt:        time.Now().UTC(),
	}
	require.NoError(t, store.Save(ctx, state))
	state.Watermark = float64(200)
	require.NoError(t, store.Save(ctx, state))

	loaded, err := store.Load(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, float64(200), loaded.Watermark)
}

func TestGormStateStoreLoadMissingKey(t *testing.T) {
	store := newGormStateStore(t)
	_, err := store.Load(context.Background(), "missing")
	assert.ErrorIs(t, err, incremental.ErrStateNotFound)
}

func TestGormStateStoreDelete(t *testing.T) {
	store := newGormStateStore(t)
	ctx := context.Background()

	state := &model.IncrementalState{
		StateKey:         "orders",
		KeyColumn:        "order_id",
		ComparisonColumn: "updated_at",
		UpdatedAt:        time.Now().UTC(),
	}
	require.NoError(t, store.Save(ctx, state))
	require.NoError(t, store.Delete(ctx, "orders"))
	_, err := store.Load(ctx, "orders")
	assert.ErrorIs(t, err, incremental.ErrStateNotFound)
}
