package incremental_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/vitoriamariadb/tidal/pkg/etl/core/model"
	"github.com/vitoriamariadb/tidal/pkg/etl/incremental"
	exception "github.com/vitoriamariadb/tidal/pkg/etl/support/exception"
)

func newTracker(t *testing.T, mode incremental.Mode) *incremental.Tracker {
	t.Helper()
	store, err := incremental.NewFileStateStore(t.TempDir())
	require.NoError(t, err)
	return incremental.NewTracker(store, mode)
}

func ordersSnapshot() model.Snapshot {
	return model.Snapshot{
		{"order_id": "o-1", "updated_at": "2026-08-01T10:00:00Z", "status": "new"},
		{"order_id": "o-2", "updated_at": "2026-08-02T10:00:00Z", "status": "new"},
		{"order_id": "o-3", "updated_at": "2026-08-03T10:00:00Z", "status": "new"},
	}
}

func TestDeltaFirstRunReturnsFullSnapshot(t *testing.T) {
	tracker := newTracker(t, incremental.ModeAppend)

	result, err := tracker.Delta(context.Background(), ordersSnapshot(), "order_id", "updated_at", "orders")
	require.NoError(t, err)
	assert.Len(t, result.Records, 3)
	assert.Empty(t, result.DeletedKeys)
}

func TestDeltaSelectsStrictlyGreaterThanWatermark(t *testing.T) {
	tracker := newTracker(t, incremental.ModeAppend)
	ctx := context.Background()

	require.NoError(t, tracker.Commit(ctx, "orders", "2026-08-02T10:00:00Z", nil))

	result, err := tracker.Delta(ctx, ordersSnapshot(), "order_id", "updated_at", "orders")
	require.NoError(t, err)
	// o-2 sits exactly on the watermark and is excluded.
	require.Len(t, result.Records, 1)
	assert.Equal(t, "o-3", result.Records[0]["order_id"])
}

func TestDeltaExcludesRecordsMissingComparisonColumn(t *testing.T) {
	tracker := newTracker(t, incremental.ModeAppend)
	ctx := context.Background()

	require.NoError(t, tracker.Commit(ctx, "orders", "2026-08-01T00:00:00Z", nil))

	snapshot := model.Snapshot{
		{"order_id": "o-1", "updated_at": "2026-08-02T10:00:00Z"},
		{"order_id": "o-2"},
	}
	result, err := tracker.Delta(ctx, snapshot, "order_id", "updated_at", "orders")
	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	assert.Equal(t, "o-1", result.Records[0]["order_id"])
}

func TestDeltaIsRepeatableWithoutCommit(t *testing.T) {
	tracker := newTracker(t, incremental.ModeAppend)
	ctx := context.Background()

	require.NoError(t, tracker.Commit(ctx, "orders", "2026-08-01T10:00:00Z", nil))

	first, err := tracker.Delta(ctx, ordersSnapshot(), "order_id", "updated_at", "orders")
	require.NoError(t, err)
	second, err := tracker.Delta(ctx, ordersSnapshot(), "order_id", "updated_at", "orders")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestCommitRejectsRegressingWatermark(t *testing.T) {
	tracker := newTracker(t, incremental.ModeAppend)
	ctx := context.Background()

	require.NoError(t, tracker.Commit(ctx, "orders", "2026-08-03T10:00:00Z", nil))

	err := tracker.Commit(ctx, "orders", "2026-08-01T10:00:00Z", nil)
	require.Error(t, err)
	assert.True(t, exception.IsWatermarkRegression(err))

	// The stored watermark is unchanged.
	result, err := tracker.Delta(ctx, ordersSnapshot(), "order_id", "updated_at", "orders")
	require.NoError(t, err)
	assert.Empty(t, result.Records)
}

func TestCommitNilWatermarkKeepsStored(t *testing.T) {
	tracker := newTracker(t, incremental.ModeAppend)
	ctx := context.Background()

	require.NoError(t, tracker.Commit(ctx, "events", 100, nil))

	// A run whose delta carries no comparable values commits nil; the
	// stored watermark must survive it.
	require.NoError(t, tracker.Commit(ctx, "events", nil, map[string]string{}))

	stale := model.Snapshot{{"event_id": "e-1", "seq": 50}}
	result, err := tracker.Delta(ctx, stale, "event_id", "seq", "events")
	require.NoError(t, err)
	assert.Empty(t, result.Records)
}

func TestCommitEqualWatermarkIsNoOp(t *testing.T) {
	tracker := newTracker(t, incremental.ModeAppend)
	ctx := context.Background()

	require.NoError(t, tracker.Commit(ctx, "orders", "2026-08-03T10:00:00Z", nil))
	require.NoError(t, tracker.Commit(ctx, "orders", "2026-08-03T10:00:00Z", nil))
}

func TestCommitNumericWatermarkProgression(t *testing.T) {
	tracker := newTracker(t, incremental.ModeAppend)
	ctx := context.Background()

	require.NoError(t, tracker.Commit(ctx, "events", 100, nil))
	require.NoError(t, tracker.Commit(ctx, "events", 250, nil))

	// JSON round-trips integers as float64; they still compare numerically.
	err := tracker.Commit(ctx, "events", 200, nil)
	assert.True(t, exception.IsWatermarkRegression(err))
}

func TestDeltaIncomparableWatermarkValues(t *testing.T) {
	tracker := newTracker(t, incremental.ModeAppend)
	ctx := context.Background()

	require.NoError(t, tracker.Commit(ctx, "orders", 100, nil))

	snapshot := model.Snapshot{{"order_id": "o-1", "updated_at": "not-a-number"}}
	_, err := tracker.Delta(ctx, snapshot, "order_id", "updated_at", "orders")
	assert.Error(t, err)
}

func TestDeltaCDCDetectsChangedAndDeletedKeys(t *testing.T) {
	tracker := newTracker(t, incremental.ModeCDC)
	ctx := context.Background()

	previous := ordersSnapshot()
	require.NoError(t, tracker.Commit(ctx, "orders", "2026-08-03T10:00:00Z",
		incremental.KeyHashes(previous, "order_id")))

	// o-1 changed content without touching updated_at, o-2 disappeared,
	// o-3 is unchanged, o-4 is new but below the watermark.
	current := model.Snapshot{
		{"order_id": "o-1", "updated_at": "2026-08-01T10:00:00Z", "status": "shipped"},
		{"order_id": "o-3", "updated_at": "2026-08-03T10:00:00Z", "status": "new"},
		{"order_id": "o-4", "updated_at": "2026-08-02T09:00:00Z", "status": "new"},
	}

	result, err := tracker.Delta(ctx, current, "order_id", "updated_at", "orders")
	require.NoError(t, err)

	var keys []string
	for _, r := range result.Records {
		keys = append(keys, r["order_id"].(string))
	}
	assert.ElementsMatch(t, []string{"o-1", "o-4"}, keys)
	assert.Equal(t, []string{"o-2"}, result.DeletedKeys)
}

func TestDeltaAppendModeIgnoresContentChanges(t *testing.T) {
	tracker := newTracker(t, incremental.ModeAppend)
	ctx := context.Background()

	previous := ordersSnapshot()
	require.NoError(t, tracker.Commit(ctx, "orders", "2026-08-03T10:00:00Z",
		incremental.KeyHashes(previous, "order_id")))

	changed := model.Snapshot{
		{"order_id": "o-1", "updated_at": "2026-08-01T10:00:00Z", "status": "shipped"},
	}
	result, err := tracker.Delta(ctx, changed, "order_id", "updated_at", "orders")
	require.NoError(t, err)
	assert.Empty(t, result.Records)
	assert.Empty(t, result.DeletedKeys)
}

func TestMaxWatermark(t *testing.T) {
	max, err := incremental.MaxWatermark(ordersSnapshot(), "updated_at")
	require.NoError(t, err)
	assert.Equal(t, "2026-08-03T10:00:00Z", max)

	max, err = incremental.MaxWatermark(model.Snapshot{{"id": 1}}, "updated_at")
	require.NoError(t, err)
	assert.Nil(t, max)
}

func TestKeyHashesDistinguishContent(t *testing.T) {
	a := model.Record{"order_id": "o-1", "status": "new"}
	b := model.Record{"order_id": "o-1", "status": "shipped"}

	hashes := incremental.KeyHashes(model.Snapshot{a}, "order_id")
	require.Contains(t, hashes, "o-1")
	assert.NotEqual(t, hashes["o-1"], b.Hash())
	assert.Equal(t, hashes["o-1"], a.Hash())
}
