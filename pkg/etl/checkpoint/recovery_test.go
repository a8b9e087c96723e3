package checkpoint_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitoriamariadb/tidal/pkg/etl/checkpoint"
	exception "github.com/vitoriamariadb/tidal/pkg/etl/support/exception"
)

func TestRecoverReturnsLatestValidCheckpoint(t *testing.T) {
	store := newFileStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, "orders", "batch-0", testSnapshot(3), nil)
	require.NoError(t, err)
	_, err = store.Create(ctx, "orders", "batch-1", testSnapshot(6), nil)
	require.NoError(t, err)

	rc := checkpoint.NewRecoveryCoordinator(store)
	assert.True(t, rc.CanRecover(ctx, "orders"))

	record, err := rc.Recover(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), record.SequenceNumber)
	assert.Equal(t, "batch-1", record.Step)
}

func TestRecoverIsRepeatable(t *testing.T) {
	store := newFileStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, "orders", "batch-0", testSnapshot(3), nil)
	require.NoError(t, err)

	rc := checkpoint.NewRecoveryCoordinator(store)
	first, err := rc.Recover(ctx, "orders")
	require.NoError(t, err)
	second, err := rc.Recover(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRecoverWithoutStateReturnsNoRecoverableState(t *testing.T) {
	store := newFileStore(t)
	rc := checkpoint.NewRecoveryCoordinator(store)

	assert.False(t, rc.CanRecover(context.Background(), "orders"))

	_, err := rc.Recover(context.Background(), "orders")
	require.Error(t, err)
	assert.True(t, exception.IsNoRecoverableState(err))
}
