package checkpoint

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/BaSui01/overseer/types"
)

func setupGormStore(t *testing.T) *GormStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	store, err := NewGormStore(db, zap.NewNop())
	require.NoError(t, err)
	return store
}

func TestGormStore_PutAndLatest(t *testing.T) {
	store := setupGormStore(t)
	ctx := context.Background()

	cp1, err := store.Put(ctx, "t1", json.RawMessage(`{"phase":"decompose"}`))
	require.NoError(t, err)
	assert.Equal(t, int64(1), cp1.Sequence)

	cp2, err := store.Put(ctx, "t1", json.RawMessage(`{"phase":"review"}`))
	require.NoError(t, err)
	assert.Equal(t, int64(2), cp2.Sequence)

	latest, err := store.Latest(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), latest.Sequence)
	assert.JSONEq(t, `{"phase":"review"}`, string(latest.State))
}

func TestGormStore_ThreadsAreIsolated(t *testing.T) {
	store := setupGormStore(t)
	ctx := context.Background()

	_, err := store.Put(ctx, "a", json.RawMessage(`{"t":"a"}`))
	require.NoError(t, err)
	cp, err := store.Put(ctx, "b", json.RawMessage(`{"t":"b"}`))
	require.NoError(t, err)
	assert.Equal(t, int64(1), cp.Sequence)

	latest, err := store.Latest(ctx, "a")
	require.NoError(t, err)
	assert.JSONEq(t, `{"t":"a"}`, string(latest.State))
}

func TestGormStore_LatestOnFreshThread(t *testing.T) {
	store := setupGormStore(t)

	_, err := store.Latest(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrCheckpointNotFound))
}

func TestGormStore_ListAndDelete(t *testing.T) {
	store := setupGormStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := store.Put(ctx, "t1", json.RawMessage(`{}`))
		require.NoError(t, err)
	}

	list, err := store.List(ctx, "t1", 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, int64(3), list[0].Sequence)
	assert.Equal(t, int64(2), list[1].Sequence)

	require.NoError(t, store.DeleteThread(ctx, "t1"))
	_, err = store.Latest(ctx, "t1")
	assert.True(t, types.IsCode(err, types.ErrCheckpointNotFound))
}
