package tasks

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "tasks.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := setupSQLiteStore(t)

	task := finishedTask("t1", time.Now(), StatusCompleted)
	require.NoError(t, store.Save(ctx, task))

	got, err := store.Get(ctx, "t1")
	require.NoError(t, err)

	assert.Equal(t, task.ID, got.ID)
	assert.Equal(t, task.Description, got.Description)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, task.UserKey, got.UserKey)
	assert.Equal(t, "sunny", got.Result)
	assert.Equal(t, 3, got.Steps)
	assert.True(t, got.Success)
	assert.Equal(t, task.StartedAt.UnixMilli(), got.StartedAt.UnixMilli())
	require.NotNil(t, got.FinishedAt)
	assert.Equal(t, task.FinishedAt.UnixMilli(), got.FinishedAt.UnixMilli())
}

func TestSQLiteStoreNullFinishedAt(t *testing.T) {
	ctx := context.Background()
	store := setupSQLiteStore(t)

	task := &Task{
		ID:          "t1",
		Description: "open the docs",
		Status:      StatusFailed,
		StartedAt:   time.Now(),
		Error:       "factory failed",
	}
	require.NoError(t, store.Save(ctx, task))

	got, err := store.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Nil(t, got.FinishedAt)
	assert.Equal(t, "factory failed", got.Error)
	assert.False(t, got.Success)
}

func TestSQLiteStoreUpsert(t *testing.T) {
	ctx := context.Background()
	store := setupSQLiteStore(t)

	task := finishedTask("t1", time.Now(), StatusFailed)
	require.NoError(t, store.Save(ctx, task))

	task.Status = StatusCompleted
	task.Success = true
	require.NoError(t, store.Save(ctx, task))

	got, err := store.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)

	tasks, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func TestSQLiteStoreListNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := setupSQLiteStore(t)

	base := time.Now()
	require.NoError(t, store.Save(ctx, finishedTask("old", base.Add(-time.Hour), StatusCompleted)))
	require.NoError(t, store.Save(ctx, finishedTask("new", base, StatusStopped)))

	tasks, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "new", tasks[0].ID)
	assert.Equal(t, "old", tasks[1].ID)
}

func TestSQLiteStoreDelete(t *testing.T) {
	ctx := context.Background()
	store := setupSQLiteStore(t)

	require.NoError(t, store.Save(ctx, finishedTask("t1", time.Now(), StatusCompleted)))
	require.NoError(t, store.Delete(ctx, "t1"))

	_, err := store.Get(ctx, "t1")
	assert.ErrorIs(t, err, ErrTaskNotFound)

	assert.ErrorIs(t, store.Delete(ctx, "t1"), ErrTaskNotFound)
}
