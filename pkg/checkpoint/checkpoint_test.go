package checkpoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestMarkAndCheckCluster(t *testing.T) {
	store := openTestStore(t)

	done, err := store.IsDone("run-1", "cluster-a")
	require.NoError(t, err)
	assert.False(t, done)

	require.NoError(t, store.MarkDone("run-1", "cluster-a"))

	done, err = store.IsDone("run-1", "cluster-a")
	require.NoError(t, err)
	assert.True(t, done)
}

func TestRunsAreIsolated(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.MarkDone("run-1", "cluster-a"))

	done, err := store.IsDone("run-2", "cluster-a")
	require.NoError(t, err)
	assert.False(t, done)
}

func TestClearRun(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.MarkDone("run-1", "cluster-a"))
	require.NoError(t, store.MarkDone("run-1", "cluster-b"))
	require.NoError(t, store.MarkDone("run-2", "cluster-a"))

	require.NoError(t, store.ClearRun("run-1"))

	done, err := store.IsDone("run-1", "cluster-a")
	require.NoError(t, err)
	assert.False(t, done)

	// Other runs keep their checkpoints.
	done, err = store.IsDone("run-2", "cluster-a")
	require.NoError(t, err)
	assert.True(t, done)
}

func TestOpenOnDisk(t *testing.T) {
	dir := t.TempDir()

	store, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, store.MarkDone("run-1", "cluster-a"))
	require.NoError(t, store.Close())

	// Reopening the same path sees the checkpoint.
	store, err = Open(dir)
	require.NoError(t, err)
	defer store.Close()

	done, err := store.IsDone("run-1", "cluster-a")
	require.NoError(t, err)
	assert.True(t, done)
}
