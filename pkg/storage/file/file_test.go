package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/absmach/flcore/pkg/fl"
	"github.com/absmach/flcore/pkg/storage/file"
	"github.com/absmach/flcore/pkg/storage/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore(t *testing.T) {
	testutil.RunCheckpointStoreTests(t, func(t *testing.T) fl.CheckpointStore {
		store, err := file.NewStore(t.TempDir())
		require.NoError(t, err)

		return store
	})
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "nested", "checkpoints")

	store, err := file.NewStore(dir)
	require.NoError(t, err)
	for _, epoch := range []uint64{1, 3} {
		_, err := store.Save(ctx, testutil.TestCheckpoint(epoch))
		require.NoError(t, err)
	}

	reopened, err := file.NewStore(dir)
	require.NoError(t, err)

	latest, err := reopened.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), latest.Epoch)
	assert.True(t, testutil.TestCheckpoint(3).Weights.Equal(latest.Weights))

	epochs, err := reopened.Epochs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 3}, epochs)
}

func TestFileStoreIgnoresForeignFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "checkpoint_abc.cbor"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "checkpoint_9.cbor.d"), 0o755))

	store, err := file.NewStore(dir)
	require.NoError(t, err)
	_, err = store.Save(ctx, testutil.TestCheckpoint(4))
	require.NoError(t, err)

	epochs, err := store.Epochs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uint64{4}, epochs)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp-", "temporary files must be cleaned up")
	}
}

func TestFileStoreCorruptCheckpoint(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "checkpoint_2.cbor"), []byte{0xff, 0x00}, 0o644))

	store, err := file.NewStore(dir)
	require.NoError(t, err)

	_, err = store.Load(context.Background(), 2)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, fl.ErrCheckpointNotFound)
}
