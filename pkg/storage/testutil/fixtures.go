package testutil

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/absmach/flcore/pkg/fl"
	"github.com/absmach/flcore/pkg/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeights(seed float64) tensor.Weights {
	kernel, err := tensor.New([]int{2, 3}, []float64{seed, -seed, 0.1 * seed, 1e-300, math.MaxFloat64, math.SmallestNonzeroFloat64})
	if err != nil {
		panic(err)
	}

	return tensor.Weights{
		"dense/kernel": kernel,
		"dense/bias":   tensor.Vector(seed / 3),
	}
}

func TestCheckpoint(epoch uint64) fl.Checkpoint {
	return fl.Checkpoint{
		Epoch:     epoch,
		Loss:      1 / float64(epoch+1),
		Weights:   TestWeights(float64(epoch) + 0.5),
		CreatedAt: time.Now().UTC(),
	}
}

// RunCheckpointStoreTests exercises the behaviour every checkpoint backend must
// share. newStore must return an empty store on each call.
func RunCheckpointStoreTests(t *testing.T, newStore func(t *testing.T) fl.CheckpointStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("save and load round trip", func(t *testing.T) {
		store := newStore(t)
		cp := TestCheckpoint(3)
		cp.ID = "checkpoint-3"

		id, err := store.Save(ctx, cp)
		require.NoError(t, err)
		assert.Equal(t, "checkpoint-3", id)

		got, err := store.Load(ctx, 3)
		require.NoError(t, err)
		assert.Equal(t, id, got.ID)
		assert.Equal(t, cp.Epoch, got.Epoch)
		assert.Equal(t, cp.Loss, got.Loss)
		assert.True(t, cp.Weights.Equal(got.Weights), "weights differ after round trip")
		assert.WithinDuration(t, cp.CreatedAt, got.CreatedAt, time.Second)
	})

	t.Run("save generates an id", func(t *testing.T) {
		store := newStore(t)

		id, err := store.Save(ctx, TestCheckpoint(1))
		require.NoError(t, err)
		assert.NotEmpty(t, id)

		got, err := store.Load(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, id, got.ID)
	})

	t.Run("saved checkpoints are immutable", func(t *testing.T) {
		store := newStore(t)
		cp := TestCheckpoint(2)
		_, err := store.Save(ctx, cp)
		require.NoError(t, err)

		dup := TestCheckpoint(2)
		dup.Loss = 42
		_, err = store.Save(ctx, dup)
		assert.ErrorIs(t, err, fl.ErrCheckpointExists)

		cp.Weights["dense/bias"].Data[0] = 1000
		got, err := store.Load(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, TestCheckpoint(2).Loss, got.Loss)
		assert.True(t, TestCheckpoint(2).Weights.Equal(got.Weights))

		got.Weights["dense/bias"].Data[0] = -1
		again, err := store.Load(ctx, 2)
		require.NoError(t, err)
		assert.True(t, TestCheckpoint(2).Weights.Equal(again.Weights))
	})

	t.Run("load missing epoch", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Save(ctx, TestCheckpoint(1))
		require.NoError(t, err)

		_, err = store.Load(ctx, 7)
		assert.ErrorIs(t, err, fl.ErrCheckpointNotFound)
	})

	t.Run("latest on empty store", func(t *testing.T) {
		store := newStore(t)

		_, err := store.Latest(ctx)
		assert.ErrorIs(t, err, fl.ErrCheckpointNotFound)

		epochs, err := store.Epochs(ctx)
		require.NoError(t, err)
		assert.Empty(t, epochs)
	})

	t.Run("latest follows write order", func(t *testing.T) {
		store := newStore(t)
		for _, epoch := range []uint64{5, 2, 9, 4} {
			_, err := store.Save(ctx, TestCheckpoint(epoch))
			require.NoError(t, err)

			latest, err := store.Latest(ctx)
			require.NoError(t, err)
			assert.Equal(t, epoch, latest.Epoch)
		}

		epochs, err := store.Epochs(ctx)
		require.NoError(t, err)
		assert.Equal(t, []uint64{2, 4, 5, 9}, epochs)
	})

	t.Run("large epoch numbers", func(t *testing.T) {
		store := newStore(t)
		epoch := uint64(math.MaxInt64)

		_, err := store.Save(ctx, TestCheckpoint(epoch))
		require.NoError(t, err)

		got, err := store.Load(ctx, epoch)
		require.NoError(t, err)
		assert.Equal(t, epoch, got.Epoch)
	})
}
