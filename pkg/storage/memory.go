package storage

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/absmach/flcore/pkg/fl"
)

type inMemoryStore struct {
	sync.Mutex

	data   map[uint64]fl.Checkpoint
	latest uint64
}

// NewInMemoryStore returns a CheckpointStore that keeps deep copies of saved
// checkpoints in process memory.
func NewInMemoryStore() fl.CheckpointStore {
	return &inMemoryStore{
		data: make(map[uint64]fl.Checkpoint),
	}
}

func (s *inMemoryStore) Save(_ context.Context, cp fl.Checkpoint) (string, error) {
	s.Lock()
	defer s.Unlock()

	if _, ok := s.data[cp.Epoch]; ok {
		return "", fmt.Errorf("%w: %d", fl.ErrCheckpointExists, cp.Epoch)
	}

	cp = cp.Stamped()
	s.data[cp.Epoch] = cp
	s.latest = cp.Epoch

	return cp.ID, nil
}

func (s *inMemoryStore) Load(_ context.Context, epoch uint64) (fl.Checkpoint, error) {
	s.Lock()
	defer s.Unlock()

	cp, ok := s.data[epoch]
	if !ok {
		return fl.Checkpoint{}, fmt.Errorf("%w: epoch %d", fl.ErrCheckpointNotFound, epoch)
	}
	cp.Weights = cp.Weights.Clone()

	return cp, nil
}

func (s *inMemoryStore) Latest(ctx context.Context) (fl.Checkpoint, error) {
	s.Lock()
	empty, latest := len(s.data) == 0, s.latest
	s.Unlock()

	if empty {
		return fl.Checkpoint{}, fl.ErrCheckpointNotFound
	}

	return s.Load(ctx, latest)
}

func (s *inMemoryStore) Epochs(_ context.Context) ([]uint64, error) {
	s.Lock()
	defer s.Unlock()

	epochs := make([]uint64, 0, len(s.data))
	for e := range s.data {
		epochs = append(epochs, e)
	}
	slices.Sort(epochs)

	return epochs, nil
}
