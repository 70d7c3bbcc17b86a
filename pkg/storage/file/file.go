// Package file stores checkpoints as one CBOR file per epoch in a directory.
package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/absmach/flcore/pkg/fl"
)

const (
	filePrefix = "checkpoint_"
	fileSuffix = ".cbor"
	latestFile = "LATEST"
)

type Store struct {
	dir string
	mu  sync.RWMutex
}

var _ fl.CheckpointStore = (*Store)(nil)

func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	return &Store{dir: dir}, nil
}

func (s *Store) Save(_ context.Context, cp fl.Checkpoint) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp = cp.Stamped()
	data, err := fl.MarshalCheckpoint(cp)
	if err != nil {
		return "", fmt.Errorf("%w: %w", fl.ErrCheckpointWrite, err)
	}

	tmp, err := s.writeTemp(data)
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp)

	// Link refuses to replace an existing file, which keeps checkpoints immutable.
	if err := os.Link(tmp, s.path(cp.Epoch)); err != nil {
		if errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("%w: %d", fl.ErrCheckpointExists, cp.Epoch)
		}

		return "", fmt.Errorf("%w: %w", fl.ErrCheckpointWrite, err)
	}

	latest, err := s.writeTemp([]byte(strconv.FormatUint(cp.Epoch, 10)))
	if err != nil {
		return "", err
	}
	if err := os.Rename(latest, filepath.Join(s.dir, latestFile)); err != nil {
		os.Remove(latest)

		return "", fmt.Errorf("%w: failed to update latest pointer: %w", fl.ErrCheckpointWrite, err)
	}

	return cp.ID, nil
}

func (s *Store) Load(_ context.Context, epoch uint64) (fl.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.load(epoch)
}

func (s *Store) Latest(_ context.Context) (fl.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(filepath.Join(s.dir, latestFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fl.Checkpoint{}, fl.ErrCheckpointNotFound
		}

		return fl.Checkpoint{}, fmt.Errorf("failed to read latest pointer: %w", err)
	}
	epoch, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return fl.Checkpoint{}, fmt.Errorf("corrupt latest pointer: %w", err)
	}

	return s.load(epoch)
}

func (s *Store) Epochs(_ context.Context) ([]uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}

	epochs := []uint64{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name, ok := strings.CutPrefix(entry.Name(), filePrefix)
		if !ok {
			continue
		}
		name, ok = strings.CutSuffix(name, fileSuffix)
		if !ok {
			continue
		}
		epoch, err := strconv.ParseUint(name, 10, 64)
		if err != nil {
			continue
		}
		epochs = append(epochs, epoch)
	}
	slices.Sort(epochs)

	return epochs, nil
}

func (s *Store) load(epoch uint64) (fl.Checkpoint, error) {
	data, err := os.ReadFile(s.path(epoch))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fl.Checkpoint{}, fmt.Errorf("%w: epoch %d", fl.ErrCheckpointNotFound, epoch)
		}

		return fl.Checkpoint{}, fmt.Errorf("failed to read checkpoint file: %w", err)
	}

	return fl.UnmarshalCheckpoint(data)
}

func (s *Store) path(epoch uint64) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s%d%s", filePrefix, epoch, fileSuffix))
}

func (s *Store) writeTemp(data []byte) (string, error) {
	f, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("%w: %w", fl.ErrCheckpointWrite, err)
	}
	name := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(name)

		return "", fmt.Errorf("%w: %w", fl.ErrCheckpointWrite, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(name)

		return "", fmt.Errorf("%w: %w", fl.ErrCheckpointWrite, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(name)

		return "", fmt.Errorf("%w: %w", fl.ErrCheckpointWrite, err)
	}

	return name, nil
}
