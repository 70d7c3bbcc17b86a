package badger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/absmach/flcore/pkg/fl"
	"github.com/dgraph-io/badger/v4"
)

var (
	checkpointPrefix = []byte("checkpoint:")
	latestKey        = []byte("meta:latest")
)

type checkpointRepo struct {
	db *Database
}

func NewCheckpointRepository(db *Database) fl.CheckpointStore {
	return &checkpointRepo{db: db}
}

func (r *checkpointRepo) Save(_ context.Context, cp fl.Checkpoint) (string, error) {
	cp = cp.Stamped()
	val, err := fl.MarshalCheckpoint(cp)
	if err != nil {
		return "", fmt.Errorf("%w: %w", fl.ErrCheckpointWrite, err)
	}

	key := checkpointKey(cp.Epoch)
	err = r.db.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err == nil {
			return fl.ErrCheckpointExists
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(key, val); err != nil {
			return err
		}

		return txn.Set(latestKey, key[len(checkpointPrefix):])
	})
	switch {
	case errors.Is(err, fl.ErrCheckpointExists):
		return "", fmt.Errorf("%w: %d", fl.ErrCheckpointExists, cp.Epoch)
	case err != nil:
		return "", fmt.Errorf("%w: %w", fl.ErrCheckpointWrite, err)
	}

	return cp.ID, nil
}

func (r *checkpointRepo) Load(_ context.Context, epoch uint64) (fl.Checkpoint, error) {
	var cp fl.Checkpoint
	err := r.db.db.View(func(txn *badger.Txn) error {
		var err error
		cp, err = get(txn, checkpointKey(epoch))

		return err
	})
	if err != nil {
		return fl.Checkpoint{}, wrapNotFound(err, epoch)
	}

	return cp, nil
}

func (r *checkpointRepo) Latest(_ context.Context) (fl.Checkpoint, error) {
	var cp fl.Checkpoint
	err := r.db.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(latestKey)
		if err != nil {
			return err
		}
		epoch, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		cp, err = get(txn, append(append([]byte{}, checkpointPrefix...), epoch...))

		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fl.Checkpoint{}, fl.ErrCheckpointNotFound
		}

		return fl.Checkpoint{}, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	return cp, nil
}

func (r *checkpointRepo) Epochs(_ context.Context) ([]uint64, error) {
	epochs := []uint64{}
	err := r.db.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		// Big-endian keys iterate in ascending epoch order.
		for it.Seek(checkpointPrefix); it.ValidForPrefix(checkpointPrefix); it.Next() {
			key := it.Item().Key()
			epochs = append(epochs, binary.BigEndian.Uint64(key[len(checkpointPrefix):]))
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	return epochs, nil
}

func get(txn *badger.Txn, key []byte) (fl.Checkpoint, error) {
	item, err := txn.Get(key)
	if err != nil {
		return fl.Checkpoint{}, err
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return fl.Checkpoint{}, err
	}

	return fl.UnmarshalCheckpoint(val)
}

func checkpointKey(epoch uint64) []byte {
	key := make([]byte, len(checkpointPrefix)+8)
	copy(key, checkpointPrefix)
	binary.BigEndian.PutUint64(key[len(checkpointPrefix):], epoch)

	return key
}

func wrapNotFound(err error, epoch uint64) error {
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("%w: epoch %d", fl.ErrCheckpointNotFound, epoch)
	}

	return fmt.Errorf("%w: %w", ErrDBQuery, err)
}
