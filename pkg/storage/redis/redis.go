// Package redis stores checkpoints in Redis. Each checkpoint is a CBOR value
// under <prefix>:checkpoint:<epoch>; a sorted set indexes epochs and a plain
// key names the latest write.
package redis

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/absmach/flcore/pkg/fl"
	"github.com/redis/go-redis/v9"
)

var ErrDBQuery = errors.New("redis query error")

type checkpointRepo struct {
	client *redis.Client
	prefix string
}

func NewCheckpointRepository(client *redis.Client, prefix string) fl.CheckpointStore {
	return &checkpointRepo{client: client, prefix: prefix}
}

// Connect parses a redis:// URL and verifies the server is reachable.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()

		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

func (r *checkpointRepo) Save(ctx context.Context, cp fl.Checkpoint) (string, error) {
	cp = cp.Stamped()
	val, err := fl.MarshalCheckpoint(cp)
	if err != nil {
		return "", fmt.Errorf("%w: %w", fl.ErrCheckpointWrite, err)
	}

	key := r.checkpointKey(cp.Epoch)
	txf := func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return fl.ErrCheckpointExists
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, val, 0)
			pipe.ZAdd(ctx, r.epochsKey(), redis.Z{Score: float64(cp.Epoch), Member: strconv.FormatUint(cp.Epoch, 10)})
			pipe.Set(ctx, r.latestKey(), strconv.FormatUint(cp.Epoch, 10), 0)

			return nil
		})

		return err
	}

	switch err := r.client.Watch(ctx, txf, key); {
	case errors.Is(err, fl.ErrCheckpointExists), errors.Is(err, redis.TxFailedErr):
		return "", fmt.Errorf("%w: %d", fl.ErrCheckpointExists, cp.Epoch)
	case err != nil:
		return "", fmt.Errorf("%w: %w", fl.ErrCheckpointWrite, err)
	}

	return cp.ID, nil
}

func (r *checkpointRepo) Load(ctx context.Context, epoch uint64) (fl.Checkpoint, error) {
	val, err := r.client.Get(ctx, r.checkpointKey(epoch)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return fl.Checkpoint{}, fmt.Errorf("%w: epoch %d", fl.ErrCheckpointNotFound, epoch)
		}

		return fl.Checkpoint{}, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	return fl.UnmarshalCheckpoint(val)
}

func (r *checkpointRepo) Latest(ctx context.Context) (fl.Checkpoint, error) {
	epoch, err := r.client.Get(ctx, r.latestKey()).Uint64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return fl.Checkpoint{}, fl.ErrCheckpointNotFound
		}

		return fl.Checkpoint{}, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	return r.Load(ctx, epoch)
}

func (r *checkpointRepo) Epochs(ctx context.Context) ([]uint64, error) {
	members, err := r.client.ZRange(ctx, r.epochsKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	// Scores lose precision above 2^53, so order by the parsed member.
	epochs := make([]uint64, 0, len(members))
	for _, m := range members {
		e, err := strconv.ParseUint(m, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: corrupt epoch index entry %q", ErrDBQuery, m)
		}
		epochs = append(epochs, e)
	}
	slices.Sort(epochs)

	return epochs, nil
}

func (r *checkpointRepo) checkpointKey(epoch uint64) string {
	return fmt.Sprintf("%s:checkpoint:%d", r.prefix, epoch)
}

func (r *checkpointRepo) epochsKey() string {
	return r.prefix + ":epochs"
}

func (r *checkpointRepo) latestKey() string {
	return r.prefix + ":latest"
}
