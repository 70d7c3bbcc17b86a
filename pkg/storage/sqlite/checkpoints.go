package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/absmach/flcore/pkg/fl"
	"github.com/absmach/flcore/pkg/tensor"
	"github.com/mattn/go-sqlite3"
)

type checkpointRepo struct {
	db *Database
}

func NewCheckpointRepository(db *Database) fl.CheckpointStore {
	return &checkpointRepo{db: db}
}

type dbCheckpoint struct {
	Epoch     int64           `db:"epoch"`
	ID        string          `db:"id"`
	Loss      sql.NullFloat64 `db:"loss"`
	Weights   []byte          `db:"weights"`
	CreatedAt time.Time       `db:"created_at"`
}

func (r *checkpointRepo) Save(ctx context.Context, cp fl.Checkpoint) (string, error) {
	query := `INSERT INTO checkpoints (epoch, id, loss, weights, created_at) VALUES (?, ?, ?, ?, ?)`

	cp = cp.Stamped()
	weights, err := tensor.Marshal(cp.Weights)
	if err != nil {
		return "", fmt.Errorf("%w: %w", fl.ErrCheckpointWrite, err)
	}

	_, err = r.db.ExecContext(ctx, query, int64(cp.Epoch), cp.ID, cp.Loss, weights, cp.CreatedAt)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return "", fmt.Errorf("%w: %d", fl.ErrCheckpointExists, cp.Epoch)
		}

		return "", fmt.Errorf("%w: %w", fl.ErrCheckpointWrite, err)
	}

	return cp.ID, nil
}

func (r *checkpointRepo) Load(ctx context.Context, epoch uint64) (fl.Checkpoint, error) {
	query := `SELECT epoch, id, loss, weights, created_at FROM checkpoints WHERE epoch = ?`

	return r.get(ctx, query, int64(epoch))
}

func (r *checkpointRepo) Latest(ctx context.Context) (fl.Checkpoint, error) {
	query := `SELECT epoch, id, loss, weights, created_at FROM checkpoints ORDER BY seq DESC LIMIT 1`

	return r.get(ctx, query)
}

func (r *checkpointRepo) Epochs(ctx context.Context) ([]uint64, error) {
	query := `SELECT epoch FROM checkpoints ORDER BY epoch ASC`

	var rows []int64
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}
	epochs := make([]uint64, len(rows))
	for i, e := range rows {
		epochs[i] = uint64(e)
	}

	return epochs, nil
}

func (r *checkpointRepo) get(ctx context.Context, query string, args ...any) (fl.Checkpoint, error) {
	var dbc dbCheckpoint
	if err := r.db.GetContext(ctx, &dbc, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if len(args) > 0 {
				return fl.Checkpoint{}, fmt.Errorf("%w: epoch %v", fl.ErrCheckpointNotFound, args[0])
			}

			return fl.Checkpoint{}, fl.ErrCheckpointNotFound
		}

		return fl.Checkpoint{}, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	return toCheckpoint(dbc)
}

func toCheckpoint(dbc dbCheckpoint) (fl.Checkpoint, error) {
	weights, err := tensor.Unmarshal(dbc.Weights)
	if err != nil {
		return fl.Checkpoint{}, err
	}

	// SQLite stores NaN as NULL.
	loss := math.NaN()
	if dbc.Loss.Valid {
		loss = dbc.Loss.Float64
	}

	return fl.Checkpoint{
		ID:        dbc.ID,
		Epoch:     uint64(dbc.Epoch),
		Loss:      loss,
		Weights:   weights,
		CreatedAt: dbc.CreatedAt,
	}, nil
}
