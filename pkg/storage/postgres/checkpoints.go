package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/absmach/flcore/pkg/fl"
	"github.com/absmach/flcore/pkg/tensor"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

type checkpointRepo struct {
	db *Database
}

func NewCheckpointRepository(db *Database) fl.CheckpointStore {
	return &checkpointRepo{db: db}
}

type dbCheckpoint struct {
	Epoch     int64     `db:"epoch"`
	ID        string    `db:"id"`
	Loss      float64   `db:"loss"`
	Weights   []byte    `db:"weights"`
	CreatedAt time.Time `db:"created_at"`
}

func (r *checkpointRepo) Save(ctx context.Context, cp fl.Checkpoint) (string, error) {
	query := `INSERT INTO checkpoints (epoch, id, loss, weights, created_at)
		VALUES (:epoch, :id, :loss, :weights, :created_at)`

	cp = cp.Stamped()
	weights, err := tensor.Marshal(cp.Weights)
	if err != nil {
		return "", fmt.Errorf("%w: %w", fl.ErrCheckpointWrite, err)
	}

	dbc := dbCheckpoint{
		Epoch:     int64(cp.Epoch),
		ID:        cp.ID,
		Loss:      cp.Loss,
		Weights:   weights,
		CreatedAt: cp.CreatedAt,
	}
	if _, err := r.db.NamedExecContext(ctx, query, dbc); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return "", fmt.Errorf("%w: %d", fl.ErrCheckpointExists, cp.Epoch)
		}

		return "", fmt.Errorf("%w: %w", fl.ErrCheckpointWrite, err)
	}

	return cp.ID, nil
}

func (r *checkpointRepo) Load(ctx context.Context, epoch uint64) (fl.Checkpoint, error) {
	query := `SELECT epoch, id, loss, weights, created_at FROM checkpoints WHERE epoch = $1`

	var dbc dbCheckpoint
	if err := r.db.GetContext(ctx, &dbc, query, int64(epoch)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fl.Checkpoint{}, fmt.Errorf("%w: epoch %d", fl.ErrCheckpointNotFound, epoch)
		}

		return fl.Checkpoint{}, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	return toCheckpoint(dbc)
}

func (r *checkpointRepo) Latest(ctx context.Context) (fl.Checkpoint, error) {
	query := `SELECT epoch, id, loss, weights, created_at FROM checkpoints ORDER BY seq DESC LIMIT 1`

	var dbc dbCheckpoint
	if err := r.db.GetContext(ctx, &dbc, query); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fl.Checkpoint{}, fl.ErrCheckpointNotFound
		}

		return fl.Checkpoint{}, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	return toCheckpoint(dbc)
}

func (r *checkpointRepo) Epochs(ctx context.Context) ([]uint64, error) {
	var rows []int64
	if err := r.db.SelectContext(ctx, &rows, `SELECT epoch FROM checkpoints ORDER BY epoch ASC`); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}
	epochs := make([]uint64, len(rows))
	for i, e := range rows {
		epochs[i] = uint64(e)
	}

	return epochs, nil
}

func toCheckpoint(dbc dbCheckpoint) (fl.Checkpoint, error) {
	weights, err := tensor.Unmarshal(dbc.Weights)
	if err != nil {
		return fl.Checkpoint{}, err
	}

	return fl.Checkpoint{
		ID:        dbc.ID,
		Epoch:     uint64(dbc.Epoch),
		Loss:      dbc.Loss,
		Weights:   weights,
		CreatedAt: dbc.CreatedAt.UTC(),
	}, nil
}
