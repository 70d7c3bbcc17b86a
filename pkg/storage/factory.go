package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/absmach/flcore/pkg/fl"
	"github.com/absmach/flcore/pkg/storage/badger"
	"github.com/absmach/flcore/pkg/storage/file"
	"github.com/absmach/flcore/pkg/storage/postgres"
	fsredis "github.com/absmach/flcore/pkg/storage/redis"
	"github.com/absmach/flcore/pkg/storage/sqlite"
)

const (
	TypeMemory   = "memory"
	TypeFile     = "file"
	TypeBadger   = "badger"
	TypeSQLite   = "sqlite"
	TypePostgres = "postgres"
	TypeRedis    = "redis"
)

type Config struct {
	Type string `env:"FL_STORAGE_TYPE" envDefault:"file" toml:"type"`

	CheckpointDir string `env:"FL_CHECKPOINT_DIR" envDefault:"./checkpoints" toml:"checkpoint_dir"`

	PostgresHost    string `env:"FL_POSTGRES_HOST"    envDefault:"localhost" toml:"postgres_host"`
	PostgresPort    string `env:"FL_POSTGRES_PORT"    envDefault:"5432"      toml:"postgres_port"`
	PostgresUser    string `env:"FL_POSTGRES_USER"    envDefault:"flcore"    toml:"postgres_user"`
	PostgresPass    string `env:"FL_POSTGRES_PASS"    envDefault:"flcore"    toml:"postgres_pass"`
	PostgresDB      string `env:"FL_POSTGRES_DB"      envDefault:"flcore"    toml:"postgres_db"`
	PostgresSSLMode string `env:"FL_POSTGRES_SSLMODE" envDefault:"disable"   toml:"postgres_sslmode"`

	SQLitePath string `env:"FL_SQLITE_PATH" envDefault:"./checkpoints.db" toml:"sqlite_path"`

	BadgerPath string `env:"FL_BADGER_PATH" envDefault:"./data/badger" toml:"badger_path"`

	RedisURL    string `env:"FL_REDIS_URL"    envDefault:"redis://localhost:6379/0" toml:"redis_url"`
	RedisPrefix string `env:"FL_REDIS_PREFIX" envDefault:"flcore"                   toml:"redis_prefix"`
}

type Repositories struct {
	Checkpoints fl.CheckpointStore
	// Closer closes the underlying persistent storage connection.
	// It is nil for the in-memory and file backends.
	Closer io.Closer
}

func NewRepositories(ctx context.Context, cfg Config) (*Repositories, error) {
	switch cfg.Type {
	case TypePostgres:
		return newPostgresRepositories(cfg)
	case TypeSQLite:
		return newSQLiteRepositories(cfg)
	case TypeBadger:
		return newBadgerRepositories(cfg)
	case TypeRedis:
		return newRedisRepositories(ctx, cfg)
	case TypeFile:
		return newFileRepositories(cfg)
	case TypeMemory:
		return &Repositories{Checkpoints: NewInMemoryStore()}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, cfg.Type)
	}
}

func newPostgresRepositories(cfg Config) (*Repositories, error) {
	db, err := postgres.NewDatabase(
		cfg.PostgresHost,
		cfg.PostgresPort,
		cfg.PostgresUser,
		cfg.PostgresPass,
		cfg.PostgresDB,
		cfg.PostgresSSLMode,
	)
	if err != nil {
		return nil, err
	}

	return &Repositories{
		Checkpoints: postgres.NewCheckpointRepository(db),
		Closer:      db,
	}, nil
}

func newSQLiteRepositories(cfg Config) (*Repositories, error) {
	db, err := sqlite.NewDatabase(cfg.SQLitePath)
	if err != nil {
		return nil, err
	}

	return &Repositories{
		Checkpoints: sqlite.NewCheckpointRepository(db),
		Closer:      db,
	}, nil
}

func newBadgerRepositories(cfg Config) (*Repositories, error) {
	db, err := badger.NewDatabase(cfg.BadgerPath)
	if err != nil {
		return nil, err
	}

	return &Repositories{
		Checkpoints: badger.NewCheckpointRepository(db),
		Closer:      db,
	}, nil
}

func newRedisRepositories(ctx context.Context, cfg Config) (*Repositories, error) {
	client, err := fsredis.Connect(ctx, cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDBConnection, err)
	}

	return &Repositories{
		Checkpoints: fsredis.NewCheckpointRepository(client, cfg.RedisPrefix),
		Closer:      client,
	}, nil
}

func newFileRepositories(cfg Config) (*Repositories, error) {
	store, err := file.NewStore(cfg.CheckpointDir)
	if err != nil {
		return nil, err
	}

	return &Repositories{Checkpoints: store}, nil
}
