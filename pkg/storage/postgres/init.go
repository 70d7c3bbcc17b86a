package postgres

import (
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	migrate "github.com/rubenv/sql-migrate"
)

var (
	ErrDBConnection = errors.New("database connection error")
	ErrDBQuery      = errors.New("database query error")
	ErrMigration    = errors.New("database migration error")
)

type Database struct {
	*sqlx.DB
}

func NewDatabase(host, port, user, pass, name, sslMode string) (*Database, error) {
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s", host, port, user, pass, name, sslMode)
	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDBConnection, err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	database := &Database{DB: db}

	if err := database.Migrate(); err != nil {
		db.Close()

		return nil, err
	}

	return database, nil
}

func (db *Database) Migrate() error {
	migrations := &migrate.MemoryMigrationSource{
		Migrations: []*migrate.Migration{
			{
				Id: "1_create_checkpoints",
				Up: []string{
					`CREATE TABLE IF NOT EXISTS checkpoints (
						seq BIGSERIAL PRIMARY KEY,
						epoch BIGINT NOT NULL UNIQUE,
						id VARCHAR(36) NOT NULL,
						loss DOUBLE PRECISION NOT NULL,
						weights BYTEA NOT NULL,
						created_at TIMESTAMPTZ NOT NULL
					)`,
				},
				Down: []string{
					`DROP TABLE IF EXISTS checkpoints`,
				},
			},
		},
	}

	if _, err := migrate.Exec(db.DB.DB, "postgres", migrations, migrate.Up); err != nil {
		return fmt.Errorf("%w: %w", ErrMigration, err)
	}

	return nil
}
