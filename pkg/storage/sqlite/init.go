package sqlite

import (
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
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

func NewDatabase(path string) (*Database, error) {
	db, err := sqlx.Connect("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDBConnection, err)
	}

	db.SetMaxOpenConns(1)
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
						seq INTEGER PRIMARY KEY AUTOINCREMENT,
						epoch INTEGER NOT NULL UNIQUE,
						id TEXT NOT NULL,
						loss REAL,
						weights BLOB NOT NULL,
						created_at TIMESTAMP NOT NULL
					)`,
				},
				Down: []string{
					`DROP TABLE IF EXISTS checkpoints`,
				},
			},
		},
	}

	if _, err := migrate.Exec(db.DB.DB, "sqlite3", migrations, migrate.Up); err != nil {
		return fmt.Errorf("%w: %w", ErrMigration, err)
	}

	return nil
}
