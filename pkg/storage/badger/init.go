package badger

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

var (
	ErrDBConnection = errors.New("badger database connection error")
	ErrDBQuery      = errors.New("database query error")
)

type Database struct {
	db *badger.DB
}

func NewDatabase(path string) (*Database, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDBConnection, err)
	}

	return &Database{db: db}, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}
