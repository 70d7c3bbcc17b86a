package storage

import "errors"

var (
	ErrUnsupportedType = errors.New("unsupported storage type")
	ErrDBConnection    = errors.New("database connection error")
)
