// Package errors holds the transport-level errors shared by HTTP handlers.
package errors

import "errors"

var (
	ErrValidation             = errors.New("request validation failed")
	ErrInvalidData            = errors.New("invalid data type")
	ErrMissingID              = errors.New("missing entity ID")
	ErrMalformedEntity        = errors.New("malformed entity")
	ErrUnsupportedContentType = errors.New("unsupported content type")
)
