package fl

import (
	"errors"
	"fmt"
)

var (
	ErrConfiguration      = errors.New("invalid federated learning configuration")
	ErrNoUpdates          = errors.New("no updates provided for aggregation")
	ErrNoUsableUpdates    = errors.New("no usable client updates in round")
	ErrDivisionByZero     = errors.New("total sample count is zero")
	ErrOverflow           = errors.New("sample count overflow during aggregation")
	ErrWeightMismatch     = errors.New("client weights do not match global weights")
	ErrClientTask         = errors.New("client task failed")
	ErrUnknownClient      = errors.New("client is not registered")
	ErrCheckpointNotFound = errors.New("checkpoint not found")
	ErrCheckpointExists   = errors.New("checkpoint already exists for epoch")
	ErrCheckpointWrite    = errors.New("failed to write checkpoint")
)

// ClientError records why one client was excluded from a round.
type ClientError struct {
	ClientID string
	Err      error
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("client %s: %s", e.ClientID, e.Err)
}

func (e *ClientError) Unwrap() error {
	return e.Err
}

func (e *ClientError) Is(target error) bool {
	return target == ErrClientTask
}
