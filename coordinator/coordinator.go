// Package coordinator drives federated training rounds over a registry of
// client models and owns the global model for the lifetime of a run.
package coordinator

import (
	"context"
	"errors"

	"github.com/absmach/flcore/pkg/fl"
)

var (
	ErrTrainingStopped  = errors.New("training has stopped; no further rounds are scheduled")
	ErrClientExists     = errors.New("client already registered")
	ErrClientBusy       = errors.New("client is still running an abandoned task")
	ErrNoTrainingData   = errors.New("no training data for client")
	ErrInvalidRequest   = errors.New("invalid round request")
	ErrInvalidModelName = errors.New("model name must be a local file name")
)

type RoundRequest struct {
	// TrainingData selects the participating clients by ID.
	TrainingData map[string]fl.Dataset
	Epochs       uint
	// Validation is optional; without it the round does not affect early stopping.
	Validation fl.Dataset
}

type RoundOutcome struct {
	Epoch uint64
	// Applied reports whether the aggregated weights reached the global model.
	Applied        bool
	AggregatedFrom int
	ValLoss        *float64
	Phase          Phase
	Stopped        bool
	CheckpointID   string
	Failed         []*fl.ClientError
}

type Service interface {
	// Distribute copies the global weights by value into every registered client.
	Distribute(ctx context.Context) error

	// RunRound executes one distribute, train, aggregate and validate cycle.
	// On error the global model keeps its pre-round weights unless the returned
	// outcome reports Applied.
	RunRound(ctx context.Context, req RoundRequest) (RoundOutcome, error)

	State(ctx context.Context) RoundState

	RegisterClient(ctx context.Context, id string, model fl.Model) error
	DeregisterClient(ctx context.Context, id string) error
	Clients(ctx context.Context) []string

	RestoreCheckpoint(ctx context.Context, epoch uint64) (fl.Checkpoint, error)
	RestoreLatest(ctx context.Context) (fl.Checkpoint, error)
	// Resume restores the latest checkpoint and continues early stopping from
	// its epoch and loss.
	Resume(ctx context.Context) (RoundState, error)

	// ExportModel saves the global model under name inside the model directory.
	ExportModel(ctx context.Context, name string) error
	ImportModel(ctx context.Context, name string) error
}
