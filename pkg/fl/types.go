package fl

import (
	"context"
	"time"

	"github.com/absmach/flcore/pkg/tensor"
	"github.com/google/uuid"
)

// Dataset is opaque to the coordinator apart from its sample count.
type Dataset interface {
	Len() int
}

// Model is the capability contract shared by the global model and every client
// model. Implementations may be local or stubs for remote participants.
type Model interface {
	Weights(ctx context.Context) (tensor.Weights, error)
	SetWeights(ctx context.Context, w tensor.Weights) error
	Train(ctx context.Context, data Dataset, epochs uint) error
	Evaluate(ctx context.Context, data Dataset) (float64, error)
	Save(path string) error
	Load(path string) error
}

// Tunable is implemented by client models that accept a learning rate.
type Tunable interface {
	SetLearningRate(lr float64)
}

// ClientUpdate is produced once per client per round and is not modified afterwards.
type ClientUpdate struct {
	ClientID   string         `json:"client_id"`
	Weights    tensor.Weights `json:"weights"`
	NumSamples uint64         `json:"num_samples"`
	ReceivedAt time.Time      `json:"received_at"`
}

// Checkpoint is a durable snapshot of the global weights for one epoch.
type Checkpoint struct {
	ID        string         `json:"id"`
	Epoch     uint64         `json:"epoch"`
	Loss      float64        `json:"loss"`
	Weights   tensor.Weights `json:"weights"`
	CreatedAt time.Time      `json:"created_at"`
}

// Stamped returns a copy of cp that shares no tensor storage with it, with a
// generated ID and creation time where those are unset.
func (cp Checkpoint) Stamped() Checkpoint {
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	cp.Weights = cp.Weights.Clone()

	return cp
}

// CheckpointStore persists checkpoints keyed by epoch. Stored checkpoints are
// immutable: saving an epoch twice fails with ErrCheckpointExists.
type CheckpointStore interface {
	// Save stores the checkpoint and returns its ID. An empty ID is generated.
	Save(ctx context.Context, cp Checkpoint) (string, error)
	Load(ctx context.Context, epoch uint64) (Checkpoint, error)
	// Latest returns the most recently saved checkpoint.
	Latest(ctx context.Context) (Checkpoint, error)
	// Epochs lists stored epochs in ascending order.
	Epochs(ctx context.Context) ([]uint64, error)
}
