package api

import (
	"math"
	"net/http"
	"time"

	"github.com/absmach/flcore/coordinator"
	"github.com/absmach/flcore/pkg/api"
	"github.com/absmach/flcore/pkg/fl"
)

var (
	_ api.Response = (*stateRes)(nil)
	_ api.Response = (*clientsRes)(nil)
	_ api.Response = (*checkpointRes)(nil)
	_ api.Response = (*emptyRes)(nil)
)

type stateRes struct {
	Epoch                    uint64   `json:"epoch"`
	BestLoss                 *float64 `json:"best_loss,omitempty"`
	EpochsWithoutImprovement uint64   `json:"epochs_without_improvement"`
	Patience                 uint64   `json:"patience"`
	Phase                    string   `json:"phase"`
	Status                   string   `json:"status"`
}

func newStateRes(s coordinator.RoundState) stateRes {
	return stateRes{
		Epoch:                    s.Epoch,
		BestLoss:                 finite(s.BestLoss),
		EpochsWithoutImprovement: s.EpochsWithoutImprovement,
		Patience:                 s.Patience,
		Phase:                    s.Phase.String(),
		Status:                   s.String(),
	}
}

func (res stateRes) Code() int {
	return http.StatusOK
}

func (res stateRes) Headers() map[string]string {
	return map[string]string{}
}

func (res stateRes) Empty() bool {
	return false
}

type clientsRes struct {
	Total   int      `json:"total"`
	Clients []string `json:"clients"`
}

func (res clientsRes) Code() int {
	return http.StatusOK
}

func (res clientsRes) Headers() map[string]string {
	return map[string]string{}
}

func (res clientsRes) Empty() bool {
	return false
}

type checkpointRes struct {
	ID        string    `json:"id"`
	Epoch     uint64    `json:"epoch"`
	Loss      *float64  `json:"loss,omitempty"`
	Params    []string  `json:"params"`
	CreatedAt time.Time `json:"created_at"`
}

func newCheckpointRes(cp fl.Checkpoint) checkpointRes {
	return checkpointRes{
		ID:        cp.ID,
		Epoch:     cp.Epoch,
		Loss:      finite(cp.Loss),
		Params:    cp.Weights.Keys(),
		CreatedAt: cp.CreatedAt,
	}
}

func (res checkpointRes) Code() int {
	return http.StatusOK
}

func (res checkpointRes) Headers() map[string]string {
	return map[string]string{}
}

func (res checkpointRes) Empty() bool {
	return false
}

// emptyRes acknowledges commands that return nothing.
type emptyRes struct{}

func (res emptyRes) Code() int {
	return http.StatusNoContent
}

func (res emptyRes) Headers() map[string]string {
	return map[string]string{}
}

func (res emptyRes) Empty() bool {
	return true
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}

	return &v
}
