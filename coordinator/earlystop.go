package coordinator

import (
	"fmt"
	"math"
)

type Phase uint8

const (
	Improving Phase = iota
	Stalled
	Stopped
)

func (p Phase) String() string {
	switch p {
	case Improving:
		return "improving"
	case Stalled:
		return "stalled"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("phase(%d)", uint8(p))
	}
}

// RoundState is the early-stopping record kept across rounds. Epoch counts
// rounds whose aggregation was applied to the global model.
type RoundState struct {
	Epoch                    uint64
	BestLoss                 float64
	EpochsWithoutImprovement uint64
	Patience                 uint64
	Phase                    Phase
}

func NewRoundState(patience uint64) RoundState {
	return RoundState{
		BestLoss: math.Inf(1),
		Patience: patience,
		Phase:    Improving,
	}
}

// Observe applies one validation loss and reports whether it strictly improved
// on the best loss so far. A stopped state never changes.
func (s RoundState) Observe(loss float64) (RoundState, bool) {
	if s.Phase == Stopped {
		return s, false
	}

	// NaN compares false, so it always counts as a stall.
	if loss < s.BestLoss {
		s.BestLoss = loss
		s.EpochsWithoutImprovement = 0
		s.Phase = Improving

		return s, true
	}

	s.EpochsWithoutImprovement++
	s.Phase = Stalled
	if s.EpochsWithoutImprovement >= s.Patience {
		s.Phase = Stopped
	}

	return s, false
}

func (s RoundState) String() string {
	if s.Phase == Stalled {
		return fmt.Sprintf("stalled(%d)", s.EpochsWithoutImprovement)
	}

	return s.Phase.String()
}
