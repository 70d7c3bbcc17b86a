package fl

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/absmach/flcore/pkg/tensor"
)

const (
	MethodAverage         = "average"
	MethodMedian          = "median"
	MethodWeightedAverage = "weighted_average"
)

// Aggregator reduces a non-empty set of client updates into one weight mapping
// with the same parameter keys.
type Aggregator interface {
	Aggregate(updates []ClientUpdate) (tensor.Weights, error)
}

// Methods lists the supported aggregation method names.
func Methods() []string {
	return []string{MethodAverage, MethodMedian, MethodWeightedAverage}
}

func NewAggregator(method string) (Aggregator, error) {
	switch method {
	case MethodAverage:
		return NewAverageAggregator(), nil
	case MethodMedian:
		return NewMedianAggregator(), nil
	case MethodWeightedAverage:
		return NewWeightedAverageAggregator(), nil
	default:
		return nil, fmt.Errorf("%w: unsupported aggregation method %q", ErrConfiguration, method)
	}
}

type averageAggregator struct{}

func NewAverageAggregator() Aggregator {
	return &averageAggregator{}
}

func (a *averageAggregator) Aggregate(updates []ClientUpdate) (tensor.Weights, error) {
	ordered, err := prepare(updates)
	if err != nil {
		return nil, err
	}

	n := float64(len(ordered))
	out := zerosLike(ordered[0].Weights)
	for _, u := range ordered {
		for k, t := range u.Weights {
			acc := out[k].Data
			for i, v := range t.Data {
				acc[i] += v
			}
		}
	}
	for _, t := range out {
		for i := range t.Data {
			t.Data[i] /= n
		}
	}

	return out, nil
}

// medianAggregator takes the coordinate-wise median, which tolerates a minority
// of outlier updates.
type medianAggregator struct{}

func NewMedianAggregator() Aggregator {
	return &medianAggregator{}
}

func (a *medianAggregator) Aggregate(updates []ClientUpdate) (tensor.Weights, error) {
	ordered, err := prepare(updates)
	if err != nil {
		return nil, err
	}

	out := zerosLike(ordered[0].Weights)
	column := make([]float64, len(ordered))
	for k, t := range out {
		for i := range t.Data {
			for j, u := range ordered {
				column[j] = u.Weights[k].Data[i]
			}
			t.Data[i] = median(column)
		}
	}

	return out, nil
}

func median(values []float64) float64 {
	slices.Sort(values)
	mid := len(values) / 2
	if len(values)%2 == 1 {
		return values[mid]
	}

	return (values[mid-1] + values[mid]) / 2
}

type weightedAverageAggregator struct{}

func NewWeightedAverageAggregator() Aggregator {
	return &weightedAverageAggregator{}
}

func (a *weightedAverageAggregator) Aggregate(updates []ClientUpdate) (tensor.Weights, error) {
	ordered, err := prepare(updates)
	if err != nil {
		return nil, err
	}

	var total uint64
	for _, u := range ordered {
		next := total + u.NumSamples
		if next < total {
			return nil, ErrOverflow
		}
		total = next
	}
	if total == 0 {
		return nil, ErrDivisionByZero
	}

	norm := float64(total)
	out := zerosLike(ordered[0].Weights)
	for _, u := range ordered {
		weight := float64(u.NumSamples)
		for k, t := range u.Weights {
			acc := out[k].Data
			for i, v := range t.Data {
				acc[i] += v * weight
			}
		}
	}
	for _, t := range out {
		for i := range t.Data {
			t.Data[i] /= norm
		}
	}

	return out, nil
}

// prepare validates the update set and returns it sorted by client ID so sums
// are computed in the same order whatever order the updates arrived in.
func prepare(updates []ClientUpdate) ([]ClientUpdate, error) {
	if len(updates) == 0 {
		return nil, ErrNoUpdates
	}

	ref := updates[0].Weights
	for _, u := range updates[1:] {
		if err := ref.Conforms(u.Weights); err != nil {
			return nil, fmt.Errorf("%w: client %s: %w", ErrWeightMismatch, u.ClientID, err)
		}
	}

	ordered := slices.Clone(updates)
	slices.SortStableFunc(ordered, func(a, b ClientUpdate) int {
		return cmp.Compare(a.ClientID, b.ClientID)
	})

	return ordered, nil
}

func zerosLike(w tensor.Weights) tensor.Weights {
	out := make(tensor.Weights, len(w))
	for k, t := range w {
		out[k] = tensor.Tensor{
			Shape: slices.Clone(t.Shape),
			Data:  make([]float64, len(t.Data)),
		}
	}

	return out
}
