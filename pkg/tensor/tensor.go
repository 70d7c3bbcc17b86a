// Package tensor holds the numeric containers exchanged between the coordinator
// and client models.
package tensor

import (
	"errors"
	"fmt"
	"maps"
	"slices"
)

var (
	ErrInvalidShape  = errors.New("invalid tensor shape")
	ErrShapeMismatch = errors.New("tensor shape mismatch")
	ErrKeyMismatch   = errors.New("weight key mismatch")
)

// Tensor is a dense multi-dimensional array stored in row-major order.
type Tensor struct {
	Shape []int     `json:"shape" cbor:"1,keyasint"`
	Data  []float64 `json:"data"  cbor:"2,keyasint"`
}

// Weights maps parameter names to tensors.
type Weights map[string]Tensor

func New(shape []int, data []float64) (Tensor, error) {
	n, err := size(shape)
	if err != nil {
		return Tensor{}, err
	}
	if n != len(data) {
		return Tensor{}, fmt.Errorf("%w: shape %v holds %d values, got %d", ErrInvalidShape, shape, n, len(data))
	}

	return Tensor{Shape: slices.Clone(shape), Data: slices.Clone(data)}, nil
}

func Zeros(shape []int) (Tensor, error) {
	n, err := size(shape)
	if err != nil {
		return Tensor{}, err
	}

	return Tensor{Shape: slices.Clone(shape), Data: make([]float64, n)}, nil
}

// Vector is shorthand for a one-dimensional tensor.
func Vector(values ...float64) Tensor {
	return Tensor{Shape: []int{len(values)}, Data: slices.Clone(values)}
}

func (t Tensor) Len() int {
	return len(t.Data)
}

func (t Tensor) Clone() Tensor {
	return Tensor{Shape: slices.Clone(t.Shape), Data: slices.Clone(t.Data)}
}

func (t Tensor) SameShape(o Tensor) bool {
	return slices.Equal(t.Shape, o.Shape) && len(t.Data) == len(o.Data)
}

// Equal reports exact equality of shape and values.
func (t Tensor) Equal(o Tensor) bool {
	return t.SameShape(o) && slices.Equal(t.Data, o.Data)
}

func (t Tensor) Add(o Tensor) (Tensor, error) {
	if !t.SameShape(o) {
		return Tensor{}, fmt.Errorf("%w: %v vs %v", ErrShapeMismatch, t.Shape, o.Shape)
	}
	out := t.Clone()
	for i, v := range o.Data {
		out.Data[i] += v
	}

	return out, nil
}

func (t Tensor) Scale(f float64) Tensor {
	out := t.Clone()
	for i := range out.Data {
		out.Data[i] *= f
	}

	return out
}

func size(shape []int) (int, error) {
	n := 1
	for _, d := range shape {
		if d < 0 {
			return 0, fmt.Errorf("%w: negative dimension in %v", ErrInvalidShape, shape)
		}
		n *= d
	}

	return n, nil
}

// Clone deep-copies every tensor so the result shares no storage with w.
func (w Weights) Clone() Weights {
	if w == nil {
		return nil
	}
	out := make(Weights, len(w))
	for k, t := range w {
		out[k] = t.Clone()
	}

	return out
}

// Keys returns the parameter names in sorted order.
func (w Weights) Keys() []string {
	return slices.Sorted(maps.Keys(w))
}

// Equal reports whether both mappings hold the same keys with exactly equal tensors.
func (w Weights) Equal(o Weights) bool {
	if len(w) != len(o) {
		return false
	}
	for k, t := range w {
		ot, ok := o[k]
		if !ok || !t.Equal(ot) {
			return false
		}
	}

	return true
}

// Conforms checks that o has exactly the keys of w and the same shape per key.
func (w Weights) Conforms(o Weights) error {
	if len(w) != len(o) {
		return fmt.Errorf("%w: expected %d parameters, got %d", ErrKeyMismatch, len(w), len(o))
	}
	for k, t := range w {
		ot, ok := o[k]
		if !ok {
			return fmt.Errorf("%w: missing parameter %q", ErrKeyMismatch, k)
		}
		if !t.SameShape(ot) {
			return fmt.Errorf("%w: parameter %q has shape %v, expected %v", ErrShapeMismatch, k, ot.Shape, t.Shape)
		}
	}

	return nil
}
