// Package linear provides a linear regression model trained with mini-batch
// gradient descent on mean squared error. It implements fl.Model and is used
// to run simulated federations.
package linear

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"sync"

	"github.com/absmach/flcore/pkg/fl"
	"github.com/absmach/flcore/pkg/tensor"
)

const (
	KeyWeights = "w"
	KeyBias    = "b"

	defaultLearningRate = 0.01
	defaultBatchSize    = 16
)

var (
	ErrUnsupportedDataset = errors.New("dataset is not a *linear.Dataset")
	ErrFeatureMismatch    = errors.New("sample feature count does not match the model")
	ErrEmptyDataset       = errors.New("dataset has no samples")
)

var (
	_ fl.Model   = (*Model)(nil)
	_ fl.Tunable = (*Model)(nil)
)

type Model struct {
	mu        sync.Mutex
	features  int
	weights   tensor.Weights
	lr        float64
	batchSize int
	rng       *rand.Rand
}

type Option func(*Model)

func WithLearningRate(lr float64) Option {
	return func(m *Model) {
		m.lr = lr
	}
}

func WithBatchSize(n int) Option {
	return func(m *Model) {
		if n > 0 {
			m.batchSize = n
		}
	}
}

// WithSeed makes batch shuffling reproducible.
func WithSeed(seed uint64) Option {
	return func(m *Model) {
		m.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// New returns a zero-initialised model over the given number of features.
func New(features int, opts ...Option) (*Model, error) {
	if features <= 0 {
		return nil, fmt.Errorf("%w: features must be positive, got %d", tensor.ErrInvalidShape, features)
	}
	w, err := tensor.Zeros([]int{features})
	if err != nil {
		return nil, err
	}

	m := &Model{
		features:  features,
		weights:   tensor.Weights{KeyWeights: w, KeyBias: tensor.Vector(0)},
		lr:        defaultLearningRate,
		batchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.rng == nil {
		m.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	return m, nil
}

func (m *Model) Weights(_ context.Context) (tensor.Weights, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.weights.Clone(), nil
}

// SetWeights takes ownership of w after checking it against the model layout.
func (m *Model) SetWeights(_ context.Context, w tensor.Weights) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.weights.Conforms(w); err != nil {
		return err
	}
	m.weights = w

	return nil
}

func (m *Model) SetLearningRate(lr float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lr = lr
}

func (m *Model) LearningRate() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.lr
}

// Train runs the given number of passes over data. Cancellation is checked
// between mini-batches.
func (m *Model) Train(ctx context.Context, data fl.Dataset, epochs uint) error {
	ds, err := m.dataset(data)
	if err != nil {
		return err
	}
	if ds.Len() == 0 {
		return ErrEmptyDataset
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	w := m.weights[KeyWeights].Data
	b := m.weights[KeyBias].Data
	order := make([]int, ds.Len())
	for i := range order {
		order[i] = i
	}
	grad := make([]float64, m.features)

	for range epochs {
		m.rng.Shuffle(len(order), func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})
		for start := 0; start < len(order); start += m.batchSize {
			if err := ctx.Err(); err != nil {
				return err
			}
			end := min(start+m.batchSize, len(order))
			clear(grad)
			var gradBias float64
			for _, idx := range order[start:end] {
				x := ds.X[idx]
				residual := predict(w, b[0], x) - ds.Y[idx]
				for j, v := range x {
					grad[j] += residual * v
				}
				gradBias += residual
			}
			scale := 2 * m.lr / float64(end-start)
			for j := range w {
				w[j] -= scale * grad[j]
			}
			b[0] -= scale * gradBias
		}
	}

	return nil
}

// Evaluate returns the mean squared error over data.
func (m *Model) Evaluate(ctx context.Context, data fl.Dataset) (float64, error) {
	ds, err := m.dataset(data)
	if err != nil {
		return 0, err
	}
	if ds.Len() == 0 {
		return 0, ErrEmptyDataset
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	w := m.weights[KeyWeights].Data
	b := m.weights[KeyBias].Data[0]
	var sum float64
	for i, x := range ds.X {
		d := predict(w, b, x) - ds.Y[i]
		sum += d * d
	}

	return sum / float64(ds.Len()), nil
}

// Save writes the weights to path as CBOR.
func (m *Model) Save(path string) error {
	m.mu.Lock()
	data, err := tensor.Marshal(m.weights)
	m.mu.Unlock()
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write model %s: %w", path, err)
	}

	return nil
}

// Load replaces the weights with those stored at path by Save.
func (m *Model) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read model %s: %w", path, err)
	}
	w, err := tensor.Unmarshal(data)
	if err != nil {
		return err
	}

	return m.SetWeights(context.Background(), w)
}

func (m *Model) dataset(data fl.Dataset) (*Dataset, error) {
	ds, ok := data.(*Dataset)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedDataset, data)
	}
	if ds == nil {
		return nil, ErrEmptyDataset
	}
	if err := ds.validate(m.features); err != nil {
		return nil, err
	}

	return ds, nil
}

func predict(w []float64, b float64, x []float64) float64 {
	y := b
	for j, v := range x {
		y += w[j] * v
	}

	return y
}
