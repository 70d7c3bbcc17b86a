package fl

import (
	crand "crypto/rand"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"

	"github.com/absmach/flcore/pkg/tensor"
)

// SecureAggregator perturbs client updates with zero-mean Gaussian noise before
// they are combined.
type SecureAggregator struct {
	sigma float64
	mu    sync.Mutex
	rng   *rand.Rand
}

// NewSecureAggregator returns an aggregator drawing noise with standard deviation
// sigma. A nil source seeds a ChaCha8 generator from crypto/rand.
func NewSecureAggregator(sigma float64, src rand.Source) (*SecureAggregator, error) {
	if err := ValidateSigma(sigma); err != nil {
		return nil, err
	}
	if src == nil {
		var seed [32]byte
		if _, err := crand.Read(seed[:]); err != nil {
			return nil, fmt.Errorf("failed to seed noise generator: %w", err)
		}
		src = rand.NewChaCha8(seed)
	}

	return &SecureAggregator{
		sigma: sigma,
		rng:   rand.New(src),
	}, nil
}

func ValidateSigma(sigma float64) error {
	if math.IsNaN(sigma) || math.IsInf(sigma, 0) || sigma < 0 {
		return fmt.Errorf("%w: noise sigma must be a finite non-negative number, got %v", ErrConfiguration, sigma)
	}

	return nil
}

func (s *SecureAggregator) Sigma() float64 {
	return s.sigma
}

// ApplyNoise returns new updates whose tensors carry independent noise per
// element. The input updates are left untouched. With sigma zero the input is
// returned as is.
func (s *SecureAggregator) ApplyNoise(updates []ClientUpdate) []ClientUpdate {
	out := make([]ClientUpdate, len(updates))
	if s.sigma == 0 {
		copy(out, updates)

		return out
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, u := range updates {
		noisy := make(tensor.Weights, len(u.Weights))
		// Sorted keys keep draws reproducible for a seeded source.
		for _, k := range u.Weights.Keys() {
			t := u.Weights[k].Clone()
			for j := range t.Data {
				t.Data[j] += s.rng.NormFloat64() * s.sigma
			}
			noisy[k] = t
		}
		u.Weights = noisy
		out[i] = u
	}

	return out
}
