package linear

import (
	"fmt"
	"math/rand/v2"
)

// Dataset holds one feature row per sample in X and its target in Y.
type Dataset struct {
	X [][]float64
	Y []float64
}

func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}

	return len(d.Y)
}

func (d *Dataset) validate(features int) error {
	if len(d.X) != len(d.Y) {
		return fmt.Errorf("%w: %d rows for %d targets", ErrFeatureMismatch, len(d.X), len(d.Y))
	}
	for i, x := range d.X {
		if len(x) != features {
			return fmt.Errorf("%w: sample %d has %d features, want %d", ErrFeatureMismatch, i, len(x), features)
		}
	}

	return nil
}

// Generator draws samples from y = coef·x + bias + N(0, noise²) with x
// uniform in [-1, 1).
type Generator struct {
	Coef  []float64
	Bias  float64
	Noise float64
	rng   *rand.Rand
}

func NewGenerator(coef []float64, bias, noise float64, seed uint64) *Generator {
	return &Generator{
		Coef:  coef,
		Bias:  bias,
		Noise: noise,
		rng:   rand.New(rand.NewPCG(seed, ^seed)),
	}
}

func (g *Generator) Generate(n int) *Dataset {
	ds := &Dataset{
		X: make([][]float64, n),
		Y: make([]float64, n),
	}
	for i := range n {
		x := make([]float64, len(g.Coef))
		y := g.Bias
		for j, c := range g.Coef {
			x[j] = 2*g.rng.Float64() - 1
			y += c * x[j]
		}
		ds.X[i] = x
		ds.Y[i] = y + g.rng.NormFloat64()*g.Noise
	}

	return ds
}

// Split deals the samples of d round-robin into parts shards.
func Split(d *Dataset, parts int) []*Dataset {
	if parts <= 0 {
		return nil
	}
	shards := make([]*Dataset, parts)
	for i := range shards {
		shards[i] = &Dataset{}
	}
	for i := range d.Len() {
		s := shards[i%parts]
		s.X = append(s.X, d.X[i])
		s.Y = append(s.Y, d.Y[i])
	}

	return shards
}
