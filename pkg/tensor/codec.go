package tensor

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	// Core deterministic options shorten floats; keep full float64 precision.
	encMode, err = cbor.EncOptions{
		Sort:          cbor.SortCoreDeterministic,
		ShortestFloat: cbor.ShortestFloatNone,
		NaNConvert:    cbor.NaNConvertNone,
		InfConvert:    cbor.InfConvertNone,
	}.EncMode()
	if err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(err)
	}
}

// Marshal encodes weights as deterministic CBOR.
func Marshal(w Weights) ([]byte, error) {
	data, err := encMode.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("failed to encode weights: %w", err)
	}

	return data, nil
}

func Unmarshal(data []byte) (Weights, error) {
	var w Weights
	if err := decMode.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("failed to decode weights: %w", err)
	}
	for k, t := range w {
		if _, err := New(t.Shape, t.Data); err != nil {
			return nil, fmt.Errorf("parameter %q: %w", k, err)
		}
	}

	return w, nil
}
