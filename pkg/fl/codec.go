package fl

import (
	"fmt"
	"time"

	"github.com/absmach/flcore/pkg/tensor"
	"github.com/fxamacker/cbor/v2"
)

var (
	checkpointEnc cbor.EncMode
	checkpointDec cbor.DecMode
)

func init() {
	var err error
	checkpointEnc, err = cbor.EncOptions{
		Sort:          cbor.SortCoreDeterministic,
		ShortestFloat: cbor.ShortestFloatNone,
		NaNConvert:    cbor.NaNConvertNone,
		InfConvert:    cbor.InfConvertNone,
		Time:          cbor.TimeRFC3339Nano,
	}.EncMode()
	if err != nil {
		panic(err)
	}
	checkpointDec, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(err)
	}
}

type checkpointRecord struct {
	ID        string         `cbor:"1,keyasint"`
	Epoch     uint64         `cbor:"2,keyasint"`
	Loss      float64        `cbor:"3,keyasint"`
	Weights   tensor.Weights `cbor:"4,keyasint"`
	CreatedAt time.Time      `cbor:"5,keyasint"`
}

// MarshalCheckpoint encodes a checkpoint for key-value and file backends.
func MarshalCheckpoint(cp Checkpoint) ([]byte, error) {
	data, err := checkpointEnc.Marshal(checkpointRecord(cp))
	if err != nil {
		return nil, fmt.Errorf("failed to encode checkpoint %d: %w", cp.Epoch, err)
	}

	return data, nil
}

func UnmarshalCheckpoint(data []byte) (Checkpoint, error) {
	var rec checkpointRecord
	if err := checkpointDec.Unmarshal(data, &rec); err != nil {
		return Checkpoint{}, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	for k, t := range rec.Weights {
		if _, err := tensor.New(t.Shape, t.Data); err != nil {
			return Checkpoint{}, fmt.Errorf("checkpoint %d parameter %q: %w", rec.Epoch, k, err)
		}
	}

	return Checkpoint(rec), nil
}
