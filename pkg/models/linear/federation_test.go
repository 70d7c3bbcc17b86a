package linear_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/absmach/flcore/coordinator"
	"github.com/absmach/flcore/pkg/fl"
	"github.com/absmach/flcore/pkg/models/linear"
	"github.com/absmach/flcore/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFederatedTrainingConverges(t *testing.T) {
	ctx := context.Background()
	gen := linear.NewGenerator([]float64{1.5, -0.5, 2}, -0.2, 0.05, 11)
	shards := linear.Split(gen.Generate(800), 4)
	val := gen.Generate(200)

	for _, method := range fl.Methods() {
		t.Run(method, func(t *testing.T) {
			global, err := linear.New(3)
			require.NoError(t, err)
			cfg := coordinator.Config{
				AggregationMethod: method,
				LearningRate:      0.05,
				Patience:          5,
			}
			svc, err := coordinator.New(cfg, global, storage.NewInMemoryStore(), nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
			require.NoError(t, err)

			req := coordinator.RoundRequest{TrainingData: map[string]fl.Dataset{}, Epochs: 2, Validation: val}
			for i, shard := range shards {
				id := fmt.Sprintf("client-%d", i)
				m, err := linear.New(3, linear.WithSeed(uint64(i)))
				require.NoError(t, err)
				require.NoError(t, svc.RegisterClient(ctx, id, m))
				assert.InDelta(t, 0.05, m.LearningRate(), 0)
				req.TrainingData[id] = shard
			}

			initial, err := global.Evaluate(ctx, val)
			require.NoError(t, err)

			outcomes, err := coordinator.Run(ctx, svc, req, 40)
			require.NoError(t, err)
			require.NotEmpty(t, outcomes)

			final, err := global.Evaluate(ctx, val)
			require.NoError(t, err)
			assert.Less(t, final, initial/10)
			assert.Less(t, svc.State(ctx).BestLoss, 0.05)
		})
	}
}
