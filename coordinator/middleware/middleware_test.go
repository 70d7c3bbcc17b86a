package middleware_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/absmach/flcore/coordinator"
	"github.com/absmach/flcore/coordinator/middleware"
	"github.com/absmach/flcore/coordinator/mocks"
	"github.com/absmach/flcore/pkg/fl"
	"github.com/go-kit/kit/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func decodeLogLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var lines []map[string]any
	dec := json.NewDecoder(buf)
	for dec.More() {
		var line map[string]any
		require.NoError(t, dec.Decode(&line))
		lines = append(lines, line)
	}

	return lines
}

func TestLoggingRunRound(t *testing.T) {
	loss := 0.25
	cases := []struct {
		desc  string
		out   coordinator.RoundOutcome
		err   error
		level string
		msg   string
	}{
		{
			desc:  "successful round",
			out:   coordinator.RoundOutcome{Epoch: 4, Applied: true, AggregatedFrom: 3, ValLoss: &loss, CheckpointID: "cp-4"},
			level: "INFO",
			msg:   "Run round completed successfully",
		},
		{
			desc:  "failed round",
			out:   coordinator.RoundOutcome{Epoch: 5},
			err:   fl.ErrNoUsableUpdates,
			level: "WARN",
			msg:   "Run round failed",
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, nil))
			svc := new(mocks.MockService)
			svc.On("RunRound", mock.Anything, mock.Anything).Return(tc.out, tc.err)

			out, err := middleware.Logging(logger, svc).RunRound(context.Background(), coordinator.RoundRequest{})
			assert.Equal(t, tc.out, out)
			assert.ErrorIs(t, err, tc.err)

			lines := decodeLogLines(t, &buf)
			require.Len(t, lines, 1)
			assert.Equal(t, tc.level, lines[0]["level"])
			assert.Equal(t, tc.msg, lines[0]["msg"])
			assert.Contains(t, lines[0], "duration")
			round, ok := lines[0]["round"].(map[string]any)
			require.True(t, ok)
			assert.EqualValues(t, tc.out.Epoch, round["epoch"])
			if tc.err != nil {
				assert.Contains(t, lines[0], "error")
			} else {
				assert.Equal(t, "cp-4", lines[0]["checkpoint_id"])
				assert.InDelta(t, loss, lines[0]["val_loss"], 0)
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestRunThroughMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	recorder := tracetest.NewSpanRecorder()
	tracer := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)).Tracer("test")
	counts, latencies := &calls{}, &calls{}

	svc := new(mocks.MockService)
	svc.On("RunRound", mock.Anything, mock.Anything).Return(coordinator.RoundOutcome{Epoch: 1, Applied: true}, nil).Twice()
	svc.On("RunRound", mock.Anything, mock.Anything).Return(coordinator.RoundOutcome{Epoch: 3, Applied: true, Stopped: true}, nil).Once()

	decorated := middleware.Logging(logger, svc)
	decorated = middleware.Tracing(tracer, decorated)
	decorated = middleware.Metrics(counter{calls: counts}, histogram{calls: latencies}, decorated)

	outcomes, err := coordinator.Run(context.Background(), decorated, coordinator.RoundRequest{}, 10)
	require.NoError(t, err)
	assert.Len(t, outcomes, 3)

	lines := decodeLogLines(t, &buf)
	require.Len(t, lines, 3)
	for _, line := range lines {
		assert.Equal(t, "Run round completed successfully", line["msg"])
	}
	assert.Len(t, recorder.Ended(), 3)
	assert.Equal(t, []string{"run-round", "run-round", "run-round"}, counts.methods)
	svc.AssertNumberOfCalls(t, "RunRound", 3)
}

func TestLoggingRegisterClient(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	svc := new(mocks.MockService)
	svc.On("RegisterClient", mock.Anything, "alpha", nil).Return(coordinator.ErrClientExists)

	err := middleware.Logging(logger, svc).RegisterClient(context.Background(), "alpha", nil)
	assert.ErrorIs(t, err, coordinator.ErrClientExists)

	lines := decodeLogLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "Register client failed", lines[0]["msg"])
	assert.Equal(t, "alpha", lines[0]["client_id"])
}

// calls records the method label and value of every metric update.
type calls struct {
	methods []string
	values  []float64
}

func (c *calls) record(labelValues []string, v float64) {
	c.methods = append(c.methods, labelValues[len(labelValues)-1])
	c.values = append(c.values, v)
}

type counter struct {
	*calls
	lvs []string
}

func (c counter) With(labelValues ...string) metrics.Counter {
	return counter{c.calls, append(c.lvs, labelValues...)}
}

func (c counter) Add(delta float64) { c.record(c.lvs, delta) }

type histogram struct {
	*calls
	lvs []string
}

func (h histogram) With(labelValues ...string) metrics.Histogram {
	return histogram{h.calls, append(h.lvs, labelValues...)}
}

func (h histogram) Observe(value float64) { h.record(h.lvs, value) }

func TestMetricsCountsEveryCall(t *testing.T) {
	counts, latencies := &calls{}, &calls{}
	svc := new(mocks.MockService)
	svc.On("Distribute", mock.Anything).Return(nil)
	svc.On("ExportModel", mock.Anything, "model.cbor").Return(errors.New("disk full"))
	svc.On("State", mock.Anything).Return(coordinator.NewRoundState(2))

	mm := middleware.Metrics(counter{calls: counts}, histogram{calls: latencies}, svc)
	ctx := context.Background()
	require.NoError(t, mm.Distribute(ctx))
	require.Error(t, mm.ExportModel(ctx, "model.cbor"))
	assert.Equal(t, uint64(2), mm.State(ctx).Patience)

	assert.Equal(t, []string{"distribute", "export-model", "state"}, counts.methods)
	assert.Equal(t, []float64{1, 1, 1}, counts.values)
	assert.Equal(t, counts.methods, latencies.methods)
	for _, v := range latencies.values {
		assert.GreaterOrEqual(t, v, 0.0)
	}
	svc.AssertExpectations(t)
}

func TestTracingRecordsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tracer := tp.Tracer("test")

	svc := new(mocks.MockService)
	svc.On("RunRound", mock.Anything, mock.Anything).Return(coordinator.RoundOutcome{Epoch: 1, AggregatedFrom: 2}, nil)
	svc.On("RestoreCheckpoint", mock.Anything, uint64(9)).Return(fl.Checkpoint{}, fl.ErrCheckpointNotFound)

	tm := middleware.Tracing(tracer, svc)
	ctx := context.Background()
	_, err := tm.RunRound(ctx, coordinator.RoundRequest{Epochs: 1})
	require.NoError(t, err)
	_, err = tm.RestoreCheckpoint(ctx, 9)
	require.ErrorIs(t, err, fl.ErrCheckpointNotFound)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "run-round", spans[0].Name())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Equal(t, "restore-checkpoint", spans[1].Name())
	assert.Equal(t, codes.Error, spans[1].Status().Code)
}
