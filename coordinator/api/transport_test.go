package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/absmach/flcore/coordinator"
	"github.com/absmach/flcore/coordinator/api"
	"github.com/absmach/flcore/coordinator/mocks"
	"github.com/absmach/flcore/pkg/fl"
	"github.com/absmach/flcore/pkg/models/linear"
	"github.com/absmach/flcore/pkg/sdk"
	"github.com/absmach/flcore/pkg/storage"
	"github.com/absmach/flcore/pkg/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T) (*httptest.Server, *mocks.MockService, sdk.SDK) {
	t.Helper()
	svc := new(mocks.MockService)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ts := httptest.NewServer(api.MakeHandler(svc, logger, "instance-1"))
	t.Cleanup(ts.Close)

	return ts, svc, sdk.NewSDK(sdk.Config{CoordinatorURL: ts.URL})
}

func statusOf(t *testing.T, err error) int {
	t.Helper()
	var e *sdk.Error
	require.ErrorAs(t, err, &e)

	return e.StatusCode
}

func TestState(t *testing.T) {
	_, svc, client := newServer(t)
	fresh := coordinator.NewRoundState(3)
	stalled := coordinator.RoundState{Epoch: 7, BestLoss: 0.125, EpochsWithoutImprovement: 2, Patience: 3, Phase: coordinator.Stalled}
	svc.On("State", mock.Anything).Return(fresh).Once()
	svc.On("State", mock.Anything).Return(stalled).Once()

	s, err := client.State()
	require.NoError(t, err)
	assert.Nil(t, s.BestLoss)
	assert.Equal(t, "improving", s.Status)
	assert.Equal(t, uint64(3), s.Patience)

	s, err = client.State()
	require.NoError(t, err)
	require.NotNil(t, s.BestLoss)
	assert.InDelta(t, 0.125, *s.BestLoss, 0)
	assert.Equal(t, uint64(7), s.Epoch)
	assert.Equal(t, "stalled", s.Phase)
	assert.Equal(t, "stalled(2)", s.Status)
	svc.AssertExpectations(t)
}

func TestClients(t *testing.T) {
	_, svc, client := newServer(t)
	svc.On("Clients", mock.Anything).Return([]string{"brave_turing", "calm_hopper"})
	svc.On("DeregisterClient", mock.Anything, "brave_turing").Return(nil)
	svc.On("DeregisterClient", mock.Anything, "ghost").Return(fl.ErrUnknownClient)

	page, err := client.Clients()
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	assert.Equal(t, []string{"brave_turing", "calm_hopper"}, page.Clients)

	require.NoError(t, client.DeregisterClient("brave_turing"))
	err = client.DeregisterClient("ghost")
	assert.Equal(t, http.StatusNotFound, statusOf(t, err))
	assert.ErrorContains(t, err, fl.ErrUnknownClient.Error())
}

func TestDistribute(t *testing.T) {
	cases := []struct {
		desc   string
		err    error
		status int
	}{
		{desc: "all clients updated"},
		{desc: "busy client", err: errors.Join(&fl.ClientError{ClientID: "a", Err: coordinator.ErrClientBusy}), status: http.StatusConflict},
		{desc: "client failure", err: &fl.ClientError{ClientID: "a", Err: errors.New("read-only")}, status: http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			_, svc, client := newServer(t)
			svc.On("Distribute", mock.Anything).Return(tc.err)

			err := client.Distribute()
			if tc.err == nil {
				assert.NoError(t, err)

				return
			}
			assert.Equal(t, tc.status, statusOf(t, err))
		})
	}
}

func TestRestore(t *testing.T) {
	cp := fl.Checkpoint{
		ID:        "cp-4",
		Epoch:     4,
		Loss:      0.5,
		Weights:   tensor.Weights{"w": tensor.Vector(1, 2), "b": tensor.Vector(3)},
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	ts, svc, client := newServer(t)
	svc.On("RestoreCheckpoint", mock.Anything, uint64(4)).Return(cp, nil)
	svc.On("RestoreCheckpoint", mock.Anything, uint64(5)).Return(fl.Checkpoint{}, fl.ErrCheckpointNotFound)
	svc.On("RestoreCheckpoint", mock.Anything, uint64(6)).Return(fl.Checkpoint{}, fl.ErrWeightMismatch)
	latest := cp
	latest.Loss = math.NaN()
	svc.On("RestoreLatest", mock.Anything).Return(latest, nil)

	got, err := client.RestoreCheckpoint(4)
	require.NoError(t, err)
	assert.Equal(t, "cp-4", got.ID)
	assert.Equal(t, []string{"b", "w"}, got.Params)
	require.NotNil(t, got.Loss)
	assert.InDelta(t, 0.5, *got.Loss, 0)
	assert.True(t, cp.CreatedAt.Equal(got.CreatedAt))

	_, err = client.RestoreCheckpoint(5)
	assert.Equal(t, http.StatusNotFound, statusOf(t, err))
	_, err = client.RestoreCheckpoint(6)
	assert.Equal(t, http.StatusUnprocessableEntity, statusOf(t, err))

	got, err = client.RestoreLatest()
	require.NoError(t, err)
	assert.Nil(t, got.Loss)

	resp, err := http.Post(ts.URL+"/checkpoints/four/restore", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestResume(t *testing.T) {
	_, svc, client := newServer(t)
	svc.On("Resume", mock.Anything).Return(coordinator.RoundState{Epoch: 9, BestLoss: 0.2, Patience: 3}, nil).Once()
	svc.On("Resume", mock.Anything).Return(coordinator.NewRoundState(3), fl.ErrCheckpointNotFound).Once()

	s, err := client.Resume()
	require.NoError(t, err)
	assert.Equal(t, uint64(9), s.Epoch)

	_, err = client.Resume()
	assert.Equal(t, http.StatusNotFound, statusOf(t, err))
}

func TestModelTransfer(t *testing.T) {
	ts, svc, client := newServer(t)
	svc.On("ExportModel", mock.Anything, "model.cbor").Return(nil)
	svc.On("ImportModel", mock.Anything, "runs/seed.cbor").Return(nil)
	svc.On("ImportModel", mock.Anything, "other.cbor").Return(tensor.ErrShapeMismatch)

	require.NoError(t, client.ExportModel("model.cbor"))
	require.NoError(t, client.ImportModel("runs/seed.cbor"))

	err := client.ImportModel("other.cbor")
	assert.Equal(t, http.StatusInternalServerError, statusOf(t, err))

	err = client.ExportModel(" ")
	assert.Equal(t, http.StatusBadRequest, statusOf(t, err))

	resp, err := http.Post(ts.URL+"/model/export", "text/plain", strings.NewReader(`{"name":"x"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
	svc.AssertNotCalled(t, "ExportModel", mock.Anything, "x")
}

func TestModelTransferRejectsNamesOutsideModelDir(t *testing.T) {
	_, svc, client := newServer(t)

	cases := []struct {
		desc string
		name string
	}{
		{desc: "parent directory", name: "../x"},
		{desc: "nested parent directory", name: "runs/../../x"},
		{desc: "absolute path", name: "/etc/passwd"},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			err := client.ExportModel(tc.name)
			assert.Equal(t, http.StatusBadRequest, statusOf(t, err))
			err = client.ImportModel(tc.name)
			assert.Equal(t, http.StatusBadRequest, statusOf(t, err))
		})
	}
	svc.AssertNotCalled(t, "ExportModel", mock.Anything, mock.Anything)
	svc.AssertNotCalled(t, "ImportModel", mock.Anything, mock.Anything)
}

func TestModelTransferStaysInModelDir(t *testing.T) {
	root := t.TempDir()
	victim := filepath.Join(root, "victim.cfg")
	require.NoError(t, os.WriteFile(victim, []byte("keep me"), 0o600))

	cfg := coordinator.Config{
		AggregationMethod: fl.MethodAverage,
		LearningRate:      0.01,
		Patience:          1,
		ModelDir:          filepath.Join(root, "models"),
	}
	global, err := linear.New(2)
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := coordinator.New(cfg, global, storage.NewInMemoryStore(), nil, logger)
	require.NoError(t, err)
	ts := httptest.NewServer(api.MakeHandler(svc, logger, "instance-1"))
	t.Cleanup(ts.Close)
	client := sdk.NewSDK(sdk.Config{CoordinatorURL: ts.URL})

	err = client.ExportModel(victim)
	assert.Equal(t, http.StatusBadRequest, statusOf(t, err))
	err = client.ExportModel("../victim.cfg")
	assert.Equal(t, http.StatusBadRequest, statusOf(t, err))
	err = client.ImportModel(victim)
	assert.Equal(t, http.StatusBadRequest, statusOf(t, err))

	data, err := os.ReadFile(victim)
	require.NoError(t, err)
	assert.Equal(t, "keep me", string(data))

	require.NoError(t, client.ExportModel("model.cbor"))
	assert.FileExists(t, filepath.Join(root, "models", "model.cbor"))
	require.NoError(t, client.ImportModel("model.cbor"))
}

func TestHealth(t *testing.T) {
	ts, _, _ := newServer(t)

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, ts.URL+"/health", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "coordinator", body["service"])
	assert.Equal(t, "instance-1", body["instance_id"])
}
