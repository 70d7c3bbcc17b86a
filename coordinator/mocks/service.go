package mocks

import (
	"context"

	"github.com/absmach/flcore/coordinator"
	"github.com/absmach/flcore/pkg/fl"
	"github.com/stretchr/testify/mock"
)

var _ coordinator.Service = (*MockService)(nil)

// MockService is a mock implementation of the coordinator.Service interface.
type MockService struct {
	mock.Mock
}

func (m *MockService) Distribute(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockService) RunRound(ctx context.Context, req coordinator.RoundRequest) (coordinator.RoundOutcome, error) {
	args := m.Called(ctx, req)

	return args.Get(0).(coordinator.RoundOutcome), args.Error(1)
}

func (m *MockService) State(ctx context.Context) coordinator.RoundState {
	args := m.Called(ctx)

	return args.Get(0).(coordinator.RoundState)
}

func (m *MockService) RegisterClient(ctx context.Context, id string, model fl.Model) error {
	args := m.Called(ctx, id, model)

	return args.Error(0)
}

func (m *MockService) DeregisterClient(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

func (m *MockService) Clients(ctx context.Context) []string {
	args := m.Called(ctx)
	ids, _ := args.Get(0).([]string)

	return ids
}

func (m *MockService) RestoreCheckpoint(ctx context.Context, epoch uint64) (fl.Checkpoint, error) {
	args := m.Called(ctx, epoch)

	return args.Get(0).(fl.Checkpoint), args.Error(1)
}

func (m *MockService) RestoreLatest(ctx context.Context) (fl.Checkpoint, error) {
	args := m.Called(ctx)

	return args.Get(0).(fl.Checkpoint), args.Error(1)
}

func (m *MockService) Resume(ctx context.Context) (coordinator.RoundState, error) {
	args := m.Called(ctx)

	return args.Get(0).(coordinator.RoundState), args.Error(1)
}

func (m *MockService) ExportModel(ctx context.Context, name string) error {
	args := m.Called(ctx, name)

	return args.Error(0)
}

func (m *MockService) ImportModel(ctx context.Context, name string) error {
	args := m.Called(ctx, name)

	return args.Error(0)
}
