package middleware

import (
	"context"
	"time"

	"github.com/absmach/flcore/coordinator"
	"github.com/absmach/flcore/pkg/fl"
	"github.com/go-kit/kit/metrics"
)

var _ coordinator.Service = (*metricsMiddleware)(nil)

type metricsMiddleware struct {
	counter metrics.Counter
	latency metrics.Histogram
	svc     coordinator.Service
}

func Metrics(counter metrics.Counter, latency metrics.Histogram, svc coordinator.Service) coordinator.Service {
	return &metricsMiddleware{
		counter: counter,
		latency: latency,
		svc:     svc,
	}
}

func (mm *metricsMiddleware) observe(method string, begin time.Time) {
	mm.counter.With("method", method).Add(1)
	mm.latency.With("method", method).Observe(time.Since(begin).Seconds())
}

func (mm *metricsMiddleware) Distribute(ctx context.Context) error {
	defer mm.observe("distribute", time.Now())

	return mm.svc.Distribute(ctx)
}

func (mm *metricsMiddleware) RunRound(ctx context.Context, req coordinator.RoundRequest) (coordinator.RoundOutcome, error) {
	defer mm.observe("run-round", time.Now())

	return mm.svc.RunRound(ctx, req)
}

func (mm *metricsMiddleware) State(ctx context.Context) coordinator.RoundState {
	defer mm.observe("state", time.Now())

	return mm.svc.State(ctx)
}

func (mm *metricsMiddleware) RegisterClient(ctx context.Context, id string, model fl.Model) error {
	defer mm.observe("register-client", time.Now())

	return mm.svc.RegisterClient(ctx, id, model)
}

func (mm *metricsMiddleware) DeregisterClient(ctx context.Context, id string) error {
	defer mm.observe("deregister-client", time.Now())

	return mm.svc.DeregisterClient(ctx, id)
}

func (mm *metricsMiddleware) Clients(ctx context.Context) []string {
	defer mm.observe("clients", time.Now())

	return mm.svc.Clients(ctx)
}

func (mm *metricsMiddleware) RestoreCheckpoint(ctx context.Context, epoch uint64) (fl.Checkpoint, error) {
	defer mm.observe("restore-checkpoint", time.Now())

	return mm.svc.RestoreCheckpoint(ctx, epoch)
}

func (mm *metricsMiddleware) RestoreLatest(ctx context.Context) (fl.Checkpoint, error) {
	defer mm.observe("restore-latest", time.Now())

	return mm.svc.RestoreLatest(ctx)
}

func (mm *metricsMiddleware) Resume(ctx context.Context) (coordinator.RoundState, error) {
	defer mm.observe("resume", time.Now())

	return mm.svc.Resume(ctx)
}

func (mm *metricsMiddleware) ExportModel(ctx context.Context, name string) error {
	defer mm.observe("export-model", time.Now())

	return mm.svc.ExportModel(ctx, name)
}

func (mm *metricsMiddleware) ImportModel(ctx context.Context, name string) error {
	defer mm.observe("import-model", time.Now())

	return mm.svc.ImportModel(ctx, name)
}
