package middleware

import (
	"context"

	"github.com/absmach/flcore/coordinator"
	"github.com/absmach/flcore/pkg/fl"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var _ coordinator.Service = (*tracing)(nil)

type tracing struct {
	tracer trace.Tracer
	svc    coordinator.Service
}

func Tracing(tracer trace.Tracer, svc coordinator.Service) coordinator.Service {
	return &tracing{tracer, svc}
}

func end(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (tm *tracing) Distribute(ctx context.Context) (err error) {
	ctx, span := tm.tracer.Start(ctx, "distribute")
	defer func() { end(span, err) }()

	return tm.svc.Distribute(ctx)
}

func (tm *tracing) RunRound(ctx context.Context, req coordinator.RoundRequest) (out coordinator.RoundOutcome, err error) {
	ctx, span := tm.tracer.Start(ctx, "run-round", trace.WithAttributes(
		attribute.Int("clients", len(req.TrainingData)),
		attribute.Int("epochs", int(req.Epochs)),
		attribute.Bool("validation", req.Validation != nil),
	))
	defer func() {
		span.SetAttributes(
			attribute.Int64("epoch", int64(out.Epoch)),
			attribute.Int("aggregated_from", out.AggregatedFrom),
			attribute.Int("failed", len(out.Failed)),
			attribute.String("phase", out.Phase.String()),
		)
		if out.ValLoss != nil {
			span.SetAttributes(attribute.Float64("val_loss", *out.ValLoss))
		}
		end(span, err)
	}()

	return tm.svc.RunRound(ctx, req)
}

func (tm *tracing) State(ctx context.Context) coordinator.RoundState {
	ctx, span := tm.tracer.Start(ctx, "state")
	defer span.End()

	return tm.svc.State(ctx)
}

func (tm *tracing) RegisterClient(ctx context.Context, id string, model fl.Model) (err error) {
	ctx, span := tm.tracer.Start(ctx, "register-client", trace.WithAttributes(
		attribute.String("client_id", id),
	))
	defer func() { end(span, err) }()

	return tm.svc.RegisterClient(ctx, id, model)
}

func (tm *tracing) DeregisterClient(ctx context.Context, id string) (err error) {
	ctx, span := tm.tracer.Start(ctx, "deregister-client", trace.WithAttributes(
		attribute.String("client_id", id),
	))
	defer func() { end(span, err) }()

	return tm.svc.DeregisterClient(ctx, id)
}

func (tm *tracing) Clients(ctx context.Context) []string {
	ctx, span := tm.tracer.Start(ctx, "clients")
	defer span.End()

	return tm.svc.Clients(ctx)
}

func (tm *tracing) RestoreCheckpoint(ctx context.Context, epoch uint64) (cp fl.Checkpoint, err error) {
	ctx, span := tm.tracer.Start(ctx, "restore-checkpoint", trace.WithAttributes(
		attribute.Int64("epoch", int64(epoch)),
	))
	defer func() { end(span, err) }()

	return tm.svc.RestoreCheckpoint(ctx, epoch)
}

func (tm *tracing) RestoreLatest(ctx context.Context) (cp fl.Checkpoint, err error) {
	ctx, span := tm.tracer.Start(ctx, "restore-latest")
	defer func() { end(span, err) }()

	return tm.svc.RestoreLatest(ctx)
}

func (tm *tracing) Resume(ctx context.Context) (state coordinator.RoundState, err error) {
	ctx, span := tm.tracer.Start(ctx, "resume")
	defer func() { end(span, err) }()

	return tm.svc.Resume(ctx)
}

func (tm *tracing) ExportModel(ctx context.Context, name string) (err error) {
	ctx, span := tm.tracer.Start(ctx, "export-model", trace.WithAttributes(
		attribute.String("name", name),
	))
	defer func() { end(span, err) }()

	return tm.svc.ExportModel(ctx, name)
}

func (tm *tracing) ImportModel(ctx context.Context, name string) (err error) {
	ctx, span := tm.tracer.Start(ctx, "import-model", trace.WithAttributes(
		attribute.String("name", name),
	))
	defer func() { end(span, err) }()

	return tm.svc.ImportModel(ctx, name)
}
