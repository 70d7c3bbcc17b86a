package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/absmach/flcore/coordinator"
	"github.com/absmach/flcore/pkg/fl"
)

var _ coordinator.Service = (*loggingMiddleware)(nil)

type loggingMiddleware struct {
	logger *slog.Logger
	svc    coordinator.Service
}

func Logging(logger *slog.Logger, svc coordinator.Service) coordinator.Service {
	return &loggingMiddleware{
		logger: logger,
		svc:    svc,
	}
}

func (lm *loggingMiddleware) Distribute(ctx context.Context) (err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Distribute weights failed", args...)

			return
		}
		lm.logger.Info("Distribute weights completed successfully", args...)
	}(time.Now())

	return lm.svc.Distribute(ctx)
}

func (lm *loggingMiddleware) RunRound(ctx context.Context, req coordinator.RoundRequest) (out coordinator.RoundOutcome, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("round",
				slog.Uint64("epoch", out.Epoch),
				slog.Int("clients", len(req.TrainingData)),
				slog.Int("aggregated_from", out.AggregatedFrom),
				slog.Int("failed", len(out.Failed)),
				slog.String("phase", out.Phase.String()),
			),
		}
		if out.ValLoss != nil {
			args = append(args, slog.Float64("val_loss", *out.ValLoss))
		}
		if out.CheckpointID != "" {
			args = append(args, slog.String("checkpoint_id", out.CheckpointID))
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Run round failed", args...)

			return
		}
		lm.logger.Info("Run round completed successfully", args...)
	}(time.Now())

	return lm.svc.RunRound(ctx, req)
}

func (lm *loggingMiddleware) State(ctx context.Context) coordinator.RoundState {
	return lm.svc.State(ctx)
}

func (lm *loggingMiddleware) RegisterClient(ctx context.Context, id string, model fl.Model) (err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.String("client_id", id),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Register client failed", args...)

			return
		}
		lm.logger.Info("Register client completed successfully", args...)
	}(time.Now())

	return lm.svc.RegisterClient(ctx, id, model)
}

func (lm *loggingMiddleware) DeregisterClient(ctx context.Context, id string) (err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.String("client_id", id),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Deregister client failed", args...)

			return
		}
		lm.logger.Info("Deregister client completed successfully", args...)
	}(time.Now())

	return lm.svc.DeregisterClient(ctx, id)
}

func (lm *loggingMiddleware) Clients(ctx context.Context) []string {
	return lm.svc.Clients(ctx)
}

func (lm *loggingMiddleware) RestoreCheckpoint(ctx context.Context, epoch uint64) (cp fl.Checkpoint, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Uint64("epoch", epoch),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Restore checkpoint failed", args...)

			return
		}
		args = append(args, slog.String("checkpoint_id", cp.ID))
		lm.logger.Info("Restore checkpoint completed successfully", args...)
	}(time.Now())

	return lm.svc.RestoreCheckpoint(ctx, epoch)
}

func (lm *loggingMiddleware) RestoreLatest(ctx context.Context) (cp fl.Checkpoint, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Restore latest checkpoint failed", args...)

			return
		}
		args = append(args, slog.Uint64("epoch", cp.Epoch), slog.String("checkpoint_id", cp.ID))
		lm.logger.Info("Restore latest checkpoint completed successfully", args...)
	}(time.Now())

	return lm.svc.RestoreLatest(ctx)
}

func (lm *loggingMiddleware) Resume(ctx context.Context) (state coordinator.RoundState, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Uint64("epoch", state.Epoch),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Resume training failed", args...)

			return
		}
		args = append(args, slog.Float64("best_loss", state.BestLoss))
		lm.logger.Info("Resume training completed successfully", args...)
	}(time.Now())

	return lm.svc.Resume(ctx)
}

func (lm *loggingMiddleware) ExportModel(ctx context.Context, name string) (err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.String("name", name),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Export model failed", args...)

			return
		}
		lm.logger.Info("Export model completed successfully", args...)
	}(time.Now())

	return lm.svc.ExportModel(ctx, name)
}

func (lm *loggingMiddleware) ImportModel(ctx context.Context, name string) (err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.String("name", name),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Import model failed", args...)

			return
		}
		lm.logger.Info("Import model completed successfully", args...)
	}(time.Now())

	return lm.svc.ImportModel(ctx, name)
}
