package coordinator

import (
	"context"
	"log/slog"
	"math"
	"time"
)

const (
	EventCompleted = "completed"
	EventFailed    = "failed"
	EventStopped   = "stopped"
)

// Publisher is satisfied by pkg/mqtt.PubSub.
type Publisher interface {
	Publish(ctx context.Context, topic string, msg any) error
}

type RoundEvent struct {
	Kind           string    `json:"kind"`
	Epoch          uint64    `json:"epoch"`
	AggregatedFrom int       `json:"aggregated_from"`
	ValLoss        *float64  `json:"val_loss,omitempty"`
	Phase          string    `json:"phase"`
	CheckpointID   string    `json:"checkpoint_id,omitempty"`
	FailedClients  []string  `json:"failed_clients,omitempty"`
	Error          string    `json:"error,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

func newRoundEvent(out RoundOutcome, err error) RoundEvent {
	ev := RoundEvent{
		Kind:           EventCompleted,
		Epoch:          out.Epoch,
		AggregatedFrom: out.AggregatedFrom,
		Phase:          out.Phase.String(),
		CheckpointID:   out.CheckpointID,
		Timestamp:      time.Now().UTC(),
	}
	// JSON has no representation for NaN or infinities.
	if out.ValLoss != nil && !math.IsNaN(*out.ValLoss) && !math.IsInf(*out.ValLoss, 0) {
		loss := *out.ValLoss
		ev.ValLoss = &loss
	}
	for _, f := range out.Failed {
		ev.FailedClients = append(ev.FailedClients, f.ClientID)
	}
	switch {
	case err != nil:
		ev.Kind = EventFailed
		ev.Error = err.Error()
	case out.Stopped:
		ev.Kind = EventStopped
	}

	return ev
}

func (svc *service) publish(ctx context.Context, out RoundOutcome, err error) {
	if svc.publisher == nil || svc.cfg.EventsTopic == "" {
		return
	}

	ev := newRoundEvent(out, err)
	topic := svc.cfg.EventsTopic + "/" + ev.Kind
	// Events describe a round that already happened; a cancelled caller must not suppress them.
	if perr := svc.publisher.Publish(context.WithoutCancel(ctx), topic, ev); perr != nil {
		svc.logger.Warn("failed to publish round event",
			slog.String("topic", topic),
			slog.Uint64("epoch", ev.Epoch),
			slog.Any("error", perr),
		)
	}
}
