package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math/rand/v2"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/absmach/flcore/pkg/fl"
	"github.com/absmach/flcore/pkg/tensor"
	"golang.org/x/sync/errgroup"
)

var _ Service = (*service)(nil)

type client struct {
	model fl.Model
	// inflight is closed when an abandoned task returns; nil while idle.
	inflight chan struct{}
}

func (c *client) busy() bool {
	if c.inflight == nil {
		return false
	}
	select {
	case <-c.inflight:
		c.inflight = nil

		return false
	default:
		return true
	}
}

type service struct {
	cfg        Config
	global     fl.Model
	store      fl.CheckpointStore
	aggregator fl.Aggregator
	noise      *fl.SecureAggregator
	publisher  Publisher
	logger     *slog.Logger

	// mu serializes rounds, registry changes and global model restores.
	mu      sync.Mutex
	clients map[string]*client

	stateMu sync.RWMutex
	state   RoundState
}

type Option func(*options)

type options struct {
	noiseSource rand.Source
}

// WithNoiseSource fixes the random source used for secure aggregation noise.
func WithNoiseSource(src rand.Source) Option {
	return func(o *options) {
		o.noiseSource = src
	}
}

// New validates cfg and returns a coordinator owning global. The publisher may
// be nil, in which case no round events are emitted.
func New(cfg Config, global fl.Model, store fl.CheckpointStore, publisher Publisher, logger *slog.Logger, opts ...Option) (Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if global == nil {
		return nil, fmt.Errorf("%w: global model is required", fl.ErrConfiguration)
	}
	if store == nil {
		return nil, fmt.Errorf("%w: checkpoint store is required", fl.ErrConfiguration)
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	aggregator, err := fl.NewAggregator(cfg.AggregationMethod)
	if err != nil {
		return nil, err
	}
	sigma := cfg.NoiseSigma
	if !cfg.SecureAggregation {
		sigma = 0
	}
	noise, err := fl.NewSecureAggregator(sigma, o.noiseSource)
	if err != nil {
		return nil, err
	}

	return &service{
		cfg:        cfg,
		global:     global,
		store:      store,
		aggregator: aggregator,
		noise:      noise,
		publisher:  publisher,
		logger:     logger,
		clients:    make(map[string]*client),
		state:      NewRoundState(cfg.Patience),
	}, nil
}

func (svc *service) RegisterClient(_ context.Context, id string, model fl.Model) error {
	if strings.TrimSpace(id) == "" || model == nil {
		return fmt.Errorf("%w: client needs an ID and a model", ErrInvalidRequest)
	}

	if sameModel(model, svc.global) {
		return fmt.Errorf("%w: the global model cannot train as client %s", ErrInvalidRequest, id)
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()

	if _, ok := svc.clients[id]; ok {
		return fmt.Errorf("%w: %s", ErrClientExists, id)
	}
	if t, ok := model.(fl.Tunable); ok {
		t.SetLearningRate(svc.cfg.LearningRate)
	}
	svc.clients[id] = &client{model: model}

	return nil
}

func sameModel(a, b fl.Model) bool {
	t := reflect.TypeOf(a)
	if t != reflect.TypeOf(b) || !t.Comparable() {
		return false
	}

	return a == b
}

func (svc *service) DeregisterClient(_ context.Context, id string) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	if _, ok := svc.clients[id]; !ok {
		return fmt.Errorf("%w: %s", fl.ErrUnknownClient, id)
	}
	delete(svc.clients, id)

	return nil
}

func (svc *service) Clients(_ context.Context) []string {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	return svc.clientIDs()
}

func (svc *service) State(_ context.Context) RoundState {
	svc.stateMu.RLock()
	defer svc.stateMu.RUnlock()

	return svc.state
}

func (svc *service) Distribute(ctx context.Context) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	reference, err := svc.global.Weights(ctx)
	if err != nil {
		return fmt.Errorf("failed to read global weights: %w", err)
	}

	failed := svc.distribute(ctx, reference, svc.clientIDs())
	errs := make([]error, 0, len(failed))
	for _, id := range slices.Sorted(maps.Keys(failed)) {
		errs = append(errs, failed[id])
	}

	return errors.Join(errs...)
}

// distribute hands every listed client its own deep copy of reference.
func (svc *service) distribute(ctx context.Context, reference tensor.Weights, ids []string) map[string]*fl.ClientError {
	failed := make(map[string]*fl.ClientError)
	for _, id := range ids {
		c := svc.clients[id]
		if c.busy() {
			failed[id] = &fl.ClientError{ClientID: id, Err: ErrClientBusy}

			continue
		}
		if err := c.model.SetWeights(ctx, reference.Clone()); err != nil {
			failed[id] = &fl.ClientError{ClientID: id, Err: fmt.Errorf("failed to distribute weights: %w", err)}
		}
	}

	return failed
}

func (svc *service) RunRound(ctx context.Context, req RoundRequest) (RoundOutcome, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	out, err := svc.runRound(ctx, req)
	if !errors.Is(err, ErrTrainingStopped) {
		svc.publish(ctx, out, err)
	}

	return out, err
}

func (svc *service) runRound(ctx context.Context, req RoundRequest) (RoundOutcome, error) {
	state := svc.State(ctx)
	if state.Phase == Stopped {
		return RoundOutcome{Epoch: state.Epoch, Phase: Stopped, Stopped: true}, ErrTrainingStopped
	}
	out := RoundOutcome{Epoch: state.Epoch + 1, Phase: state.Phase}

	for id := range req.TrainingData {
		if _, ok := svc.clients[id]; !ok {
			return out, fmt.Errorf("%w: %s", fl.ErrUnknownClient, id)
		}
	}

	reference, err := svc.global.Weights(ctx)
	if err != nil {
		return out, fmt.Errorf("failed to read global weights: %w", err)
	}

	failed := svc.distribute(ctx, reference, svc.clientIDs())
	for _, id := range slices.Sorted(maps.Keys(failed)) {
		if _, ok := req.TrainingData[id]; ok {
			continue
		}
		svc.logger.Warn("failed to distribute weights to idle client",
			slog.String("client_id", id),
			slog.Uint64("epoch", out.Epoch),
			slog.Any("error", failed[id].Err),
		)
	}
	updates, trainFailed := svc.train(ctx, out.Epoch, reference, req, failed)
	out.Failed = trainFailed
	for _, f := range out.Failed {
		svc.logger.Warn("client excluded from round",
			slog.String("client_id", f.ClientID),
			slog.Uint64("epoch", out.Epoch),
			slog.Any("error", f.Err),
		)
	}
	if len(updates) == 0 {
		return out, fmt.Errorf("%w: epoch %d, %d clients failed", fl.ErrNoUsableUpdates, out.Epoch, len(out.Failed))
	}

	updates = svc.noise.ApplyNoise(updates)
	weights, err := svc.aggregator.Aggregate(updates)
	if err != nil {
		return out, fmt.Errorf("aggregation failed for epoch %d: %w", out.Epoch, err)
	}
	if err := svc.global.SetWeights(ctx, weights); err != nil {
		return out, fmt.Errorf("failed to apply aggregated weights: %w", err)
	}
	out.Applied = true
	out.AggregatedFrom = len(updates)

	state.Epoch = out.Epoch
	svc.setState(state)

	if req.Validation == nil {
		return out, nil
	}

	loss, err := svc.global.Evaluate(ctx, req.Validation)
	if err != nil {
		return out, fmt.Errorf("failed to evaluate global model: %w", err)
	}
	out.ValLoss = &loss

	state, improved := state.Observe(loss)
	svc.setState(state)
	out.Phase = state.Phase
	out.Stopped = state.Phase == Stopped

	if improved {
		id, err := svc.store.Save(ctx, fl.Checkpoint{Epoch: out.Epoch, Loss: loss, Weights: weights})
		if err != nil {
			if !errors.Is(err, fl.ErrCheckpointWrite) {
				err = fmt.Errorf("%w: %w", fl.ErrCheckpointWrite, err)
			}

			return out, err
		}
		out.CheckpointID = id
	}

	return out, nil
}

type taskResult struct {
	update fl.ClientUpdate
	err    *fl.ClientError
}

// train runs one task per participating client and joins their results over
// a channel. Clients in failed are reported without being started.
func (svc *service) train(ctx context.Context, epoch uint64, reference tensor.Weights, req RoundRequest, failed map[string]*fl.ClientError) ([]fl.ClientUpdate, []*fl.ClientError) {
	ids := slices.Sorted(maps.Keys(req.TrainingData))
	results := make(chan taskResult, len(ids))

	var g errgroup.Group
	if svc.cfg.MaxConcurrency > 0 {
		g.SetLimit(svc.cfg.MaxConcurrency)
	}
	for _, id := range ids {
		if cerr, ok := failed[id]; ok {
			results <- taskResult{err: cerr}

			continue
		}
		c := svc.clients[id]
		data := req.TrainingData[id]
		g.Go(func() error {
			update, abandoned, err := svc.trainClient(ctx, id, c.model, data, req.Epochs, reference)
			if abandoned != nil {
				c.inflight = abandoned
			}
			if err != nil {
				results <- taskResult{err: &fl.ClientError{ClientID: id, Err: err}}

				return nil
			}
			results <- taskResult{update: update}

			return nil
		})
	}
	_ = g.Wait()
	close(results)

	var updates []fl.ClientUpdate
	var errs []*fl.ClientError
	for r := range results {
		if r.err != nil {
			errs = append(errs, r.err)

			continue
		}
		updates = append(updates, r.update)
	}
	slices.SortFunc(errs, func(a, b *fl.ClientError) int {
		return strings.Compare(a.ClientID, b.ClientID)
	})
	svc.logger.Debug("round training finished",
		slog.Uint64("epoch", epoch),
		slog.Int("updates", len(updates)),
		slog.Int("failed", len(errs)),
	)

	return updates, errs
}

// trainClient bounds one client's task by the configured timeout. When the
// deadline passes first it returns a channel closed once the task finally
// returns, so the client can be kept out of later rounds until then.
func (svc *service) trainClient(ctx context.Context, id string, model fl.Model, data fl.Dataset, epochs uint, reference tensor.Weights) (fl.ClientUpdate, chan struct{}, error) {
	if data == nil {
		return fl.ClientUpdate{}, nil, ErrNoTrainingData
	}
	if svc.cfg.ClientTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, svc.cfg.ClientTimeout)
		defer cancel()
	}

	type result struct {
		update fl.ClientUpdate
		err    error
	}
	done := make(chan result, 1)
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		update, err := runClient(ctx, id, model, data, epochs, reference)
		done <- result{update, err}
	}()

	select {
	case r := <-done:
		return r.update, nil, r.err
	case <-ctx.Done():
		select {
		case r := <-done:
			return r.update, nil, r.err
		default:
			return fl.ClientUpdate{}, finished, ctx.Err()
		}
	}
}

func runClient(ctx context.Context, id string, model fl.Model, data fl.Dataset, epochs uint, reference tensor.Weights) (update fl.ClientUpdate, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("client task panicked: %v", r)
		}
	}()

	if err := model.Train(ctx, data, epochs); err != nil {
		return fl.ClientUpdate{}, fmt.Errorf("training failed: %w", err)
	}
	weights, err := model.Weights(ctx)
	if err != nil {
		return fl.ClientUpdate{}, fmt.Errorf("failed to read weights: %w", err)
	}
	if err := reference.Conforms(weights); err != nil {
		return fl.ClientUpdate{}, fmt.Errorf("%w: %w", fl.ErrWeightMismatch, err)
	}

	n := data.Len()
	if n < 0 {
		n = 0
	}

	return fl.ClientUpdate{
		ClientID:   id,
		Weights:    weights.Clone(),
		NumSamples: uint64(n),
		ReceivedAt: time.Now().UTC(),
	}, nil
}

// Run repeats svc.RunRound until training stops, maxRounds rounds complete or
// a round fails. Zero maxRounds runs until stopped and needs validation data.
// Passing a decorated service keeps its per-round middleware in the loop.
func Run(ctx context.Context, svc Service, req RoundRequest, maxRounds uint64) ([]RoundOutcome, error) {
	if maxRounds == 0 && req.Validation == nil {
		return nil, fmt.Errorf("%w: running until stopped needs validation data", ErrInvalidRequest)
	}

	var outcomes []RoundOutcome
	for i := uint64(0); maxRounds == 0 || i < maxRounds; i++ {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}
		out, err := svc.RunRound(ctx, req)
		outcomes = append(outcomes, out)
		if err != nil {
			return outcomes, err
		}
		if out.Stopped {
			break
		}
	}

	return outcomes, nil
}

func (svc *service) RestoreCheckpoint(ctx context.Context, epoch uint64) (fl.Checkpoint, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	cp, err := svc.store.Load(ctx, epoch)
	if err != nil {
		return fl.Checkpoint{}, err
	}

	return cp, svc.apply(ctx, cp)
}

func (svc *service) RestoreLatest(ctx context.Context) (fl.Checkpoint, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	cp, err := svc.store.Latest(ctx)
	if err != nil {
		return fl.Checkpoint{}, err
	}

	return cp, svc.apply(ctx, cp)
}

func (svc *service) Resume(ctx context.Context) (RoundState, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	cp, err := svc.store.Latest(ctx)
	if err != nil {
		return svc.State(ctx), err
	}
	if err := svc.apply(ctx, cp); err != nil {
		return svc.State(ctx), err
	}

	state := NewRoundState(svc.cfg.Patience)
	state.Epoch = cp.Epoch
	state.BestLoss = cp.Loss
	svc.setState(state)

	return state, nil
}

// apply checks the checkpoint against the current global weights and installs
// it with a single SetWeights call.
func (svc *service) apply(ctx context.Context, cp fl.Checkpoint) error {
	current, err := svc.global.Weights(ctx)
	if err != nil {
		return fmt.Errorf("failed to read global weights: %w", err)
	}
	if err := current.Conforms(cp.Weights); err != nil {
		return fmt.Errorf("%w: checkpoint %d: %w", fl.ErrWeightMismatch, cp.Epoch, err)
	}

	return svc.global.SetWeights(ctx, cp.Weights)
}

func (svc *service) ExportModel(_ context.Context, name string) error {
	path, err := svc.modelPath(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()

	return svc.global.Save(path)
}

func (svc *service) ImportModel(_ context.Context, name string) error {
	path, err := svc.modelPath(name)
	if err != nil {
		return err
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()

	return svc.global.Load(path)
}

// modelPath resolves name inside the model directory. Absolute names and
// names that climb out of the directory are rejected.
func (svc *service) modelPath(name string) (string, error) {
	if !ValidModelName(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidModelName, name)
	}

	return filepath.Join(svc.cfg.ModelDir, name), nil
}

func ValidModelName(name string) bool {
	return strings.TrimSpace(name) != "" && filepath.IsLocal(name)
}

func (svc *service) setState(s RoundState) {
	svc.stateMu.Lock()
	defer svc.stateMu.Unlock()

	svc.state = s
}

func (svc *service) clientIDs() []string {
	return slices.Sorted(maps.Keys(svc.clients))
}
