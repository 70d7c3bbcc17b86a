package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/0x6flab/namegenerator"
	"github.com/absmach/flcore"
	"github.com/absmach/flcore/coordinator"
	"github.com/absmach/flcore/coordinator/api"
	"github.com/absmach/flcore/coordinator/middleware"
	"github.com/absmach/flcore/pkg/fl"
	"github.com/absmach/flcore/pkg/models/linear"
	"github.com/absmach/flcore/pkg/mqtt"
	"github.com/absmach/flcore/pkg/prometheus"
	"github.com/absmach/flcore/pkg/storage"
	"github.com/absmach/flcore/pkg/tracing"
	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"
)

const (
	svcName        = "coordinator"
	pathEnv        = ".env"
	configFileEnv  = "FL_CONFIG_FILE"
	controlSubject = "control"
	stopCommand    = "stop"
	shutdownPeriod = 5 * time.Second
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	if _, err := os.Stat(pathEnv); err == nil {
		_ = godotenv.Load(pathEnv)
	}

	cfg, err := env.ParseAs[flcore.Config]()
	if err != nil {
		log.Fatalf("failed to load configuration : %s", err.Error())
	}
	if path := os.Getenv(configFileEnv); path != "" {
		fileCfg, err := flcore.LoadConfig(path, cfg)
		if err != nil {
			log.Fatalf("failed to load configuration file %s : %s", path, err.Error())
		}
		cfg = *fileCfg
	}

	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		log.Fatalf("failed to parse log level: %s", err.Error())
	}
	logHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})
	logger := slog.New(logHandler)
	slog.SetDefault(logger)

	var tp trace.TracerProvider
	switch {
	case cfg.OTELURL == "":
		tp = noop.NewTracerProvider()
	default:
		otelURL, err := url.Parse(cfg.OTELURL)
		if err != nil {
			logger.Error("failed to parse opentelemetry collector url", slog.String("error", err.Error()))

			return
		}
		sdktp, err := tracing.NewProvider(ctx, svcName, *otelURL, cfg.InstanceID, cfg.TraceRatio)
		if err != nil {
			logger.Error("failed to initialize opentelemetry", slog.String("error", err.Error()))

			return
		}
		defer func() {
			if err := sdktp.Shutdown(context.Background()); err != nil {
				logger.Error("error shutting down tracer provider", slog.Any("error", err))
			}
		}()
		tp = sdktp
	}
	tracer := tp.Tracer(svcName)

	repos, err := storage.NewRepositories(ctx, cfg.Storage)
	if err != nil {
		logger.Error("failed to initialize checkpoint storage", slog.String("type", cfg.Storage.Type), slog.Any("error", err))

		return
	}
	if repos.Closer != nil {
		defer repos.Closer.Close()
	}

	var publisher coordinator.Publisher
	if cfg.MQTT.Address != "" {
		pubsub, err := mqtt.NewPubSub(
			cfg.MQTT.Address,
			cfg.MQTT.QoS,
			svcName+"-"+cfg.InstanceID,
			cfg.MQTT.Username,
			cfg.MQTT.Password,
			cfg.Coordinator.EventsTopic+"/status",
			cfg.MQTT.Timeout,
			logger,
		)
		if err != nil {
			logger.Error("failed to initialize mqtt pubsub", slog.String("error", err.Error()))

			return
		}
		defer func() {
			if err := pubsub.Disconnect(context.Background()); err != nil {
				logger.Warn("failed to disconnect from mqtt broker", slog.Any("error", err))
			}
		}()

		topic := cfg.Coordinator.EventsTopic + "/" + controlSubject
		if err := pubsub.Subscribe(ctx, topic, controlHandler(cancel, logger)); err != nil {
			logger.Error("failed to subscribe to control topic", slog.String("topic", topic), slog.String("error", err.Error()))

			return
		}
		publisher = pubsub
	}

	sim := cfg.Simulation
	global, err := linear.New(sim.Features, linear.WithSeed(sim.Seed))
	if err != nil {
		logger.Error("failed to create global model", slog.String("error", err.Error()))

		return
	}

	svc, err := coordinator.New(cfg.Coordinator, global, repos.Checkpoints, publisher, logger)
	if err != nil {
		logger.Error("failed to create coordinator", slog.String("error", err.Error()))

		return
	}
	svc = middleware.Logging(logger, svc)
	svc = middleware.Tracing(tracer, svc)
	counter, latency := prometheus.MakeMetrics(svcName, "api")
	svc = middleware.Metrics(counter, latency, svc)

	req, err := simulate(ctx, svc, sim)
	if err != nil {
		logger.Error("failed to set up simulated clients", slog.String("error", err.Error()))

		return
	}

	switch state, err := svc.Resume(ctx); {
	case err == nil:
		logger.Info("resumed from checkpoint", slog.Uint64("epoch", state.Epoch), slog.Float64("best_loss", state.BestLoss))
	case errors.Is(err, fl.ErrCheckpointNotFound):
	default:
		logger.Error("failed to resume from checkpoint", slog.String("error", err.Error()))

		return
	}

	hs := &http.Server{
		Addr:              ":" + cfg.MetricsPort,
		Handler:           api.MakeHandler(svc, logger, cfg.InstanceID),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		logger.Info(fmt.Sprintf("%s service http server listening at %s", svcName, hs.Addr))
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownPeriod)
		defer shutdownCancel()

		return hs.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		defer cancel()

		return train(ctx, svc, req, sim.MaxRounds, cfg.ModelFile, logger)
	})

	g.Go(func() error {
		return stopSignalHandler(ctx, cancel, logger)
	})

	if err := g.Wait(); err != nil {
		logger.Error(fmt.Sprintf("%s service exited with error: %s", svcName, err))
	}
}

// simulate registers one linear model per data shard under a generated name
// and returns the round request covering them.
func simulate(ctx context.Context, svc coordinator.Service, sim flcore.SimulationConfig) (coordinator.RoundRequest, error) {
	rng := rand.New(rand.NewPCG(sim.Seed, sim.Seed+1))
	coef := make([]float64, sim.Features)
	for i := range coef {
		coef[i] = 4*rng.Float64() - 2
	}
	gen := linear.NewGenerator(coef, 4*rng.Float64()-2, sim.Noise, sim.Seed)
	shards := linear.Split(gen.Generate(sim.Clients*sim.Samples), sim.Clients)

	req := coordinator.RoundRequest{
		TrainingData: make(map[string]fl.Dataset, len(shards)),
		Epochs:       sim.LocalEpochs,
		Validation:   gen.Generate(sim.Samples),
	}
	namegen := namegenerator.NewGenerator()
	for i, shard := range shards {
		id := fmt.Sprintf("%s-%d", namegen.Generate(), i)
		model, err := linear.New(sim.Features, linear.WithSeed(sim.Seed+uint64(i)+1))
		if err != nil {
			return coordinator.RoundRequest{}, err
		}
		if err := svc.RegisterClient(ctx, id, model); err != nil {
			return coordinator.RoundRequest{}, err
		}
		req.TrainingData[id] = shard
	}

	return req, nil
}

func train(ctx context.Context, svc coordinator.Service, req coordinator.RoundRequest, maxRounds uint64, modelFile string, logger *slog.Logger) error {
	outcomes, err := coordinator.Run(ctx, svc, req, maxRounds)
	switch {
	case errors.Is(err, coordinator.ErrTrainingStopped):
		logger.Info("training already stopped at resumed checkpoint")
	case err != nil && ctx.Err() != nil:
		logger.Info("training cancelled", slog.Int("rounds", len(outcomes)), slog.Any("error", err))
	case err != nil:
		return err
	}

	state := svc.State(ctx)
	logger.Info("training finished",
		slog.Int("rounds", len(outcomes)),
		slog.Uint64("epoch", state.Epoch),
		slog.String("state", state.String()),
		slog.Float64("best_loss", state.BestLoss),
	)

	return svc.ExportModel(context.WithoutCancel(ctx), modelFile)
}

// controlHandler cancels training when a stop command arrives.
func controlHandler(cancel context.CancelFunc, logger *slog.Logger) mqtt.Handler {
	return func(topic string, msg map[string]any) error {
		cmd, _ := msg["command"].(string)
		if cmd != stopCommand {
			logger.Warn("ignoring unknown control command", slog.String("topic", topic), slog.String("command", cmd))

			return nil
		}
		logger.Info("stop command received", slog.String("topic", topic))
		cancel()

		return nil
	}
}

func stopSignalHandler(ctx context.Context, cancel context.CancelFunc, logger *slog.Logger) error {
	c := make(chan os.Signal, 2)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM, syscall.SIGABRT)
	defer signal.Stop(c)

	select {
	case sig := <-c:
		defer cancel()
		logger.Info(fmt.Sprintf("%s service shutdown by signal: %s", svcName, sig))

		return nil
	case <-ctx.Done():
		return nil
	}
}
