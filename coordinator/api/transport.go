// Package api exposes the coordinator's inspection and recovery operations
// over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/absmach/flcore/coordinator"
	"github.com/absmach/flcore/pkg/api"
	pkgerrors "github.com/absmach/flcore/pkg/errors"
	"github.com/go-chi/chi/v5"
	kithttp "github.com/go-kit/kit/transport/http"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const latestKey = "latest"

func MakeHandler(svc coordinator.Service, logger *slog.Logger, instanceID string) http.Handler {
	mux := chi.NewRouter()

	opts := []kithttp.ServerOption{
		kithttp.ServerErrorEncoder(api.LoggingErrorEncoder(logger, encodeError)),
	}

	mux.Get("/state", otelhttp.NewHandler(kithttp.NewServer(
		stateEndpoint(svc),
		kithttp.NopRequestDecoder,
		api.EncodeResponse,
		opts...,
	), "get-state").ServeHTTP)

	mux.Post("/distribute", otelhttp.NewHandler(kithttp.NewServer(
		distributeEndpoint(svc),
		kithttp.NopRequestDecoder,
		api.EncodeResponse,
		opts...,
	), "distribute").ServeHTTP)

	mux.Post("/resume", otelhttp.NewHandler(kithttp.NewServer(
		resumeEndpoint(svc),
		kithttp.NopRequestDecoder,
		api.EncodeResponse,
		opts...,
	), "resume").ServeHTTP)

	mux.Route("/clients", func(r chi.Router) {
		r.Get("/", otelhttp.NewHandler(kithttp.NewServer(
			listClientsEndpoint(svc),
			kithttp.NopRequestDecoder,
			api.EncodeResponse,
			opts...,
		), "list-clients").ServeHTTP)
		r.Delete("/{clientID}", otelhttp.NewHandler(kithttp.NewServer(
			deregisterClientEndpoint(svc),
			decodeEntityReq("clientID"),
			api.EncodeResponse,
			opts...,
		), "deregister-client").ServeHTTP)
	})

	mux.Post("/checkpoints/{epoch}/restore", otelhttp.NewHandler(kithttp.NewServer(
		restoreEndpoint(svc),
		decodeRestoreReq,
		api.EncodeResponse,
		opts...,
	), "restore-checkpoint").ServeHTTP)

	mux.Route("/model", func(r chi.Router) {
		r.Post("/export", otelhttp.NewHandler(kithttp.NewServer(
			exportModelEndpoint(svc),
			decodeModelReq,
			api.EncodeResponse,
			opts...,
		), "export-model").ServeHTTP)
		r.Post("/import", otelhttp.NewHandler(kithttp.NewServer(
			importModelEndpoint(svc),
			decodeModelReq,
			api.EncodeResponse,
			opts...,
		), "import-model").ServeHTTP)
	})

	mux.Get("/health", api.Health("coordinator", instanceID))
	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

func decodeEntityReq(key string) kithttp.DecodeRequestFunc {
	return func(_ context.Context, r *http.Request) (any, error) {
		return entityReq{
			id: chi.URLParam(r, key),
		}, nil
	}
}

func decodeRestoreReq(_ context.Context, r *http.Request) (any, error) {
	param := chi.URLParam(r, "epoch")
	if param == latestKey {
		return restoreReq{latest: true}, nil
	}

	epoch, err := strconv.ParseUint(param, 10, 64)
	if err != nil {
		return nil, errors.Join(pkgerrors.ErrValidation, err)
	}

	return restoreReq{epoch: epoch}, nil
}

func decodeModelReq(_ context.Context, r *http.Request) (any, error) {
	if !strings.Contains(r.Header.Get("Content-Type"), api.ContentType) {
		return nil, errors.Join(pkgerrors.ErrValidation, pkgerrors.ErrUnsupportedContentType)
	}

	var req modelReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, errors.Join(err, pkgerrors.ErrValidation)
	}

	return req, nil
}

func encodeError(ctx context.Context, err error, w http.ResponseWriter) {
	switch {
	case errors.Is(err, coordinator.ErrTrainingStopped),
		errors.Is(err, coordinator.ErrClientExists),
		errors.Is(err, coordinator.ErrClientBusy):
		w.Header().Set("Content-Type", api.ContentType)
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
	case errors.Is(err, coordinator.ErrInvalidModelName):
		w.Header().Set("Content-Type", api.ContentType)
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
	default:
		api.EncodeError(ctx, err, w)
	}
}
