// Package api holds the JSON encoding helpers shared by HTTP transports.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	pkgerrors "github.com/absmach/flcore/pkg/errors"
	"github.com/absmach/flcore/pkg/fl"
	kithttp "github.com/go-kit/kit/transport/http"
)

const ContentType = "application/json"

// Response lets endpoint results choose their status code and headers.
type Response interface {
	Code() int
	Headers() map[string]string
	// Empty reports that the response has no body.
	Empty() bool
}

type errorRes struct {
	Error string `json:"error"`
}

func EncodeResponse(_ context.Context, w http.ResponseWriter, response any) error {
	if ar, ok := response.(Response); ok {
		for k, v := range ar.Headers() {
			w.Header().Set(k, v)
		}
		w.Header().Set("Content-Type", ContentType)
		w.WriteHeader(ar.Code())

		if ar.Empty() {
			return nil
		}
	}

	return json.NewEncoder(w).Encode(response)
}

// EncodeError writes err as a JSON body with a status code derived from the
// sentinel it wraps.
func EncodeError(_ context.Context, err error, w http.ResponseWriter) {
	w.Header().Set("Content-Type", ContentType)
	w.WriteHeader(StatusCode(err))

	_ = json.NewEncoder(w).Encode(errorRes{Error: err.Error()})
}

func StatusCode(err error) int {
	switch {
	case errors.Is(err, pkgerrors.ErrUnsupportedContentType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, pkgerrors.ErrValidation),
		errors.Is(err, fl.ErrConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, fl.ErrCheckpointNotFound),
		errors.Is(err, fl.ErrUnknownClient):
		return http.StatusNotFound
	case errors.Is(err, fl.ErrCheckpointExists):
		return http.StatusConflict
	case errors.Is(err, fl.ErrWeightMismatch):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// LoggingErrorEncoder logs server-side failures before delegating to enc.
func LoggingErrorEncoder(logger *slog.Logger, enc kithttp.ErrorEncoder) kithttp.ErrorEncoder {
	return func(ctx context.Context, err error, w http.ResponseWriter) {
		if StatusCode(err) >= http.StatusInternalServerError {
			logger.Error("request failed", slog.Any("error", err))
		}
		enc(ctx, err, w)
	}
}

// Health reports the service name, instance ID and start-up time.
func Health(service, instanceID string) http.HandlerFunc {
	started := time.Now().UTC()

	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", ContentType)
		w.WriteHeader(http.StatusOK)

		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":      "pass",
			"service":     service,
			"instance_id": instanceID,
			"started_at":  started.Format(time.RFC3339),
		})
	}
}
