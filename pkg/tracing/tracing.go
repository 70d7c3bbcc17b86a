// Package tracing configures an OpenTelemetry tracer provider that exports
// spans to an OTLP HTTP collector.
package tracing

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

var (
	errNoURL         = errors.New("collector URL is empty")
	errNoServiceName = errors.New("service name is empty")
	errURLScheme     = errors.New("unsupported collector URL scheme")
)

// NewProvider returns a tracer provider sampling the given fraction of traces.
// It is registered as the global provider.
func NewProvider(ctx context.Context, svcName string, collector url.URL, instanceID string, fraction float64) (*sdktrace.TracerProvider, error) {
	if collector == (url.URL{}) {
		return nil, errNoURL
	}
	if svcName == "" {
		return nil, errNoServiceName
	}

	var opts []otlptracehttp.Option
	switch collector.Scheme {
	case "http":
		opts = append(opts, otlptracehttp.WithInsecure())
	case "https":
	default:
		return nil, fmt.Errorf("%w: %q", errURLScheme, collector.Scheme)
	}
	opts = append(opts, otlptracehttp.WithEndpoint(collector.Host))
	if collector.Path != "" {
		opts = append(opts, otlptracehttp.WithURLPath(collector.Path))
	}

	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	attrs := []attribute.KeyValue{
		semconv.ServiceName(svcName),
		attribute.String("host.id", instanceID),
	}
	res, err := resource.New(ctx, resource.WithAttributes(attrs...))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(fraction)),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return tp, nil
}
