// ABOUTME: OpenTelemetry tracer provider setup for the service
// ABOUTME: Exports spans over OTLP/HTTP when enabled; otherwise installs nothing

package telemetry

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// DefaultServiceName is reported when no service name is configured.
const DefaultServiceName = "cap360-server"

// Config controls trace export.
type Config struct {
	Enabled     bool
	Endpoint    string // OTLP/HTTP endpoint URL, e.g. http://localhost:4318
	ServiceName string
}

// ShutdownFunc flushes pending spans and releases the provider.
type ShutdownFunc func(context.Context) error

// Setup initialises OpenTelemetry tracing.
//
// Tracing is opt-in: when disabled or when no endpoint is configured, Setup
// returns a no-op shutdown function and no global provider is registered.
func Setup(ctx context.Context, cfg Config) (ShutdownFunc, error) {
	noop := func(context.Context) error { return nil }

	if !cfg.Enabled || cfg.Endpoint == "" {
		return noop, nil
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = DefaultServiceName
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpointURL(cfg.Endpoint),
	)
	if err != nil {
		return noop, fmt.Errorf("creating otlp exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return noop, fmt.Errorf("creating resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	slog.Default().With("component", "telemetry").Info("tracing enabled",
		"endpoint", cfg.Endpoint,
		"service", serviceName,
	)
	return tp.Shutdown, nil
}
