package otelgate

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/relayforge/mcpgate/relay"
)

// SetupConfig controls telemetry provider construction.
type SetupConfig struct {
	ServiceName string
	Version     string

	// Endpoint is the OTLP/HTTP collector endpoint, host:port. Empty
	// disables span export; metrics instruments still work in-process.
	Endpoint string
	Insecure bool
}

// Telemetry bundles the live providers and their shutdown.
type Telemetry struct {
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider

	shutdowns []func(context.Context) error
}

// Shutdown flushes and stops all providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	var errs []error
	for _, shutdown := range t.shutdowns {
		if err := shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Setup constructs tracer and meter providers, installs a relay observer on
// them, and registers them globally.
func Setup(ctx context.Context, cfg SetupConfig) (*Telemetry, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "mcpgate"
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.Version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("otelgate: build resource: %w", err)
	}

	t := &Telemetry{}

	traceOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.Endpoint != "" {
		exporterOpts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			exporterOpts = append(exporterOpts, otlptracehttp.WithInsecure())
		}
		exporter, err := otlptracehttp.New(ctx, exporterOpts...)
		if err != nil {
			return nil, fmt.Errorf("otelgate: build trace exporter: %w", err)
		}
		traceOpts = append(traceOpts, sdktrace.WithBatcher(exporter))
	}

	tracerProvider := sdktrace.NewTracerProvider(traceOpts...)
	meterProvider := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res))
	t.TracerProvider = tracerProvider
	t.MeterProvider = meterProvider
	t.shutdowns = append(t.shutdowns, tracerProvider.Shutdown, meterProvider.Shutdown)

	otel.SetTracerProvider(tracerProvider)
	otel.SetMeterProvider(meterProvider)

	observer, err := NewRelayObserver(
		meterProvider.Meter("mcpgate.relay"),
		tracerProvider.Tracer("mcpgate.relay"),
	)
	if err != nil {
		return nil, fmt.Errorf("otelgate: build relay observer: %w", err)
	}
	relay.SetObserver(observer)

	return t, nil
}
