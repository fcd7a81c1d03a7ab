// Package telemetry sets up OpenTelemetry tracing and metrics for the
// decision loop.
//
// Without an OTLP endpoint the global no-op providers are used, so
// instrumented code runs unchanged and exports nothing.
package telemetry

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "github.com/becomeliminal/nim-orchestrator"

// Config configures export.
type Config struct {
	// ServiceName is reported as service.name (default: "nim").
	ServiceName string

	// Endpoint is the OTLP/HTTP base URL, e.g. http://localhost:4318.
	// Empty disables export.
	Endpoint string
}

// Instruments holds the tracer and meters used by the decision loop.
type Instruments struct {
	Tracer trace.Tracer

	// Requests counts decision loop runs by action and status.
	Requests metric.Int64Counter

	// ToolExecutions counts dispatcher invocations by tool and status.
	ToolExecutions metric.Int64Counter

	// RequestDuration records loop latency in milliseconds.
	RequestDuration metric.Float64Histogram
}

// New creates instruments from explicit providers.
func New(tp trace.TracerProvider, mp metric.MeterProvider) (*Instruments, error) {
	meter := mp.Meter(scopeName)

	requests, err := meter.Int64Counter("nim.requests",
		metric.WithDescription("Decision loop runs"),
		metric.WithUnit("{request}"))
	if err != nil {
		return nil, err
	}

	toolExecutions, err := meter.Int64Counter("nim.tool.executions",
		metric.WithDescription("Capability invocations"),
		metric.WithUnit("{execution}"))
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram("nim.request.duration",
		metric.WithDescription("Decision loop duration"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	return &Instruments{
		Tracer:          tp.Tracer(scopeName),
		Requests:        requests,
		ToolExecutions:  toolExecutions,
		RequestDuration: duration,
	}, nil
}

// Global creates instruments from the global providers.
func Global() *Instruments {
	inst, err := New(otel.GetTracerProvider(), otel.GetMeterProvider())
	if err != nil {
		// The global providers only fail on invalid instrument names.
		panic(err)
	}
	return inst
}

// Init installs OTLP/HTTP trace and metric exporters when cfg.Endpoint is set
// and returns instruments plus a shutdown function that flushes them.
func Init(ctx context.Context, cfg Config) (*Instruments, func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }
	if cfg.Endpoint == "" {
		return Global(), noop, nil
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "nim"
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)),
		resource.WithFromEnv(),
	)
	if err != nil {
		return nil, noop, err
	}

	traceExp, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(cfg.Endpoint))
	if err != nil {
		return nil, noop, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	metricExp, err := otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpointURL(cfg.Endpoint))
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, noop, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	inst, err := New(tp, mp)
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		return nil, noop, err
	}

	shutdown := func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}
	return inst, shutdown, nil
}
