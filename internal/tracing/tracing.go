// Package tracing bootstraps the OpenTelemetry tracer provider that
// internal/rpc's per-method spans and otelhttp's server instrumentation
// both write into, per SPEC_FULL.md §11: an OTLP/gRPC exporter when
// PAGI_OTEL_ENDPOINT is set, a stdout exporter in dev mode, or the
// untouched global no-op provider otherwise.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Setup installs a global TracerProvider and returns its Shutdown func.
// When endpoint is empty and devMode is false, it installs nothing and
// otel.Tracer(...) callers keep using the package-default no-op provider;
// the returned shutdown func is then a no-op.
func Setup(ctx context.Context, endpoint string, devMode bool) (func(context.Context) error, error) {
	var exporter sdktrace.SpanExporter
	var err error

	switch {
	case endpoint != "":
		exporter, err = otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithInsecure(),
		)
	case devMode:
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	default:
		return func(context.Context) error { return nil }, nil
	}
	if err != nil {
		return nil, fmt.Errorf("tracing: build exporter: %w", err)
	}

	res := resource.NewSchemaless(attribute.String("service.name", "pagicore"))
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}
