// Package trace sets up the OpenTelemetry tracer the gateway records spans
// with. Spans are exported to stderr; stdout is reserved for the JSON-RPC
// stream.
package trace

import (
	"context"
	"os"

	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Shutdown flushes and stops the tracer provider.
type Shutdown func(ctx context.Context) error

// NewTracer returns a tracer and its shutdown function. When disabled, a
// no-op tracer with a no-op shutdown is returned.
func NewTracer(enabled bool) (trace.Tracer, Shutdown, error) {
	if !enabled {
		return noop.NewTracerProvider().Tracer("farmgate"),
			func(context.Context) error { return nil }, nil
	}
	exporter, err := stdouttrace.New(
		stdouttrace.WithWriter(os.Stderr),
		stdouttrace.WithPrettyPrint(),
	)
	if err != nil {
		return nil, nil, err
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	return tp.Tracer("farmgate"), tp.Shutdown, nil
}
