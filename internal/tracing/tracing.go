// Package tracing wires Moore FSM transitions into OpenTelemetry spans.
// It reproduces the otel.Config{ServiceName, ServiceVersion, Environment,
// Exporter, Endpoint, SampleRate} / otel.Initialize(ctx, cfg) shape called
// from cmd/enterprise/main.go, built directly against the public
// go.opentelemetry.io/otel SDK since that package's own implementation
// was not present in the retrieval pack (see DESIGN.md).
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/exporters/zipkin"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Config mirrors the shape constructed in cmd/enterprise/main.go.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	// Exporter selects the span exporter: "jaeger", "zipkin", or "stdout".
	Exporter   string
	Endpoint   string
	SampleRate float64
}

// Tracer wraps the provider Initialize installs, exposing a Hook for
// fsm.WithTraceHook and a Shutdown for graceful exporter flush.
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// Initialize builds an exporter from cfg.Exporter, registers a
// TracerProvider sampling at cfg.SampleRate, and sets it as the global
// otel provider, matching otel.Initialize's call site.
func Initialize(ctx context.Context, cfg Config) (*Tracer, error) {
	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			attribute.String("environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("tracing: building resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))),
	)
	otel.SetTracerProvider(provider)

	return &Tracer{
		provider: provider,
		tracer:   provider.Tracer("github.com/fluxorio/moorefsm"),
	}, nil
}

func newExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case "jaeger":
		return jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(cfg.Endpoint)))
	case "zipkin":
		return zipkin.New(cfg.Endpoint)
	case "stdout", "":
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	default:
		return nil, fmt.Errorf("unknown exporter %q", cfg.Exporter)
	}
}

// Hook returns a func(from, to string) func(error) suitable for
// fsm.WithTraceHook: it opens a span named "fsm.transition" on the start
// call and ends it, recording the error if any, on the returned closure.
func (t *Tracer) Hook() func(from, to string) func(err error) {
	return func(from, to string) func(err error) {
		_, span := t.tracer.Start(context.Background(), "fsm.transition",
			trace.WithAttributes(
				attribute.String("fsm.from", from),
				attribute.String("fsm.to", to),
			),
		)
		return func(err error) {
			if err != nil {
				span.RecordError(err)
			}
			span.End()
		}
	}
}

// Shutdown flushes and stops the underlying TracerProvider.
func (t *Tracer) Shutdown(ctx context.Context) error {
	return t.provider.Shutdown(ctx)
}
