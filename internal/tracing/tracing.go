// Package tracing bootstraps an OpenTelemetry tracer provider for spans
// around each Planning Assembly Line stage and each Conductor tick,
// following the shape of the teacher's internal/observability.Tracer.
//
// The teacher wires an OTLP gRPC exporter
// (go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc); that
// exporter module is not part of this core's dependency set, so the
// provider here has no span processor or exporter attached — spans are
// created and sampled, they are simply not shipped off-process. A
// collector-backed exporter can be added later as a SpanProcessor
// without changing any call site.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Config configures the tracer provider.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string

	// SamplingRate controls what fraction of traces are recorded, from
	// 0.0 to 1.0. Defaults to 1.0.
	SamplingRate float64
}

// Tracer wraps a trace.Tracer plus the provider that must be shut down
// on process exit.
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// New builds a Tracer and registers it as the global provider. The
// returned shutdown func flushes and releases the provider's resources.
func New(cfg Config) (*Tracer, func(context.Context) error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "agentcore"
	}
	if cfg.SamplingRate <= 0 {
		cfg.SamplingRate = 1.0
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SamplingRate)),
	)
	otel.SetTracerProvider(provider)

	t := &Tracer{provider: provider, tracer: provider.Tracer(cfg.ServiceName)}
	return t, provider.Shutdown
}

// Start opens a span named name, attaching attrs. A nil Tracer returns
// ctx's existing span (or a non-recording one) unchanged, so components
// built without a tracer in tests stay panic-free.
func (t *Tracer) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if t == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// PlanningStage starts a span for one Planning Assembly Line stage.
func (t *Tracer) PlanningStage(ctx context.Context, stage string, userID int64) (context.Context, trace.Span) {
	return t.Start(ctx, "planning."+stage,
		attribute.Int64("user_id", userID),
		attribute.String("stage", stage),
	)
}

// ConductorTick starts a span for one Mission Conductor tick.
func (t *Tracer) ConductorTick(ctx context.Context, userID int64, taskID int) (context.Context, trace.Span) {
	return t.Start(ctx, "conductor.tick",
		attribute.Int64("user_id", userID),
		attribute.Int("task_id", taskID),
	)
}
