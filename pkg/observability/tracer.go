package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Tracer wraps an OpenTelemetry TracerProvider with the span helpers the
// rest of the package calls into, plus the optional in-memory
// DebugExporter used for UI inspection.
type Tracer struct {
	provider        *sdktrace.TracerProvider
	tracer          trace.Tracer
	debugExporter   *DebugExporter
	capturePayloads bool
}

// TracerOption configures optional Tracer behavior at construction time.
type TracerOption func(*tracerOptions)

type tracerOptions struct {
	debugExporter   *DebugExporter
	capturePayloads bool
}

// WithDebugExporter attaches an in-memory span exporter alongside the OTLP
// one, so recent spans stay queryable without a collector.
func WithDebugExporter(exporter *DebugExporter) TracerOption {
	return func(o *tracerOptions) { o.debugExporter = exporter }
}

// WithCapturePayloads enables AddToolPayload recording full tool
// request/response bodies onto spans.
func WithCapturePayloads(enabled bool) TracerOption {
	return func(o *tracerOptions) { o.capturePayloads = enabled }
}

// NewTracer builds a Tracer from a TracingConfig: an OTLP gRPC exporter
// batched through an SDK TracerProvider, optionally paired with a
// DebugExporter fed through a second, simple span processor.
func NewTracer(ctx context.Context, cfg *TracingConfig, opts ...TracerOption) (*Tracer, error) {
	var o tracerOptions
	for _, opt := range opts {
		opt(&o)
	}

	exporterOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.IsInsecure() {
		exporterOpts = append(exporterOpts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, exporterOpts...)
	if err != nil {
		return nil, fmt.Errorf("observability: creating otlp exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("observability: building resource: %w", err)
	}

	tpOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SamplingRate)),
		sdktrace.WithResource(res),
	}
	if o.debugExporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(o.debugExporter)))
	}

	provider := sdktrace.NewTracerProvider(tpOpts...)

	return &Tracer{
		provider:        provider,
		tracer:          provider.Tracer(cfg.ServiceName),
		debugExporter:   o.debugExporter,
		capturePayloads: o.capturePayloads,
	}, nil
}

// Start begins a span with the given name, delegating to the underlying
// OpenTelemetry tracer.
func (t *Tracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// StartToolExecution begins a span for one tool invocation on the MCP HTTP
// surface, tagged with the tool and agent identity.
func (t *Tracer) StartToolExecution(ctx context.Context, toolName, agentName, functionID string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanToolExecution, trace.WithAttributes(
		attribute.String(AttrToolName, toolName),
		attribute.String(AttrAgentName, agentName),
	))
}

// AddToolPayload records a tool call's arguments and result on the span,
// when payload capture is enabled. A no-op otherwise, since payloads can
// be large and may contain sensitive data.
func (t *Tracer) AddToolPayload(span trace.Span, args, result string) {
	if !t.capturePayloads {
		return
	}
	span.SetAttributes(
		attribute.String("tool.arguments", truncateString(args, 4096)),
		attribute.String("tool.result", truncateString(result, 4096)),
	)
}

// RecordError marks the span as failed and attaches the error's type and
// message.
func (t *Tracer) RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetAttributes(attribute.String(AttrErrorType, fmt.Sprintf("%T", err)))
}

// DebugExporter returns the in-memory span exporter, or nil if one was not
// configured.
func (t *Tracer) DebugExporter() *DebugExporter {
	if t == nil {
		return nil
	}
	return t.debugExporter
}

// Shutdown flushes and closes the underlying TracerProvider.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t == nil || t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

func truncateString(s string, maxLen int) string {
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	return s
}
