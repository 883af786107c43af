// Package observability provides logging setup, OpenTelemetry tracing and
// in-process metrics for recall.
package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	// TracerName is the name used for the recall tracer.
	TracerName = "github.com/efebarandurmaz/recall"
)

// TracingConfig configures the OpenTelemetry tracing.
type TracingConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string

	// OTLPEndpoint is the OTLP gRPC endpoint (e.g., "localhost:4317").
	// If empty, tracing is disabled.
	OTLPEndpoint string

	// SampleRate is the trace sampling rate (0.0 to 1.0).
	SampleRate float64
}

// DefaultTracingConfig returns a default tracing configuration.
func DefaultTracingConfig() *TracingConfig {
	return &TracingConfig{
		ServiceName:    "recall",
		ServiceVersion: "0.1.0",
		Environment:    "development",
		SampleRate:     1.0,
	}
}

// TracerProvider wraps the OpenTelemetry tracer provider.
type TracerProvider struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// InitTracing initializes OpenTelemetry tracing.
// Returns a no-op tracer if OTLPEndpoint is empty.
func InitTracing(ctx context.Context, cfg *TracingConfig) (*TracerProvider, error) {
	if cfg == nil {
		cfg = DefaultTracingConfig()
	}

	if cfg.OTLPEndpoint == "" {
		return &TracerProvider{
			tracer: otel.Tracer(TracerName),
		}, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	var sampler sdktrace.Sampler
	switch {
	case cfg.SampleRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case cfg.SampleRate <= 0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &TracerProvider{
		provider: provider,
		tracer:   provider.Tracer(TracerName),
	}, nil
}

// Shutdown flushes and stops the tracer provider.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp.provider != nil {
		return tp.provider.Shutdown(ctx)
	}
	return nil
}

// Tracer returns the underlying tracer.
func (tp *TracerProvider) Tracer() trace.Tracer {
	return tp.tracer
}

// Span kinds recorded under recall.span.kind.
const (
	SpanKindBuild  = "index_build"
	SpanKindSearch = "search"
	SpanKindEmbed  = "embed"
	SpanKindJob    = "job_wait"
)

// StartBuildSpan starts a span for an index build.
func StartBuildSpan(ctx context.Context, dimension int) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, "index.build",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("recall.span.kind", SpanKindBuild),
			attribute.Int("index.dimension", dimension),
		),
	)
}

// RecordBuildResult records a successful build on a span.
func RecordBuildResult(span trace.Span, snapshotID string, size int) {
	span.SetAttributes(
		attribute.String("index.snapshot_id", snapshotID),
		attribute.Int("index.size", size),
	)
}

// StartSearchSpan starts a span for a similarity query.
func StartSearchSpan(ctx context.Context, topK, topN int, threshold float64) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, "search.query",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("recall.span.kind", SpanKindSearch),
			attribute.Int("search.top_k", topK),
			attribute.Int("search.top_n", topN),
			attribute.Float64("search.threshold", threshold),
		),
	)
}

// RecordSearchResult records result count and snapshot on a span.
func RecordSearchResult(span trace.Span, snapshotID string, results int) {
	span.SetAttributes(
		attribute.String("index.snapshot_id", snapshotID),
		attribute.Int("search.results", results),
	)
}

// StartEmbedSpan starts a span for an embedding provider call.
func StartEmbedSpan(ctx context.Context, provider, model string) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, "embedding.embed",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("recall.span.kind", SpanKindEmbed),
			attribute.String("embedding.provider", provider),
			attribute.String("embedding.model", model),
		),
	)
}

// StartJobWaitSpan starts a span covering a blocking wait on an external job.
func StartJobWaitSpan(ctx context.Context, jobName, namespace string) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, "job.wait",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("recall.span.kind", SpanKindJob),
			attribute.String("job.name", jobName),
			attribute.String("job.namespace", namespace),
		),
	)
}

// RecordError records an error on a span.
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
