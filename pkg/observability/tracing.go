package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/aretw0/knot/pkg/domain"
	"github.com/aretw0/knot/pkg/dsl"
)

// Span attribute keys.
const (
	AttrKnotID    = "knot.id"
	AttrKnotSpec  = "knot.spec"
	AttrDirection = "knot.direction"
	AttrFatal     = "knot.error.fatal"
)

// TracingConfig configures the tracer provider.
type TracingConfig struct {
	// Enabled controls whether tracing is active. When false, a no-op tracer is used.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Exporter selects the export backend: "none", "stdout" or "otlp".
	Exporter string `mapstructure:"exporter" yaml:"exporter"`

	// OTLPEndpoint is the collector endpoint for the "otlp" exporter.
	OTLPEndpoint string `mapstructure:"otlp_endpoint" yaml:"otlp_endpoint"`

	// SampleRate is the fraction of traces sampled (default 1.0).
	SampleRate float64 `mapstructure:"sample_rate" yaml:"sample_rate"`

	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
}

// DefaultTracingConfig returns tracing disabled with development defaults.
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		Enabled:      false,
		Exporter:     "stdout",
		OTLPEndpoint: "localhost:4317",
		SampleRate:   1.0,
		ServiceName:  "knot",
	}
}

// TracerProvider wraps the OpenTelemetry provider so it can be shut down cleanly.
type TracerProvider struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// NewTracerProvider builds a provider from cfg. When tracing is disabled the
// returned tracer is a no-op with zero overhead.
func NewTracerProvider(ctx context.Context, cfg TracingConfig) (*TracerProvider, error) {
	if !cfg.Enabled {
		return &TracerProvider{tracer: noop.NewTracerProvider().Tracer("noop")}, nil
	}

	var exporter sdktrace.SpanExporter
	var err error
	switch cfg.Exporter {
	case "stdout":
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	case "otlp":
		endpoint := cfg.OTLPEndpoint
		if endpoint == "" {
			endpoint = "localhost:4317"
		}
		exporter, err = otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithInsecure(),
		)
	case "none", "":
	default:
		return nil, fmt.Errorf("unsupported exporter type: %s", cfg.Exporter)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s exporter: %w", cfg.Exporter, err)
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "knot"
	}
	sampleRate := cfg.SampleRate
	if sampleRate <= 0 {
		sampleRate = 1.0
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", serviceName))),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRate))),
	}
	if exporter != nil {
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}
	provider := sdktrace.NewTracerProvider(opts...)

	return &TracerProvider{provider: provider, tracer: provider.Tracer(serviceName)}, nil
}

// Tracer returns the configured tracer. It is safe to use when tracing is disabled.
func (p *TracerProvider) Tracer() trace.Tracer { return p.tracer }

// Enabled reports whether spans are recorded.
func (p *TracerProvider) Enabled() bool { return p.provider != nil }

// Shutdown flushes pending spans.
func (p *TracerProvider) Shutdown(ctx context.Context) error {
	if p.provider != nil {
		return p.provider.Shutdown(ctx)
	}
	return nil
}

// Tracing emits one span per knot lifecycle event.
type Tracing struct {
	tracer trace.Tracer
}

// NewTracing creates a tracing observer.
func NewTracing(tracer trace.Tracer) *Tracing {
	return &Tracing{tracer: tracer}
}

// Hooks returns the lifecycle hooks emitting spans.
func (t *Tracing) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnTie: func(ctx context.Context, e *domain.KnotEvent) {
			t.span(ctx, "knot.tie", e)
		},
		OnUntie: func(ctx context.Context, e *domain.KnotEvent) {
			t.span(ctx, "knot.untie", e)
		},
		OnChange: func(ctx context.Context, e *domain.ChangeEvent) {
			t.span(ctx, "knot.change", &e.KnotEvent, attribute.String(AttrDirection, string(e.Direction)))
		},
		OnError: func(ctx context.Context, e *domain.ErrorEvent) {
			_, span := t.tracer.Start(ctx, "knot.error", trace.WithAttributes(
				attribute.String(AttrKnotID, e.KnotID),
				attribute.Bool(AttrFatal, e.Fatal),
			))
			if e.Err != nil {
				span.RecordError(e.Err)
				span.SetStatus(codes.Error, e.Err.Error())
			}
			span.End()
		},
	}
}

func (t *Tracing) span(ctx context.Context, name string, e *domain.KnotEvent, extra ...attribute.KeyValue) {
	attrs := append([]attribute.KeyValue{
		attribute.String(AttrKnotID, e.KnotID),
		attribute.String(AttrKnotSpec, dsl.Format(e.Spec)),
	}, extra...)
	_, span := t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	span.SetStatus(codes.Ok, "")
	span.End()
}
