// Package telemetry wires OpenTelemetry tracing and metrics for the intent pipeline.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/stackops/stackops"

// Config configures the OpenTelemetry providers
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string
	Insecure       bool
	SampleRate     float64
	ExportInterval time.Duration
}

// Provider owns the trace and metric providers
type Provider struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter
}

// New creates the providers. When disabled, the global no-op providers are used.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	p := &Provider{}
	if !cfg.Enabled {
		p.tracer = otel.Tracer(instrumentationName)
		p.meter = otel.Meter(instrumentationName)
		return p, nil
	}

	// attributes only: resource.Default already carries the SDK's schema URL
	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	traceOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
	metricOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint)}
	if cfg.Insecure {
		traceOpts = append(traceOpts, otlptracegrpc.WithInsecure())
		metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
	}

	traceExporter, err := otlptracegrpc.New(ctx, traceOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}
	metricExporter, err := otlpmetricgrpc.New(ctx, metricOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}

	p.tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithSampler(sampler(cfg.SampleRate)),
	)
	interval := cfg.ExportInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	p.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(interval))),
	)

	otel.SetTracerProvider(p.tracerProvider)
	otel.SetMeterProvider(p.meterProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	p.tracer = p.tracerProvider.Tracer(instrumentationName, trace.WithInstrumentationVersion(cfg.ServiceVersion))
	p.meter = p.meterProvider.Meter(instrumentationName, metric.WithInstrumentationVersion(cfg.ServiceVersion))
	return p, nil
}

func sampler(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1.0:
		return sdktrace.AlwaysSample()
	case rate <= 0.0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
	}
}

// Tracer returns the pipeline tracer
func (p *Provider) Tracer() trace.Tracer { return p.tracer }

// Meter returns the pipeline meter
func (p *Provider) Meter() metric.Meter { return p.meter }

// Shutdown flushes and stops both providers
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("trace provider: %w", err))
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider: %w", err))
		}
	}
	return errors.Join(errs...)
}

// PipelineMetrics holds the pipeline counters. A nil *PipelineMetrics records nothing.
type PipelineMetrics struct {
	intents   metric.Int64Counter
	steps     metric.Int64Counter
	synthesis metric.Int64Counter
}

// NewPipelineMetrics registers the pipeline instruments on meter
func NewPipelineMetrics(meter metric.Meter) (*PipelineMetrics, error) {
	intents, err := meter.Int64Counter("stackops.intents.total",
		metric.WithDescription("Intent requests by outcome"),
		metric.WithUnit("{intent}"),
	)
	if err != nil {
		return nil, err
	}
	steps, err := meter.Int64Counter("stackops.steps.total",
		metric.WithDescription("Executed plan steps by tool and status"),
		metric.WithUnit("{step}"),
	)
	if err != nil {
		return nil, err
	}
	synthesis, err := meter.Int64Counter("stackops.synthesis.attempts",
		metric.WithDescription("Oracle calls made during plan synthesis"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}
	return &PipelineMetrics{intents: intents, steps: steps, synthesis: synthesis}, nil
}

// RecordIntent counts one request outcome, e.g. planned, clarify, applied, failed
func (m *PipelineMetrics) RecordIntent(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.intents.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordStep counts one executed step
func (m *PipelineMetrics) RecordStep(ctx context.Context, tool, status string) {
	if m == nil {
		return
	}
	m.steps.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("status", status),
	))
}

// RecordSynthesis counts one oracle call made while synthesizing
func (m *PipelineMetrics) RecordSynthesis(ctx context.Context, attempt int, outcome string) {
	if m == nil {
		return
	}
	m.synthesis.Add(ctx, 1, metric.WithAttributes(
		attribute.Int("attempt", attempt),
		attribute.String("outcome", outcome),
	))
}
