// Package telemetry wires OpenTelemetry tracing and metrics for HTTP
// request handling and the MCP dispatcher: a small Provider holding a
// Tracer and Meter, started once at process startup and threaded down
// to the subsystems that create spans, grounded on the pack's
// `instrumentation.Tracer.Start(ctx, name)` / SetAttributes / SetStatus
// / End span lifecycle.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Config configures telemetry export.
type Config struct {
	Enabled     bool
	Exporter    string // "stdout" or "none"
	ServiceName string
}

// Provider holds the Tracer/Meter used by HTTP request handling and the
// MCP dispatcher, plus the SDK providers needed to shut down cleanly.
type Provider struct {
	Tracer trace.Tracer
	Meter  metric.Meter

	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
}

// New builds a Provider per cfg. When telemetry is disabled or the
// exporter is "none", it returns a no-op Provider backed by the global
// otel no-op implementations, so callers never need a nil check.
func New(cfg Config) (*Provider, error) {
	name := cfg.ServiceName
	if name == "" {
		name = "sentinelcore"
	}

	if !cfg.Enabled || cfg.Exporter == "" || cfg.Exporter == "none" {
		return &Provider{Tracer: otel.Tracer(name), Meter: otel.Meter(name)}, nil
	}

	if cfg.Exporter != "stdout" {
		return nil, fmt.Errorf("telemetry: unsupported exporter %q", cfg.Exporter)
	}

	traceExporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("telemetry: creating trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(traceExporter))

	metricExporter, err := stdoutmetric.New()
	if err != nil {
		return nil, fmt.Errorf("telemetry: creating metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)))

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	return &Provider{
		Tracer:         tp.Tracer(name),
		Meter:          mp.Meter(name),
		tracerProvider: tp,
		meterProvider:  mp,
	}, nil
}

// Shutdown flushes and stops the SDK providers. Safe to call on a no-op
// Provider (the SDK fields are nil).
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			return err
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			return err
		}
	}
	return nil
}

// StartSpan starts a span named name with the given attributes, for the
// HTTP request handling and MCP dispatch call sites.
func (p *Provider) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := p.Tracer.Start(ctx, name)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

// EndSpan records err (if non-nil) as the span's status before ending
// it, matching the pack's span.SetStatus(codes.Error, ...)/span.End()
// pairing.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
