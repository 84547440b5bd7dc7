// Package observability wires the engine's process-visible span and
// counters: a sync.pass span around each reconciliation pass, and the
// sync.patches_applied / sync.conflicts counters internal/sync increments
// as it works. The stdout exporters always run so a pass is visible with
// zero configuration; Config.Observability.OTLPEndpoint additionally sends
// the counters over OTLP/HTTP for a real collector. Spans go to stdout only.
package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Provider owns the process's tracer and meter providers and the two
// counters a sync pass reports against. It implements internal/sync's
// Metrics interface structurally, so internal/sync never imports this
// package directly.
type Provider struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider

	tracer trace.Tracer

	patchesApplied metric.Int64Counter
	conflicts      metric.Int64Counter
}

// New builds a Provider. otlpEndpoint is config.ObservabilityConfig's
// OTLPEndpoint; empty means stdout-only.
func New(ctx context.Context, otlpEndpoint string) (*Provider, error) {
	traceExporter, err := stdouttrace.New()
	if err != nil {
		return nil, fmt.Errorf("build stdout trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(traceExporter))
	otel.SetTracerProvider(tp)

	stdoutExporter, err := stdoutmetric.New()
	if err != nil {
		return nil, fmt.Errorf("build stdout metric exporter: %w", err)
	}
	readers := []sdkmetric.Option{sdkmetric.WithReader(sdkmetric.NewPeriodicReader(stdoutExporter))}

	if otlpEndpoint != "" {
		otlpExporter, err := otlpmetrichttp.New(ctx,
			otlpmetrichttp.WithEndpoint(otlpEndpoint),
			otlpmetrichttp.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("build otlp metric exporter for %s: %w", otlpEndpoint, err)
		}
		readers = append(readers, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(otlpExporter)))
	}

	mp := sdkmetric.NewMeterProvider(readers...)
	otel.SetMeterProvider(mp)

	meter := mp.Meter("github.com/rgsync/rgsync")
	patchesApplied, err := meter.Int64Counter("sync.patches_applied",
		metric.WithDescription("issue patches applied to either platform"))
	if err != nil {
		return nil, fmt.Errorf("build sync.patches_applied counter: %w", err)
	}
	conflicts, err := meter.Int64Counter("sync.conflicts",
		metric.WithDescription("reconciliations where both sides moved since the last canonical snapshot"))
	if err != nil {
		return nil, fmt.Errorf("build sync.conflicts counter: %w", err)
	}

	return &Provider{
		tracerProvider: tp,
		meterProvider:  mp,
		tracer:         tp.Tracer("github.com/rgsync/rgsync"),
		patchesApplied: patchesApplied,
		conflicts:      conflicts,
	}, nil
}

// StartPass opens the sync.pass span a poll tick runs inside. The caller
// must invoke the returned func exactly once, with the pass's error (nil
// on success), to close the span.
func (p *Provider) StartPass(ctx context.Context) (context.Context, func(error)) {
	ctx, span := p.tracer.Start(ctx, "sync.pass")
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}
}

// PatchApplied increments sync.patches_applied by one.
func (p *Provider) PatchApplied(ctx context.Context) {
	p.patchesApplied.Add(ctx, 1)
}

// ConflictDetected increments sync.conflicts by one.
func (p *Provider) ConflictDetected(ctx context.Context) {
	p.conflicts.Add(ctx, 1)
}

// Shutdown flushes and closes both providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	if err := p.tracerProvider.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown tracer provider: %w", err)
	}
	if err := p.meterProvider.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown meter provider: %w", err)
	}
	return nil
}
