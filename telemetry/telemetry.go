// Package telemetry instruments the session engine with OpenTelemetry.
//
// The provider reads the global tracer and meter providers, so nothing is
// exported until the host application installs an SDK. Without one every
// call is a no-op.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Common attribute keys
const (
	AttrMethod  = "portal.auth.method"
	AttrOutcome = "portal.auth.outcome"
	AttrFrom    = "portal.session.from"
	AttrTo      = "portal.session.to"
)

const instrumentationName = "github.com/ashaassist/portal"

// Provider holds the tracer and the engine's instruments.
type Provider struct {
	tracer trace.Tracer

	attempts    metric.Int64Counter
	transitions metric.Int64Counter
}

// NewProvider creates a provider bound to the global OpenTelemetry providers.
func NewProvider() *Provider {
	meter := otel.Meter(instrumentationName)
	p := &Provider{tracer: otel.Tracer(instrumentationName)}

	// Instrument creation only fails on invalid names; fall back to no-ops.
	var err error
	p.attempts, err = meter.Int64Counter("portal.auth.attempts",
		metric.WithDescription("Authentication attempts by method and outcome"))
	if err != nil {
		p.attempts = nil
	}
	p.transitions, err = meter.Int64Counter("portal.session.transitions",
		metric.WithDescription("Session status transitions"))
	if err != nil {
		p.transitions = nil
	}
	return p
}

// StartSpan starts a span for a session operation.
func (p *Provider) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if p == nil || p.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return p.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// EndSpan records err on span (if any) and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// RecordAttempt counts one authentication attempt.
func (p *Provider) RecordAttempt(ctx context.Context, method, outcome string) {
	if p == nil || p.attempts == nil {
		return
	}
	p.attempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrMethod, method),
		attribute.String(AttrOutcome, outcome),
	))
}

// RecordTransition counts one status change.
func (p *Provider) RecordTransition(ctx context.Context, from, to string) {
	if p == nil || p.transitions == nil {
		return
	}
	p.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrFrom, from),
		attribute.String(AttrTo, to),
	))
}
