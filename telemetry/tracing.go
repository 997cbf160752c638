// Package telemetry provides OpenTelemetry tracing for reporting ticks.
package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Span attribute keys.
const (
	AttrDeviceID    = attribute.Key("defender.device_id")
	AttrReportID    = attribute.Key("defender.report_id")
	AttrReportBytes = attribute.Key("defender.report_bytes")
	AttrGroups      = attribute.Key("defender.groups")
	AttrTopic       = attribute.Key("defender.topic")
	AttrEvent       = attribute.Key("defender.event")
	AttrAckStatus   = attribute.Key("defender.ack_status")
	AttrAckError    = attribute.Key("defender.ack_error_code")
)

// Tracer wraps OpenTelemetry tracing with reporting-specific helpers.
type Tracer struct {
	tracer trace.Tracer
}

var (
	globalTracer *Tracer
	tracerMu     sync.RWMutex
)

// SetGlobalTracer sets the global tracer instance.
func SetGlobalTracer(t *Tracer) {
	tracerMu.Lock()
	defer tracerMu.Unlock()
	globalTracer = t
}

// GetTracer returns the global tracer, or a no-op tracer if not set.
func GetTracer() *Tracer {
	tracerMu.RLock()
	defer tracerMu.RUnlock()
	if globalTracer == nil {
		return NoopTracer()
	}
	return globalTracer
}

// NewTracer creates a tracer from the global provider.
func NewTracer(name string) *Tracer {
	return &Tracer{tracer: otel.Tracer(name)}
}

// NewTracerFromProvider creates a tracer from a specific provider.
func NewTracerFromProvider(tp trace.TracerProvider, name string) *Tracer {
	return &Tracer{tracer: tp.Tracer(name)}
}

// NoopTracer returns a tracer that records nothing.
func NoopTracer() *Tracer {
	return &Tracer{tracer: noop.NewTracerProvider().Tracer("")}
}

// StartSpan starts a new span with the given name.
func (t *Tracer) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// --- Tick Spans ---

// TickSpanOptions contains the outcome of one reporting tick.
type TickSpanOptions struct {
	ReportID    uint64
	ReportBytes int
	Groups      []string
	Topic       string
	Event       string // failure event, empty on success
}

// StartTickSpan starts a span covering one reporting tick.
func (t *Tracer) StartTickSpan(ctx context.Context, deviceID string) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, "defender.tick", trace.WithSpanKind(trace.SpanKindProducer))
	span.SetAttributes(AttrDeviceID.String(deviceID))
	return ctx, span
}

// EndTickSpan ends a tick span with attributes.
func (t *Tracer) EndTickSpan(span trace.Span, opts TickSpanOptions, err error) {
	attrs := []attribute.KeyValue{
		AttrReportBytes.Int(opts.ReportBytes),
	}
	if opts.ReportID != 0 {
		attrs = append(attrs, AttrReportID.Int64(int64(opts.ReportID)))
	}
	if len(opts.Groups) > 0 {
		attrs = append(attrs, AttrGroups.StringSlice(opts.Groups))
	}
	if opts.Topic != "" {
		attrs = append(attrs, AttrTopic.String(opts.Topic))
	}
	if opts.Event != "" {
		attrs = append(attrs, AttrEvent.String(opts.Event))
	}
	span.SetAttributes(attrs...)

	endSpan(span, err)
}

// --- Acknowledgement Spans ---

// AckSpanOptions describes a received acknowledgement.
type AckSpanOptions struct {
	ReportID  uint64
	Event     string
	Status    string
	ErrorCode string
	Matched   bool
}

// RecordAck emits a short span for an acknowledgement.
func (t *Tracer) RecordAck(ctx context.Context, deviceID string, opts AckSpanOptions) {
	_, span := t.tracer.Start(ctx, "defender.ack", trace.WithSpanKind(trace.SpanKindConsumer))
	attrs := []attribute.KeyValue{
		AttrDeviceID.String(deviceID),
		AttrEvent.String(opts.Event),
		attribute.Bool("defender.ack_matched", opts.Matched),
	}
	if opts.ReportID != 0 {
		attrs = append(attrs, AttrReportID.Int64(int64(opts.ReportID)))
	}
	if opts.Status != "" {
		attrs = append(attrs, AttrAckStatus.String(opts.Status))
	}
	if opts.ErrorCode != "" {
		attrs = append(attrs, AttrAckError.String(opts.ErrorCode))
	}
	span.SetAttributes(attrs...)
	span.End()
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
