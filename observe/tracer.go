package observe

import (
	"context"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// SpanName is the name of every fetch attempt span.
const SpanName = "query.fetch"

// QueryMeta identifies a query for telemetry purposes.
type QueryMeta struct {
	Hash    string // canonical query hash (required)
	Attempt int    // 1-based fetch attempt, 0 when not applicable
}

// Digest returns a fixed-width fingerprint of the hash. Query hashes can be
// arbitrarily long, so spans and logs carry the digest alongside them.
func (m QueryMeta) Digest() uint64 {
	return xxhash.Sum64String(m.Hash)
}

// DigestString returns Digest formatted as 16 hex digits.
func (m QueryMeta) DigestString() string {
	return fmt.Sprintf("%016x", m.Digest())
}

// Tracer wraps OpenTelemetry tracing with query-specific span management.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: EndSpan must be best-effort and must not panic.
type Tracer interface {
	// StartSpan starts a new span for a fetch attempt.
	StartSpan(ctx context.Context, meta QueryMeta) (context.Context, trace.Span)

	// EndSpan ends the span, recording any error.
	EndSpan(span trace.Span, err error)
}

type tracerImpl struct {
	tracer trace.Tracer
}

// NewTracer creates a Tracer wrapping the given OpenTelemetry tracer.
func NewTracer(t trace.Tracer) Tracer {
	return &tracerImpl{tracer: t}
}

func (t *tracerImpl) StartSpan(ctx context.Context, meta QueryMeta) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("query.hash", meta.Hash),
		attribute.String("query.digest", meta.DigestString()),
		attribute.Bool("query.error", false),
	}
	if meta.Attempt > 0 {
		attrs = append(attrs, attribute.Int("query.attempt", meta.Attempt))
	}

	return t.tracer.Start(ctx, SpanName,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

func (t *tracerImpl) EndSpan(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.Bool("query.error", true))
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

type noopTracer struct {
	noop trace.Tracer
}

func newNoopTracer() Tracer {
	return &noopTracer{
		noop: tracenoop.NewTracerProvider().Tracer("noop"),
	}
}

func (t *noopTracer) StartSpan(ctx context.Context, meta QueryMeta) (context.Context, trace.Span) {
	return t.noop.Start(ctx, SpanName)
}

func (t *noopTracer) EndSpan(span trace.Span, err error) {
	span.End()
}
