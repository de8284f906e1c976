// Package tracer provides the tracing abstraction used by connections,
// with an OpenTelemetry implementation.
package tracer

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer starts spans.
type Tracer interface {
	StartSpan(ctx context.Context, name string) (context.Context, Span)
}

// Span captures the execution of one operation.
type Span interface {
	SetAttributes(attrs ...attribute.KeyValue)
	RecordError(err error)
	SetStatus(code codes.Code, description string)
	End()
}

// NoopTracer is the default tracer. It records nothing.
type NoopTracer struct{}

// StartSpan returns the context unchanged with a no-op span.
func (n *NoopTracer) StartSpan(ctx context.Context, _ string) (context.Context, Span) {
	return ctx, &NoopSpan{}
}

// NoopSpan is a span that does nothing.
type NoopSpan struct{}

// SetAttributes does nothing.
func (n *NoopSpan) SetAttributes(_ ...attribute.KeyValue) {}

// RecordError does nothing.
func (n *NoopSpan) RecordError(_ error) {}

// SetStatus does nothing.
func (n *NoopSpan) SetStatus(_ codes.Code, _ string) {}

// End does nothing.
func (n *NoopSpan) End() {}

// OtelTracer adapts an OpenTelemetry tracer.
type OtelTracer struct {
	tracer trace.Tracer
}

// NewOtelTracer creates a new OpenTelemetry tracer adapter.
// The provided tracer must not be nil.
func NewOtelTracer(tracer trace.Tracer) *OtelTracer {
	return &OtelTracer{tracer: tracer}
}

// StartSpan starts a client span.
func (t *OtelTracer) StartSpan(ctx context.Context, name string) (context.Context, Span) {
	ctx, span := t.tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient))
	return ctx, &OtelSpan{span: span}
}

// OtelSpan wraps an OpenTelemetry span.
type OtelSpan struct {
	span trace.Span
}

// SetAttributes sets OpenTelemetry attributes on the span.
func (s *OtelSpan) SetAttributes(attrs ...attribute.KeyValue) {
	s.span.SetAttributes(attrs...)
}

// RecordError records an error on the OpenTelemetry span.
func (s *OtelSpan) RecordError(err error) {
	s.span.RecordError(err)
}

// SetStatus sets the status of the OpenTelemetry span.
func (s *OtelSpan) SetStatus(code codes.Code, description string) {
	s.span.SetStatus(code, description)
}

// End completes the OpenTelemetry span.
func (s *OtelSpan) End() {
	s.span.End()
}

// StatementMetadata describes one statement sent on a connection.
type StatementMetadata struct {
	// SQL is the statement text with native placeholders.
	SQL string
	// BindCount is the number of bound values. Values themselves are never recorded.
	BindCount    int
	Duration     time.Duration
	RowsAffected int64
	Error        error
	// Database is the dialect name: mysql, postgres or sqlite.
	Database  string
	Operation string
	// ConnectionID identifies the physical link within the process.
	ConnectionID uint64
	// Depth is the transaction depth when the statement ran.
	Depth int
}

// AddStatementAttributes sets database semantic convention attributes and the
// span status. See https://opentelemetry.io/docs/specs/semconv/database/
func AddStatementAttributes(span Span, meta *StatementMetadata) {
	attrs := []attribute.KeyValue{
		attribute.String("db.system", meta.Database),
		attribute.String("db.statement", meta.SQL),
		attribute.String("db.operation", meta.Operation),
		attribute.Int64("db.connection_id", int64(meta.ConnectionID)),
		attribute.Int("db.transaction.depth", meta.Depth),
		attribute.Int("db.bind_count", meta.BindCount),
		attribute.Float64("db.duration_ms", float64(meta.Duration.Microseconds())/1000.0),
	}
	if meta.RowsAffected > 0 {
		attrs = append(attrs, attribute.Int64("db.rows_affected", meta.RowsAffected))
	}

	span.SetAttributes(attrs...)

	if meta.Error != nil {
		span.RecordError(meta.Error)
		span.SetStatus(codes.Error, meta.Error.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
}

var operationKeywords = []string{
	"SELECT", "INSERT", "UPDATE", "DELETE", "REPLACE",
	"BEGIN", "START", "COMMIT", "ROLLBACK", "SAVEPOINT", "RELEASE",
	"CREATE", "ALTER", "DROP", "PRAGMA", "SHOW",
}

// DetectOperation returns the leading SQL keyword of a statement, mapping
// WITH to SELECT and START TRANSACTION to BEGIN. Unrecognized statements
// yield UNKNOWN.
func DetectOperation(sql string) string {
	sql = strings.ToUpper(strings.TrimSpace(sql))
	if strings.HasPrefix(sql, "WITH") {
		return "SELECT"
	}
	for _, kw := range operationKeywords {
		if strings.HasPrefix(sql, kw) {
			if kw == "START" {
				return "BEGIN"
			}
			return kw
		}
	}
	return "UNKNOWN"
}
