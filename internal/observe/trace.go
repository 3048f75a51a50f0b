package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope name for the vocatutor tracer.
const tracerName = "github.com/vocatutor/vocatutor"

// Tracer returns the package-level [trace.Tracer] for vocatutor. It uses the
// globally registered [trace.TracerProvider].
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a new span and returns the updated context and span. The
// caller must call span.End() when done.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// CorrelationID extracts the trace ID from the OTel span context in ctx.
// Returns the empty string when no active span with a valid trace ID exists.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// GatewaySpan starts a span for one outbound internal/llmgateway call,
// tagging it with a "vocatutor.gateway.operation" attribute (translate or
// validate per spec §4.C3) so a trace backend can distinguish the two call
// shapes without parsing the span name. The caller must still call
// span.End().
func GatewaySpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	return StartSpan(ctx, "llmgateway."+operation,
		trace.WithAttributes(attribute.String("vocatutor.gateway.operation", operation)),
	)
}

// Logger returns an [slog.Logger] enriched with trace_id and span_id from
// the OTel span context in ctx. When no active span is present, the returned
// logger is the default slog logger without extra attributes.
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		l = l.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return l
}
