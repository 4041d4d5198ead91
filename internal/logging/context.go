package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 4)

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}

	if runID := RunIDFromContext(ctx); runID != "" {
		fields = append(fields, zap.String("run.id", runID))
	}

	if source := SourceFromContext(ctx); source != "" {
		fields = append(fields, zap.String("source", source))
	}

	return fields
}

type runIDCtxKey struct{}
type sourceCtxKey struct{}
type loggerCtxKey struct{}

// WithRunID tags the context with the pipeline run identifier.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDCtxKey{}, runID)
}

// RunIDFromContext extracts the run identifier.
func RunIDFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(runIDCtxKey{}).(string); ok {
		return s
	}
	return ""
}

// WithSource tags the context with the file under analysis.
func WithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, sourceCtxKey{}, source)
}

// SourceFromContext extracts the file under analysis.
func SourceFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(sourceCtxKey{}).(string); ok {
		return s
	}
	return ""
}

// WithLogger stores logger in context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext retrieves logger from context.
// Returns a nop logger if not found.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return NewNop()
}
