package logging

import (
	"context"

	"go.uber.org/zap"
)

// Context key types
type streamCtxKey struct{}
type traceCtxKey struct{}

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 2)

	if streamID := StreamIDFromContext(ctx); streamID != "" {
		fields = append(fields, zap.String("stream.id", streamID))
	}
	if traceID := TraceIDFromContext(ctx); traceID != "" {
		fields = append(fields, zap.String("trace.id", traceID))
	}

	return fields
}

// WithStreamID adds the monitored-stream identifier to context.
func WithStreamID(ctx context.Context, streamID string) context.Context {
	return context.WithValue(ctx, streamCtxKey{}, streamID)
}

// StreamIDFromContext extracts the stream ID from context.
func StreamIDFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(streamCtxKey{}).(string); ok {
		return s
	}
	return ""
}

// WithTraceID adds a trace identifier (typically an event or snapshot ID)
// to context so every log line along a derivation chain correlates.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceCtxKey{}, traceID)
}

// TraceIDFromContext extracts the trace ID from context.
func TraceIDFromContext(ctx context.Context) string {
	if t, ok := ctx.Value(traceCtxKey{}).(string); ok {
		return t
	}
	return ""
}

// loggerCtxKey is the context key for Logger.
type loggerCtxKey struct{}

// WithLogger stores logger in context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext retrieves logger from context.
// Returns a default nop logger if not found.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return NewNop()
}
