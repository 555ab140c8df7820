package observability

import (
	"context"
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

type contextKey string

const (
	traceIDBytes = 16 // W3C trace id size in bytes
	spanIDBytes  = 8  // W3C span id size in bytes
)

const (
	// TraceIDKey holds the trace id of the inbound request.
	TraceIDKey contextKey = "trace_id"

	// SpanIDKey holds the span id of the inbound request.
	SpanIDKey contextKey = "span_id"

	// RequestIDKey holds the unique request identifier.
	RequestIDKey contextKey = "request_id"

	// ProviderKey holds the provider id resolved for this request.
	ProviderKey contextKey = "provider"

	// ModelKey holds the model id for this request.
	ModelKey contextKey = "model"
)

// WithTraceID injects trace ID into context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithSpanID injects span ID into context.
func WithSpanID(ctx context.Context, spanID string) context.Context {
	return context.WithValue(ctx, SpanIDKey, spanID)
}

// WithRequestID injects request ID into context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithProvider injects the provider id into context.
func WithProvider(ctx context.Context, provider string) context.Context {
	return context.WithValue(ctx, ProviderKey, provider)
}

// WithModel injects the model id into context.
func WithModel(ctx context.Context, model string) context.Context {
	return context.WithValue(ctx, ModelKey, model)
}

func GetTraceID(ctx context.Context) string { return stringValue(ctx, TraceIDKey) }

func GetSpanID(ctx context.Context) string { return stringValue(ctx, SpanIDKey) }

func GetRequestID(ctx context.Context) string { return stringValue(ctx, RequestIDKey) }

func GetProvider(ctx context.Context) string { return stringValue(ctx, ProviderKey) }

func GetModel(ctx context.Context) string { return stringValue(ctx, ModelKey) }

func stringValue(ctx context.Context, key contextKey) string {
	if value, ok := ctx.Value(key).(string); ok {
		return value
	}
	return ""
}

// GenerateTraceID returns 32 random hex chars.
func GenerateTraceID() string {
	return randomHex(traceIDBytes)
}

// GenerateSpanID returns 16 random hex chars.
func GenerateSpanID() string {
	return randomHex(spanIDBytes)
}

// GenerateRequestID generates a unique request identifier (UUID).
func GenerateRequestID() string {
	return uuid.New().String()
}

func randomHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// Fall back to uuid bytes.
		id := uuid.New()
		return hex.EncodeToString(id[:])[:n*2]
	}
	return hex.EncodeToString(buf)
}
