package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestFromContext_FallsBackToNop(t *testing.T) {
	l := FromContext(context.Background())
	require.NotNil(t, l)
	l.Info("discarded")
}

func TestWithRunID(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)

	ctx, l := WithRunID(context.Background(), zap.New(core), "run-123")
	l.Info("Starting full sync")
	FromContext(ctx).Info("Loading branches")

	assert.Equal(t, "run-123", GetRunID(ctx))
	require.Equal(t, 2, recorded.Len())
	for _, entry := range recorded.All() {
		assert.Equal(t, "run-123", entry.ContextMap()["run_id"])
	}
}

func TestWithRequestID(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)

	ctx, _ := WithRequestID(context.Background(), zap.New(core), "req-9")
	L(ctx).Info("HTTP Request")

	assert.Equal(t, "req-9", GetRequestID(ctx))
	assert.Empty(t, GetRunID(ctx))
	require.Equal(t, 1, recorded.Len())
	assert.Equal(t, "req-9", recorded.All()[0].ContextMap()["request_id"])
}

func TestWithTraceContext(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	t.Run("no span leaves logger unchanged", func(t *testing.T) {
		assert.Same(t, base, WithTraceContext(context.Background(), base))
	})

	t.Run("valid span adds ids", func(t *testing.T) {
		traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
		spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
		sc := trace.NewSpanContext(trace.SpanContextConfig{
			TraceID:    traceID,
			SpanID:     spanID,
			TraceFlags: trace.FlagsSampled,
		})
		ctx := trace.ContextWithSpanContext(context.Background(), sc)

		WithTraceContext(ctx, base).Info("traced")

		fields := recorded.All()[recorded.Len()-1].ContextMap()
		assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", fields["trace_id"])
		assert.Equal(t, "00f067aa0ba902b7", fields["span_id"])
	})
}
