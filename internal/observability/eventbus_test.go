package observability_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/davidbz/switchboard/internal/observability"
)

type recordingPublisher struct {
	mu    sync.Mutex
	types []string
}

func (r *recordingPublisher) Publish(_ context.Context, eventType string, _ map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = append(r.types, eventType)
}

func TestEventBus_Publish(t *testing.T) {
	t.Run("should log the event with context ids", func(t *testing.T) {
		core, logs := observer.New(zapcore.InfoLevel)
		bus := observability.NewEventBus(zap.New(core))

		ctx := observability.WithRequestID(context.Background(), "req-1")
		ctx = observability.WithTraceID(ctx, "trace-1")
		bus.Publish(ctx, "dispatch.completed", map[string]interface{}{
			"model":        "gpt-4o",
			"total_tokens": 7,
		})

		entries := logs.FilterMessage("event published").All()
		require.Len(t, entries, 1)

		fields := entries[0].ContextMap()
		require.Equal(t, "dispatch.completed", fields["event"])
		require.Equal(t, "gpt-4o", fields["model"])
		require.Equal(t, "req-1", fields["request_id"])
		require.Equal(t, "trace-1", fields["trace_id"])
	})

	t.Run("should tolerate a nil bus", func(t *testing.T) {
		var bus *observability.EventBus
		require.NotPanics(t, func() {
			bus.Publish(context.Background(), "stream.stopped", nil)
		})
	})
}

func TestFanout_Publish(t *testing.T) {
	t.Run("should deliver to every publisher in order", func(t *testing.T) {
		first, second := &recordingPublisher{}, &recordingPublisher{}
		fanout := observability.Fanout{first, nil, second}

		fanout.Publish(context.Background(), "stream.failed", map[string]interface{}{})

		require.Equal(t, []string{"stream.failed"}, first.types)
		require.Equal(t, []string{"stream.failed"}, second.types)
	})
}

func TestInitLogger(t *testing.T) {
	t.Run("should reject unknown levels", func(t *testing.T) {
		_, err := observability.InitLogger(&observability.Config{Level: "loud"})
		require.Error(t, err)
	})

	t.Run("should build a development logger", func(t *testing.T) {
		logger, err := observability.InitLogger(&observability.Config{Level: "debug", Development: true})
		require.NoError(t, err)
		require.True(t, logger.Core().Enabled(zapcore.DebugLevel))

		observability.SetLogger(zap.NewNop())
	})
}

func TestFromContext(t *testing.T) {
	t.Run("should attach provider and model fields", func(t *testing.T) {
		core, logs := observer.New(zapcore.InfoLevel)
		observability.SetLogger(zap.New(core))
		t.Cleanup(func() { observability.SetLogger(zap.NewNop()) })

		ctx := observability.WithProvider(context.Background(), "anthropic")
		ctx = observability.WithModel(ctx, "claude-sonnet-4")
		observability.FromContext(ctx).Info("hello")

		entries := logs.All()
		require.Len(t, entries, 1)
		fields := entries[0].ContextMap()
		require.Equal(t, "anthropic", fields["provider"])
		require.Equal(t, "claude-sonnet-4", fields["model"])
	})
}
