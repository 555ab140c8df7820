package stream_test

import (
	"context"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/switchboard/internal/domain"
	"github.com/davidbz/switchboard/internal/provider/stream"
)

func types(events []domain.ContentEvent) []domain.ContentEventType {
	out := make([]domain.ContentEventType, 0, len(events))
	for _, event := range events {
		out = append(out, event.Type)
	}
	return out
}

// requireBalanced checks that blocks never nest or overlap and that each
// start is closed by its matching end.
func requireBalanced(t *testing.T, events []domain.ContentEvent) {
	t.Helper()

	ends := map[domain.ContentEventType]domain.ContentEventType{
		domain.TextStart:     domain.TextEnd,
		domain.ThinkingStart: domain.ThinkingEnd,
		domain.ToolCallStart: domain.ToolCallEnd,
	}
	deltas := map[domain.ContentEventType]domain.ContentEventType{
		domain.TextDelta:     domain.TextStart,
		domain.ThinkingDelta: domain.ThinkingStart,
		domain.ToolCallDelta: domain.ToolCallStart,
	}

	var open domain.ContentEventType
	for i, event := range events {
		if _, isStart := ends[event.Type]; isStart {
			require.Empty(t, open, "event %d: %s while %s is open", i, event.Type, open)
			open = event.Type
			continue
		}
		if start, isDelta := deltas[event.Type]; isDelta {
			require.Equal(t, start, open, "event %d: %s outside its block", i, event.Type)
			continue
		}
		require.NotEmpty(t, open, "event %d: %s with nothing open", i, event.Type)
		require.Equal(t, ends[open], event.Type, "event %d closes the wrong block", i)
		open = ""
	}
	require.Empty(t, open, "block left open at end")
}

func TestState_Transitions(t *testing.T) {
	t.Run("should open text once and close it", func(t *testing.T) {
		var s stream.State
		var events []domain.ContentEvent
		events = append(events, s.Text("Hel")...)
		events = append(events, s.Text("lo")...)
		events = append(events, s.Close()...)

		require.Equal(t, []domain.ContentEventType{
			domain.TextStart, domain.TextDelta, domain.TextDelta, domain.TextEnd,
		}, types(events))
		require.Equal(t, stream.BlockNone, s.Open())
	})

	t.Run("should synthesise end when switching block kind", func(t *testing.T) {
		var s stream.State
		var events []domain.ContentEvent
		events = append(events, s.Thinking("hmm", "")...)
		events = append(events, s.Text("answer")...)
		events = append(events, s.StartToolCall("call_1", "lookup")...)
		events = append(events, s.Text("more")...)
		events = append(events, s.Close()...)

		require.Equal(t, []domain.ContentEventType{
			domain.ThinkingStart, domain.ThinkingDelta, domain.ThinkingEnd,
			domain.TextStart, domain.TextDelta, domain.TextEnd,
			domain.ToolCallStart, domain.ToolCallEnd,
			domain.TextStart, domain.TextDelta, domain.TextEnd,
		}, types(events))
	})

	t.Run("should close one tool call before starting the next", func(t *testing.T) {
		var s stream.State
		var events []domain.ContentEvent
		events = append(events, s.StartToolCall("a", "one")...)
		events = append(events, s.ToolArgs(`{"x":1}`)...)
		events = append(events, s.StartToolCall("b", "two")...)
		events = append(events, s.Close()...)

		require.Equal(t, []domain.ContentEventType{
			domain.ToolCallStart, domain.ToolCallDelta, domain.ToolCallEnd,
			domain.ToolCallStart, domain.ToolCallEnd,
		}, types(events))
		require.Equal(t, map[string]any{"x": float64(1)}, events[2].Input)
		require.Equal(t, "a", events[2].ToolCallID)
		require.Equal(t, map[string]any{}, events[4].Input)
	})

	t.Run("should accumulate argument fragments", func(t *testing.T) {
		var s stream.State
		s.StartToolCall("call_1", "f")
		s.ToolArgs(`{"a":`)
		s.ToolArgs(`1}`)
		events := s.Close()

		require.Len(t, events, 1)
		require.Equal(t, domain.ToolCallEnd, events[0].Type)
		require.Equal(t, map[string]any{"a": float64(1)}, events[0].Input)
	})

	t.Run("should yield empty object for malformed arguments", func(t *testing.T) {
		var s stream.State
		s.StartToolCall("call_1", "f")
		s.ToolArgs(`{"a":`)
		events := s.Close()

		require.Equal(t, map[string]any{}, events[0].Input)
	})

	t.Run("should drop argument fragments with no tool open", func(t *testing.T) {
		var s stream.State
		require.Empty(t, s.ToolArgs(`{}`))
		require.Empty(t, s.Close())
	})

	t.Run("should fill missing tool identity", func(t *testing.T) {
		var s stream.State
		s.StartToolCall("", "")
		s.FillToolIdentity("call_9", "late")
		events := s.Close()

		require.Equal(t, "call_9", events[0].ToolCallID)
		require.Equal(t, "late", events[0].Name)
	})
}

func TestState_BalancedUnderRandomInput(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 200; round++ {
		var s stream.State
		var events []domain.ContentEvent

		for step := 0; step < 30; step++ {
			switch rng.Intn(6) {
			case 0:
				events = append(events, s.Text("t")...)
			case 1:
				events = append(events, s.Thinking("r", "")...)
			case 2:
				events = append(events, s.StartToolCall("id", "name")...)
			case 3:
				events = append(events, s.ToolArgs("{")...)
			case 4:
				events = append(events, s.OpenText()...)
			case 5:
				events = append(events, s.Close()...)
			}
		}
		events = append(events, s.Close()...)

		requireBalanced(t, events)
	}
}

func TestParseArguments(t *testing.T) {
	cases := map[string]map[string]any{
		``:                {},
		`   `:             {},
		`null`:            {},
		`[1,2]`:           {},
		`"str"`:           {},
		`{"a":`:           {},
		`{"a":1}`:         {"a": float64(1)},
		`{"n":{"k":"v"}}`: {"n": map[string]any{"k": "v"}},
	}

	for raw, want := range cases {
		require.Equal(t, want, stream.ParseArguments(raw), raw)
	}
}

func TestEmitter(t *testing.T) {
	t.Run("should deliver events in order", func(t *testing.T) {
		out := make(chan domain.StreamEvent, 3)
		emitter := stream.NewEmitter(context.Background(), out)

		require.True(t, emitter.Content(
			domain.ContentEvent{Type: domain.TextStart},
			domain.ContentEvent{Type: domain.TextDelta, Text: "x"},
		))
		require.True(t, emitter.Emit(domain.NewStreamStop("stop", domain.Usage{})))
		close(out)

		var got []string
		for event := range out {
			if event.Content != nil {
				got = append(got, string(event.Content.Type))
				continue
			}
			got = append(got, string(event.Type))
		}
		require.Equal(t, "text_start,text_delta,stream_stop", strings.Join(got, ","))
	})

	t.Run("should give up once the context is cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		out := make(chan domain.StreamEvent)
		emitter := stream.NewEmitter(ctx, out)

		done := make(chan bool)
		go func() { done <- emitter.Emit(domain.NewStreamStart("m", "id")) }()

		cancel()
		select {
		case ok := <-done:
			require.False(t, ok)
		case <-time.After(time.Second):
			t.Fatal("emitter did not return after cancellation")
		}
	})
}
