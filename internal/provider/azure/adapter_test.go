package azure_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/switchboard/internal/domain"
	"github.com/davidbz/switchboard/internal/provider/azure"
	"github.com/davidbz/switchboard/internal/provider/transport"
)

type capture struct {
	path    string
	headers http.Header
	body    map[string]any
}

func newServer(t *testing.T, status int, contentType, reply string) (*httptest.Server, *capture) {
	t.Helper()

	got := &capture{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.path = r.URL.Path
		got.headers = r.Header.Clone()
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &got.body)

		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(status)
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(server.Close)
	return server, got
}

func newAdapter() *azure.Adapter {
	return azure.NewAdapter("hchat", transport.NewClient(transport.Config{Timeout: 5}))
}

func collect(t *testing.T, events <-chan domain.StreamEvent) []domain.StreamEvent {
	t.Helper()

	var out []domain.StreamEvent
	for event := range events {
		out = append(out, event)
	}
	return out
}

func contentTypes(events []domain.StreamEvent) []string {
	out := make([]string, 0, len(events))
	for _, event := range events {
		if event.Content != nil {
			out = append(out, string(event.Content.Type))
			continue
		}
		out = append(out, string(event.Type))
	}
	return out
}

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }

func TestAdapter_Complete(t *testing.T) {
	t.Run("should map a plain text reply", func(t *testing.T) {
		reply := `{"id":"r1","model":"gpt-4o","created":1700000000,
			"choices":[{"index":0,"message":{"role":"assistant","content":"Hello World"},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":5,"completion_tokens":2,"total_tokens":7}}`
		server, got := newServer(t, http.StatusOK, "application/json", reply)

		resp, err := newAdapter().Complete(context.Background(), &domain.Request{
			Model:    "gpt-4o",
			Messages: []domain.Message{domain.UserMessage("Say hello")},
			APIKey:   "k",
			APIBase:  server.URL + "/v2/api/",
		})
		require.NoError(t, err)

		require.Equal(t, "r1", resp.ID)
		require.Equal(t, "gpt-4o", resp.Model)
		require.Equal(t, int64(1700000000), resp.Created)
		require.Equal(t, "Hello World", resp.Text())
		require.False(t, resp.Choices[0].Message.Content.IsBlocks())
		require.Equal(t, "stop", resp.Choices[0].FinishReason)
		require.Equal(t, domain.Usage{PromptTokens: 5, CompletionTokens: 2, TotalTokens: 7}, resp.Usage)

		require.Equal(t, "/v2/api/openai/deployments/gpt-4o/chat/completions", got.path)
		require.Equal(t, "Bearer k", got.headers.Get("Authorization"))
		require.Equal(t, "k", got.headers.Get("api-key"))
		require.Equal(t, "application/json", got.headers.Get("Content-Type"))
	})

	t.Run("should map tool calls to tool_use blocks after text", func(t *testing.T) {
		reply := `{"id":"r2","model":"gpt-4o","choices":[{"index":0,"finish_reason":"tool_calls",
			"message":{"role":"assistant","content":"checking","tool_calls":[
				{"id":"call_1","type":"function","function":{"name":"weather","arguments":"{\"city\":\"Seoul\"}"}},
				{"id":"call_2","type":"function","function":{"name":"broken","arguments":"{oops"}}]}}],
			"usage":{"prompt_tokens":1,"completion_tokens":1,"total_tokens":2}}`
		server, _ := newServer(t, http.StatusOK, "application/json", reply)

		resp, err := newAdapter().Complete(context.Background(), &domain.Request{
			Model:    "gpt-4o",
			Messages: []domain.Message{domain.UserMessage("weather?")},
			APIBase:  server.URL,
		})
		require.NoError(t, err)

		blocks := resp.Choices[0].Message.Content.Blocks
		require.Len(t, blocks, 3)
		require.Equal(t, domain.TextBlock("checking"), blocks[0])
		require.Equal(t, domain.ToolUseBlock("call_1", "weather", map[string]any{"city": "Seoul"}), blocks[1])
		require.Equal(t, map[string]any{}, blocks[2].Input)
	})

	t.Run("should treat null content as empty text and read reasoning tokens", func(t *testing.T) {
		reply := `{"id":"r3","model":"o1","choices":[{"index":0,"message":{"role":"assistant","content":null},"finish_reason":"length"}],
			"usage":{"prompt_tokens":3,"completion_tokens":9,"total_tokens":12,"completion_tokens_details":{"reasoning_tokens":8}}}`
		server, _ := newServer(t, http.StatusOK, "application/json", reply)

		resp, err := newAdapter().Complete(context.Background(), &domain.Request{Model: "o1", APIBase: server.URL})
		require.NoError(t, err)
		require.Equal(t, "", resp.Text())
		require.Equal(t, 8, resp.Usage.ReasoningTokens)
	})

	t.Run("should return decode error when choices are missing", func(t *testing.T) {
		server, _ := newServer(t, http.StatusOK, "application/json", `{"id":"x"}`)

		_, err := newAdapter().Complete(context.Background(), &domain.Request{Model: "gpt-4o", APIBase: server.URL})
		require.ErrorIs(t, err, domain.ErrDecode)
	})

	t.Run("should return transport error on non-2xx status", func(t *testing.T) {
		server, _ := newServer(t, http.StatusUnauthorized, "application/json", `{"error":"bad key"}`)

		_, err := newAdapter().Complete(context.Background(), &domain.Request{Model: "gpt-4o", APIBase: server.URL})
		require.ErrorIs(t, err, domain.ErrTransport)
		require.Contains(t, err.Error(), "hchat: API returned status 401")
	})
}

func TestAdapter_RequestBody(t *testing.T) {
	reply := `{"id":"r","choices":[{"index":0,"message":{"content":"ok"},"finish_reason":"stop"}]}`

	t.Run("should send sampling and reasoning fields", func(t *testing.T) {
		server, got := newServer(t, http.StatusOK, "application/json", reply)

		_, err := newAdapter().Complete(context.Background(), &domain.Request{
			Model:        "gpt-4o",
			System:       "be brief",
			Messages:     []domain.Message{domain.UserMessage("hi")},
			MaxTokens:    intPtr(256),
			Temperature:  floatPtr(0.2),
			TopP:         floatPtr(0.9),
			Stop:         []string{"END"},
			Reasoning:    true,
			APIBase:      server.URL + "/openai",
			ExtraHeaders: map[string]string{"X-Tenant": "acme"},
		})
		require.NoError(t, err)

		require.Equal(t, "/openai/deployments/gpt-4o/chat/completions", got.path)
		require.Equal(t, "acme", got.headers.Get("X-Tenant"))
		require.Equal(t, "gpt-4o", got.body["model"])
		require.Equal(t, false, got.body["stream"])
		require.Equal(t, float64(256), got.body["max_completion_tokens"])
		require.Equal(t, 0.2, got.body["temperature"])
		require.Equal(t, 0.9, got.body["top_p"])
		require.Equal(t, []any{"END"}, got.body["stop"])
		require.Equal(t, "high", got.body["reasoning_effort"])

		messages := got.body["messages"].([]any)
		require.Len(t, messages, 2)
		require.Equal(t, map[string]any{"role": "system", "content": "be brief"}, messages[0])
		require.Equal(t, map[string]any{"role": "user", "content": "hi"}, messages[1])
	})

	t.Run("should force temperature for fixed-temperature families", func(t *testing.T) {
		for _, model := range []string{"o1-mini", "gpt-5-mini"} {
			server, got := newServer(t, http.StatusOK, "application/json", reply)

			_, err := newAdapter().Complete(context.Background(), &domain.Request{
				Model:       model,
				Temperature: floatPtr(0.3),
				APIBase:     server.URL,
			})
			require.NoError(t, err)
			require.Equal(t, 1.0, got.body["temperature"], model)
			require.Equal(t, "minimal", got.body["reasoning_effort"], model)
		}
	})

	t.Run("should normalise tool declarations", func(t *testing.T) {
		server, got := newServer(t, http.StatusOK, "application/json", reply)

		schema := map[string]any{"type": "object"}
		_, err := newAdapter().Complete(context.Background(), &domain.Request{
			Model: "gpt-4o",
			Tools: []domain.Tool{
				{"type": "function", "function": map[string]any{"name": "wrapped"}},
				{"name": "flat", "description": "d", "input_schema": schema},
				{"type": "custom", "name": "custom", "parameters": schema},
				{"type": "web_search"},
			},
			APIBase: server.URL,
		})
		require.NoError(t, err)

		tools := got.body["tools"].([]any)
		require.Len(t, tools, 3)
		require.Equal(t, map[string]any{"type": "function", "function": map[string]any{"name": "wrapped"}}, tools[0])
		require.Equal(t, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name": "flat", "description": "d", "parameters": schema, "strict": false,
			},
		}, tools[1])
		require.Equal(t, "custom", tools[2].(map[string]any)["function"].(map[string]any)["name"])
	})

	t.Run("should convert images, tool calls and tool results", func(t *testing.T) {
		server, got := newServer(t, http.StatusOK, "application/json", reply)

		_, err := newAdapter().Complete(context.Background(), &domain.Request{
			Model: "gpt-4o",
			Messages: []domain.Message{
				{Role: domain.RoleUser, Content: domain.BlockContent(
					domain.TextBlock("what is this"),
					domain.ContentBlock{Type: domain.BlockImage, Source: &domain.ImageSource{
						Type: domain.SourceBase64, MediaType: "image/png", Data: "AAAA",
					}},
					domain.ContentBlock{Type: domain.BlockImage, Source: &domain.ImageSource{
						Type: domain.SourceURL, URL: "https://example.com/cat.png",
					}},
				)},
				{Role: domain.RoleAssistant, Content: domain.BlockContent(
					domain.ToolUseBlock("call_1", "lookup", map[string]any{"q": "cat"}),
				)},
				{Role: domain.RoleUser, Content: domain.BlockContent(
					domain.ToolResultBlock("call_1", "a cat", false),
				)},
			},
			APIBase: server.URL,
		})
		require.NoError(t, err)

		messages := got.body["messages"].([]any)
		require.Len(t, messages, 3)

		parts := messages[0].(map[string]any)["content"].([]any)
		require.Equal(t, map[string]any{"type": "text", "text": "what is this"}, parts[0])
		require.Equal(t, map[string]any{
			"type":      "image_url",
			"image_url": map[string]any{"url": "data:image/png;base64,AAAA", "detail": "high"},
		}, parts[1])
		require.Equal(t, "https://example.com/cat.png", parts[2].(map[string]any)["image_url"].(map[string]any)["url"])

		assistant := messages[1].(map[string]any)
		require.Nil(t, assistant["content"])
		call := assistant["tool_calls"].([]any)[0].(map[string]any)
		require.Equal(t, "call_1", call["id"])
		require.Equal(t, "function", call["type"])
		require.Equal(t, map[string]any{"name": "lookup", "arguments": `{"q":"cat"}`}, call["function"])

		require.Equal(t, map[string]any{"role": "tool", "content": "a cat", "tool_call_id": "call_1"}, messages[2])
	})
}

func TestAdapter_Stream(t *testing.T) {
	t.Run("should emit balanced text events and stop", func(t *testing.T) {
		body := strings.Join([]string{
			`data: {"id":"s1","model":"gpt-4o","choices":[{"index":0,"delta":{"role":"assistant","content":""}}]}`,
			`data: {"id":"s1","model":"gpt-4o","choices":[{"index":0,"delta":{"content":"Hel"}}]}`,
			`data: {not json`,
			``,
			`: keep-alive`,
			`data: {"id":"s1","model":"gpt-4o","choices":[{"index":0,"delta":{"content":"lo"},"finish_reason":"stop"}]}`,
			`data: {"id":"s1","model":"gpt-4o","choices":[],"usage":{"prompt_tokens":4,"completion_tokens":2,"total_tokens":6}}`,
			`data: [DONE]`,
			``,
		}, "\n")
		server, got := newServer(t, http.StatusOK, "text/event-stream", body)

		events, err := newAdapter().Stream(context.Background(), &domain.Request{
			Model:    "gpt-4o",
			Messages: []domain.Message{domain.UserMessage("hi")},
			APIBase:  server.URL,
			APIKey:   "k",
		})
		require.NoError(t, err)

		all := collect(t, events)
		require.Equal(t, []string{
			"stream_start", "text_start", "text_delta", "text_delta", "text_end", "stream_stop",
		}, contentTypes(all))

		require.Equal(t, "gpt-4o", all[0].Model)
		require.Equal(t, "s1", all[0].ResponseID)
		require.Equal(t, "Hel", all[2].Content.Text)
		require.Equal(t, "lo", all[3].Content.Text)

		stop := all[len(all)-1]
		require.Equal(t, "stop", stop.FinishReason)
		require.Equal(t, domain.Usage{PromptTokens: 4, CompletionTokens: 2, TotalTokens: 6}, stop.Usage)

		require.Equal(t, "text/event-stream", got.headers.Get("Accept"))
		require.Equal(t, true, got.body["stream"])
	})

	t.Run("should assemble tool call fragments", func(t *testing.T) {
		body := strings.Join([]string{
			`data: {"id":"s2","choices":[{"index":0,"delta":{"role":"assistant"}}]}`,
			`data: {"id":"s2","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_a","function":{"name":"f","arguments":"{\"a\":"}}]}}]}`,
			`data: {"id":"s2","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"1}"}}]}}]}`,
			`data: {"id":"s2","choices":[{"index":0,"delta":{"tool_calls":[{"index":1,"function":{"name":"g","arguments":"{}"}}]},"finish_reason":"tool_calls"}]}`,
			`data: [DONE]`,
		}, "\n")
		server, _ := newServer(t, http.StatusOK, "text/event-stream", body)

		events, err := newAdapter().Stream(context.Background(), &domain.Request{Model: "gpt-4o", APIBase: server.URL})
		require.NoError(t, err)

		all := collect(t, events)
		require.Equal(t, []string{
			"stream_start",
			"tool_call_start", "tool_call_delta", "tool_call_delta", "tool_call_end",
			"tool_call_start", "tool_call_delta", "tool_call_end",
			"stream_stop",
		}, contentTypes(all))

		require.Equal(t, "gpt-4o", all[0].Model)
		require.Equal(t, "call_a", all[1].Content.ToolCallID)
		require.Equal(t, "f", all[1].Content.Name)
		require.Equal(t, map[string]any{"a": float64(1)}, all[4].Content.Input)

		require.True(t, strings.HasPrefix(all[5].Content.ToolCallID, "call_"))
		require.Equal(t, "g", all[7].Content.Name)
		require.Equal(t, "tool_calls", all[8].FinishReason)
		require.Equal(t, domain.Usage{}, all[8].Usage)
	})

	t.Run("should bracket reasoning content as thinking", func(t *testing.T) {
		body := strings.Join([]string{
			`data: {"id":"s3","model":"o1","choices":[{"index":0,"delta":{"role":"assistant","reasoning_content":"think"}}]}`,
			`data: {"id":"s3","model":"o1","choices":[{"index":0,"delta":{"content":"answer"}}]}`,
			`data: [DONE]`,
		}, "\n")
		server, _ := newServer(t, http.StatusOK, "text/event-stream", body)

		events, err := newAdapter().Stream(context.Background(), &domain.Request{Model: "o1", APIBase: server.URL})
		require.NoError(t, err)

		all := collect(t, events)
		require.Equal(t, []string{
			"stream_start",
			"thinking_start", "thinking_delta", "thinking_end",
			"text_start", "text_delta", "text_end",
			"stream_stop",
		}, contentTypes(all))
		require.Equal(t, "think", all[2].Content.Thinking)
		require.Equal(t, "unknown", all[7].FinishReason)
	})

	t.Run("should fail before streaming on non-2xx status", func(t *testing.T) {
		server, _ := newServer(t, http.StatusInternalServerError, "application/json", `boom`)

		_, err := newAdapter().Stream(context.Background(), &domain.Request{Model: "gpt-4o", APIBase: server.URL})
		require.ErrorIs(t, err, domain.ErrTransport)
	})
}
