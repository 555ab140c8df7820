package azure

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/davidbz/switchboard/internal/domain"
)

const (
	imageDetail       = "high"
	effortReasoning   = "high"
	effortNoReasoning = "minimal"
)

// Model families that only accept the default temperature.
var fixedTemperaturePrefixes = []string{"o1", "gpt-5"}

type chatRequest struct {
	Model               string         `json:"model"`
	Messages            []chatMessage  `json:"messages"`
	Stream              bool           `json:"stream"`
	StreamOptions       *streamOptions `json:"stream_options,omitempty"`
	MaxCompletionTokens *int           `json:"max_completion_tokens,omitempty"`
	Temperature         *float64       `json:"temperature,omitempty"`
	TopP                *float64       `json:"top_p,omitempty"`
	Stop                []string       `json:"stop,omitempty"`
	Tools               []any          `json:"tools,omitempty"`
	ReasoningEffort     string         `json:"reasoning_effort,omitempty"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type chatMessage struct {
	Role       string     `json:"role"`
	Content    any        `json:"content"`
	ToolCalls  []toolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type toolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function toolCallFunction `json:"function"`
}

type toolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type functionTool struct {
	Type     string         `json:"type"`
	Function functionSchema `json:"function"`
}

type functionSchema struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Parameters  any    `json:"parameters,omitempty"`
	Strict      bool   `json:"strict"`
}

// deploymentURL builds {base}/openai/deployments/{model}/chat/completions,
// skipping the openai segment when the base already names it.
func deploymentURL(base, model string) string {
	base = strings.TrimRight(base, "/") + "/"
	if !strings.Contains(strings.ToLower(base), "openai") {
		base += "openai/"
	}
	return base + "deployments/" + url.PathEscape(model) + "/chat/completions"
}

func buildRequest(req *domain.Request, stream bool) chatRequest {
	messages := make([]chatMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, chatMessage{Role: string(domain.RoleSystem), Content: req.System})
	}
	for _, msg := range req.Messages {
		messages = append(messages, convertMessage(msg)...)
	}

	body := chatRequest{
		Model:               req.Model,
		Messages:            messages,
		Stream:              stream,
		MaxCompletionTokens: req.MaxTokens,
		Temperature:         req.Temperature,
		TopP:                req.TopP,
		Stop:                req.Stop,
		Tools:               convertTools(req.Tools),
		ReasoningEffort:     effortNoReasoning,
	}

	if stream {
		body.StreamOptions = &streamOptions{IncludeUsage: true}
	}

	if hasFixedTemperature(req.Model) {
		one := 1.0
		body.Temperature = &one
	}

	if req.Reasoning {
		body.ReasoningEffort = effortReasoning
	}

	return body
}

func hasFixedTemperature(model string) bool {
	for _, prefix := range fixedTemperaturePrefixes {
		if strings.HasPrefix(model, prefix) {
			return true
		}
	}
	return false
}

// convertMessage maps one unified message to one or more chat messages.
// Tool results become separate tool-role messages placed before the
// remaining parts of the turn.
func convertMessage(msg domain.Message) []chatMessage {
	if !msg.Content.IsBlocks() {
		return []chatMessage{{Role: string(msg.Role), Content: msg.Content.Text}}
	}

	var (
		parts   []contentPart
		calls   []toolCall
		results []chatMessage
	)

	for _, block := range msg.Content.Blocks {
		switch block.Type {
		case domain.BlockText:
			parts = append(parts, contentPart{Type: "text", Text: block.Text})
		case domain.BlockImage:
			if part, ok := convertImage(block.Source); ok {
				parts = append(parts, part)
			}
		case domain.BlockToolUse:
			calls = append(calls, toolCall{
				ID:   block.ID,
				Type: "function",
				Function: toolCallFunction{
					Name:      block.Name,
					Arguments: encodeArguments(block.Input),
				},
			})
		case domain.BlockToolResult:
			results = append(results, chatMessage{
				Role:       string(domain.RoleTool),
				Content:    block.Content,
				ToolCallID: block.ToolUseID,
			})
		case domain.BlockThinking, domain.BlockError:
		}
	}

	out := results
	switch {
	case len(calls) > 0:
		var content any
		if len(parts) > 0 {
			content = parts
		}
		out = append(out, chatMessage{Role: string(msg.Role), Content: content, ToolCalls: calls})
	case len(parts) > 0:
		out = append(out, chatMessage{Role: string(msg.Role), Content: parts})
	case len(results) == 0:
		out = append(out, chatMessage{Role: string(msg.Role), Content: ""})
	}
	return out
}

func convertImage(source *domain.ImageSource) (contentPart, bool) {
	if source == nil {
		return contentPart{}, false
	}

	switch source.Type {
	case domain.SourceBase64:
		mediaType := source.MediaType
		if mediaType == "" {
			mediaType = "image/jpeg"
		}
		return contentPart{
			Type:     "image_url",
			ImageURL: &imageURL{URL: fmt.Sprintf("data:%s;base64,%s", mediaType, source.Data), Detail: imageDetail},
		}, true
	case domain.SourceURL:
		return contentPart{
			Type:     "image_url",
			ImageURL: &imageURL{URL: source.URL, Detail: imageDetail},
		}, true
	default:
		return contentPart{}, false
	}
}

// convertTools keeps function declarations already in chat shape and
// rebuilds flat ones. Declarations of other types are dropped.
func convertTools(tools []domain.Tool) []any {
	if len(tools) == 0 {
		return nil
	}

	converted := make([]any, 0, len(tools))
	for _, tool := range tools {
		kind, _ := tool["type"].(string)
		if kind != "" && kind != "function" && kind != "custom" {
			continue
		}

		if fn, ok := tool["function"]; ok {
			converted = append(converted, map[string]any{"type": "function", "function": fn})
			continue
		}

		converted = append(converted, functionTool{
			Type: "function",
			Function: functionSchema{
				Name:        tool.Name(),
				Description: tool.Description(),
				Parameters:  tool.Schema(),
				Strict:      false,
			},
		})
	}

	if len(converted) == 0 {
		return nil
	}
	return converted
}

func encodeArguments(input map[string]any) string {
	if input == nil {
		return "{}"
	}
	raw, err := json.Marshal(input)
	if err != nil {
		return "{}"
	}
	return string(raw)
}
