package anthropic

import (
	"strings"

	"github.com/davidbz/switchboard/internal/domain"
)

const (
	defaultMaxTokens      = 4096
	defaultThinkingBudget = 1024
)

type messagesRequest struct {
	Model         string    `json:"model"`
	Messages      []message `json:"messages"`
	MaxTokens     int       `json:"max_tokens"`
	Stream        bool      `json:"stream"`
	System        string    `json:"system,omitempty"`
	Temperature   *float64  `json:"temperature,omitempty"`
	TopP          *float64  `json:"top_p,omitempty"`
	TopK          *int      `json:"top_k,omitempty"`
	StopSequences []string  `json:"stop_sequences,omitempty"`
	Tools         []tool    `json:"tools,omitempty"`
	Thinking      *thinking `json:"thinking,omitempty"`
}

type thinking struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens"`
}

type tool struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	InputSchema any    `json:"input_schema"`
}

type message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type block struct {
	Type string `json:"type"`

	Text string `json:"text,omitempty"`

	Source *imageSource `json:"source,omitempty"`

	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Input any    `json:"input,omitempty"`

	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`

	Thinking  string `json:"thinking,omitempty"`
	Signature string `json:"signature,omitempty"`
}

type imageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

func messagesURL(base string) string {
	return strings.TrimRight(base, "/") + "/claude/messages"
}

func buildRequest(req *domain.Request, stream bool) messagesRequest {
	maxTokens := defaultMaxTokens
	if req.MaxTokens != nil && *req.MaxTokens > 0 {
		maxTokens = *req.MaxTokens
	}

	body := messagesRequest{
		Model:         req.Model,
		Messages:      make([]message, 0, len(req.Messages)),
		MaxTokens:     maxTokens,
		Stream:        stream,
		System:        req.System,
		Temperature:   req.Temperature,
		TopP:          req.TopP,
		TopK:          req.TopK,
		StopSequences: req.Stop,
		Tools:         convertTools(req.Tools),
	}

	for _, msg := range req.Messages {
		if msg.Role == domain.RoleSystem {
			continue
		}
		body.Messages = append(body.Messages, convertMessage(msg))
	}

	// Sampling parameters are rejected alongside extended thinking.
	if req.Reasoning {
		body.Thinking = &thinking{Type: "enabled", BudgetTokens: thinkingBudget(req.ReasoningBudget, maxTokens)}
		body.Temperature = nil
		body.TopP = nil
		body.TopK = nil
	}

	return body
}

// thinkingBudget must stay below max_tokens; a budget that would reach it is
// replaced by half the ceiling.
func thinkingBudget(requested *int, maxTokens int) int {
	budget := defaultThinkingBudget
	if requested != nil && *requested > 0 {
		budget = *requested
	}
	if budget >= maxTokens {
		budget = maxTokens / 2
	}
	return budget
}

func convertMessage(msg domain.Message) message {
	role := string(domain.RoleUser)
	if msg.Role == domain.RoleAssistant {
		role = string(domain.RoleAssistant)
	}

	if !msg.Content.IsBlocks() {
		return message{Role: role, Content: msg.Content.Text}
	}

	blocks := make([]block, 0, len(msg.Content.Blocks))
	for _, b := range msg.Content.Blocks {
		switch b.Type {
		case domain.BlockText:
			blocks = append(blocks, block{Type: "text", Text: b.Text})
		case domain.BlockImage:
			// Only inline sources are accepted; URL and file sources are dropped.
			if b.Source == nil || b.Source.Type != domain.SourceBase64 {
				continue
			}
			blocks = append(blocks, block{Type: "image", Source: &imageSource{
				Type:      domain.SourceBase64,
				MediaType: b.Source.MediaType,
				Data:      b.Source.Data,
			}})
		case domain.BlockToolUse:
			input := b.Input
			if input == nil {
				input = map[string]any{}
			}
			blocks = append(blocks, block{Type: "tool_use", ID: b.ID, Name: b.Name, Input: input})
		case domain.BlockToolResult:
			blocks = append(blocks, block{
				Type:      "tool_result",
				ToolUseID: b.ToolUseID,
				Content:   b.Content,
				IsError:   b.IsError,
			})
		case domain.BlockThinking:
			blocks = append(blocks, block{Type: "thinking", Thinking: b.Thinking, Signature: b.Signature})
		case domain.BlockError:
		}
	}

	return message{Role: role, Content: blocks}
}

func convertTools(tools []domain.Tool) []tool {
	if len(tools) == 0 {
		return nil
	}

	converted := make([]tool, 0, len(tools))
	for _, t := range tools {
		schema := t.Schema()
		if schema == nil {
			schema = map[string]any{"type": "object"}
		}
		converted = append(converted, tool{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: schema,
		})
	}
	return converted
}
