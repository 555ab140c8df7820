package anthropic

import (
	"errors"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/davidbz/switchboard/internal/domain"
	"github.com/davidbz/switchboard/internal/provider/transport"
)

const unknownStopReason = "unknown"

var errMissingContent = errors.New("content is not an array")

type messagesResponse struct {
	ID         string          `json:"id"`
	Model      string          `json:"model"`
	Content    []responseBlock `json:"content"`
	StopReason string          `json:"stop_reason"`
	Usage      usage           `json:"usage"`
}

type responseBlock struct {
	Type      string         `json:"type"`
	Text      string         `json:"text"`
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Input     map[string]any `json:"input"`
	Thinking  string         `json:"thinking"`
	Signature string         `json:"signature"`
}

type usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

func (u usage) toDomain() domain.Usage {
	return domain.Usage{
		PromptTokens:     u.InputTokens,
		CompletionTokens: u.OutputTokens,
		TotalTokens:      u.InputTokens + u.OutputTokens,
	}
}

func (a *Adapter) toResponse(body []byte, requestModel string) (*domain.Response, error) {
	if !gjson.ValidBytes(body) || !gjson.GetBytes(body, "content").IsArray() {
		return nil, &domain.DecodeError{Provider: a.Name(), Err: errMissingContent}
	}

	var decoded messagesResponse
	if err := transport.Decode(body, a.Name(), &decoded); err != nil {
		return nil, err
	}

	model := decoded.Model
	if model == "" {
		model = requestModel
	}
	stopReason := decoded.StopReason
	if stopReason == "" {
		stopReason = unknownStopReason
	}

	return &domain.Response{
		ID:      decoded.ID,
		Model:   model,
		Created: a.now().Unix(),
		Usage:   decoded.Usage.toDomain(),
		Choices: []domain.Choice{{
			Index:        0,
			Message:      domain.Message{Role: domain.RoleAssistant, Content: toContent(decoded.Content)},
			FinishReason: stopReason,
		}},
	}, nil
}

// toContent returns a plain string for text-only replies and a block list
// once tool use or thinking is involved.
func toContent(blocks []responseBlock) domain.Content {
	var (
		text       strings.Builder
		structured bool
		out        = make([]domain.ContentBlock, 0, len(blocks))
	)

	for _, b := range blocks {
		switch b.Type {
		case "text":
			text.WriteString(b.Text)
			out = append(out, domain.TextBlock(b.Text))
		case "tool_use":
			structured = true
			input := b.Input
			if input == nil {
				input = map[string]any{}
			}
			out = append(out, domain.ToolUseBlock(b.ID, b.Name, input))
		case "thinking":
			structured = true
			out = append(out, domain.ThinkingBlock(b.Thinking, b.Signature))
		}
	}

	if !structured {
		return domain.TextContent(text.String())
	}
	return domain.BlockContent(out...)
}
