package google

import (
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/davidbz/switchboard/internal/domain"
	"github.com/davidbz/switchboard/internal/provider/transport"
)

const unknownFinishReason = "unknown"

var errNotObject = errors.New("body is not a JSON object")

type generateResponse struct {
	Candidates    []candidate    `json:"candidates"`
	UsageMetadata *usageMetadata `json:"usageMetadata"`
	ModelVersion  string         `json:"modelVersion"`
	ResponseID    string         `json:"responseId"`
}

type candidate struct {
	Index        int     `json:"index"`
	Content      content `json:"content"`
	FinishReason string  `json:"finishReason"`
}

type usageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
	ThoughtsTokenCount   int `json:"thoughtsTokenCount"`
}

func (u *usageMetadata) toDomain() domain.Usage {
	if u == nil {
		return domain.Usage{}
	}
	return domain.Usage{
		PromptTokens:     u.PromptTokenCount,
		CompletionTokens: u.CandidatesTokenCount,
		TotalTokens:      u.TotalTokenCount,
		ReasoningTokens:  u.ThoughtsTokenCount,
	}
}

func newToolCallID() string {
	return "call_" + uuid.New().String()
}

func (a *Adapter) toResponse(body []byte, requestModel string) (*domain.Response, error) {
	if !gjson.ValidBytes(body) || !gjson.ParseBytes(body).IsObject() {
		return nil, &domain.DecodeError{Provider: a.Name(), Err: errNotObject}
	}

	var decoded generateResponse
	if err := transport.Decode(body, a.Name(), &decoded); err != nil {
		return nil, err
	}

	model := decoded.ModelVersion
	if model == "" {
		model = requestModel
	}

	out := &domain.Response{
		ID:      decoded.ResponseID,
		Model:   model,
		Created: a.now().Unix(),
		Usage:   decoded.UsageMetadata.toDomain(),
		Choices: make([]domain.Choice, 0, len(decoded.Candidates)),
	}

	for i, c := range decoded.Candidates {
		finish := c.FinishReason
		if finish == "" {
			finish = unknownFinishReason
		}
		out.Choices = append(out.Choices, domain.Choice{
			Index:        i,
			Message:      domain.Message{Role: domain.RoleAssistant, Content: toContent(c.Content.Parts)},
			FinishReason: finish,
		})
	}

	// A blocked prompt has no candidates; report the block reason instead.
	if len(out.Choices) == 0 {
		finish := gjson.GetBytes(body, "promptFeedback.blockReason").String()
		if finish == "" {
			finish = unknownFinishReason
		}
		out.Choices = append(out.Choices, domain.Choice{
			Message:      domain.AssistantMessage(""),
			FinishReason: finish,
		})
	}

	return out, nil
}

func toContent(parts []part) domain.Content {
	var (
		text       strings.Builder
		structured bool
		blocks     = make([]domain.ContentBlock, 0, len(parts))
	)

	for _, p := range parts {
		switch {
		case p.FunctionCall != nil:
			structured = true
			args := p.FunctionCall.Args
			if args == nil {
				args = map[string]any{}
			}
			blocks = append(blocks, domain.ToolUseBlock(newToolCallID(), p.FunctionCall.Name, args))
		case p.Thought:
			structured = true
			blocks = append(blocks, domain.ThinkingBlock(p.Text, p.ThoughtSignature))
		case p.Text != "":
			text.WriteString(p.Text)
			blocks = append(blocks, domain.TextBlock(p.Text))
		}
	}

	if !structured {
		return domain.TextContent(text.String())
	}
	return domain.BlockContent(blocks...)
}
