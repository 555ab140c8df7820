package azure

import (
	"errors"

	"github.com/openai/openai-go"
	"github.com/tidwall/gjson"

	"github.com/davidbz/switchboard/internal/domain"
	"github.com/davidbz/switchboard/internal/provider/stream"
	"github.com/davidbz/switchboard/internal/provider/transport"
)

var errMissingChoices = errors.New("choices is not an array")

func (a *Adapter) toResponse(body []byte, requestModel string) (*domain.Response, error) {
	if !gjson.ValidBytes(body) || !gjson.GetBytes(body, "choices").IsArray() {
		return nil, &domain.DecodeError{Provider: a.name, Err: errMissingChoices}
	}

	var completion openai.ChatCompletion
	if err := transport.Decode(body, a.name, &completion); err != nil {
		return nil, err
	}

	model := completion.Model
	if model == "" {
		model = requestModel
	}

	out := &domain.Response{
		ID:      completion.ID,
		Model:   model,
		Created: completion.Created,
		Usage: domain.Usage{
			PromptTokens:     int(completion.Usage.PromptTokens),
			CompletionTokens: int(completion.Usage.CompletionTokens),
			TotalTokens:      int(completion.Usage.TotalTokens),
			ReasoningTokens:  int(completion.Usage.CompletionTokensDetails.ReasoningTokens),
		},
		Choices: make([]domain.Choice, 0, len(completion.Choices)),
	}

	for _, choice := range completion.Choices {
		out.Choices = append(out.Choices, domain.Choice{
			Index:        int(choice.Index),
			Message:      toMessage(choice.Message),
			FinishReason: string(choice.FinishReason),
		})
	}

	return out, nil
}

// toMessage keeps plain text replies as a string and switches to blocks
// when the model called tools.
func toMessage(msg openai.ChatCompletionMessage) domain.Message {
	if len(msg.ToolCalls) == 0 {
		return domain.Message{Role: domain.RoleAssistant, Content: domain.TextContent(msg.Content)}
	}

	blocks := make([]domain.ContentBlock, 0, len(msg.ToolCalls)+1)
	if msg.Content != "" {
		blocks = append(blocks, domain.TextBlock(msg.Content))
	}
	for _, call := range msg.ToolCalls {
		blocks = append(blocks, domain.ToolUseBlock(
			call.ID,
			call.Function.Name,
			stream.ParseArguments(call.Function.Arguments),
		))
	}

	return domain.Message{Role: domain.RoleAssistant, Content: domain.BlockContent(blocks...)}
}
