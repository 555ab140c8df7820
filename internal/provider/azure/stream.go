package azure

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/google/uuid"
	"github.com/openai/openai-go"
	"github.com/tidwall/gjson"

	"github.com/davidbz/switchboard/internal/domain"
	"github.com/davidbz/switchboard/internal/observability"
	"github.com/davidbz/switchboard/internal/provider/stream"
)

const unknownFinishReason = "unknown"

// streamDecoder folds chat completion chunks into unified events.
type streamDecoder struct {
	model   string
	emit    *stream.Emitter
	state   stream.State
	started bool

	toolIndex int64
	finish    string
	usage     domain.Usage
}

func (a *Adapter) decodeStream(ctx context.Context, body io.ReadCloser, model string, out chan<- domain.StreamEvent) {
	defer close(out)
	defer body.Close()

	logger := observability.FromContext(ctx)
	d := &streamDecoder{
		model:     model,
		emit:      stream.NewEmitter(ctx, out),
		toolIndex: -1,
		finish:    unknownFinishReason,
	}

	reader := stream.NewReader(body)
	for {
		data, err := reader.Next()
		if errors.Is(err, stream.ErrDone) || errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			logger.Warn("chat completions stream interrupted", observability.Error(err))
			d.emit.Emit(domain.NewStreamError(&domain.TransportError{Provider: a.name, Err: err}))
			return
		}

		if !d.chunk(data) {
			return
		}
	}

	d.finishStream()
}

// chunk handles one payload. It returns false once the consumer is gone.
func (d *streamDecoder) chunk(data []byte) bool {
	var chunk openai.ChatCompletionChunk
	if err := json.Unmarshal(data, &chunk); err != nil {
		return true
	}

	if usage := gjson.GetBytes(data, "usage"); usage.IsObject() {
		d.usage = domain.Usage{
			PromptTokens:     int(usage.Get("prompt_tokens").Int()),
			CompletionTokens: int(usage.Get("completion_tokens").Int()),
			TotalTokens:      int(usage.Get("total_tokens").Int()),
			ReasoningTokens:  int(usage.Get("completion_tokens_details.reasoning_tokens").Int()),
		}
	}

	if len(chunk.Choices) == 0 {
		return true
	}

	choice := chunk.Choices[0]
	if !d.started && choice.Delta.Role != "" {
		if !d.start(chunk.Model, chunk.ID) {
			return false
		}
	}

	var events []domain.ContentEvent

	if reasoning := gjson.GetBytes(data, "choices.0.delta.reasoning_content").String(); reasoning != "" {
		events = append(events, d.state.Thinking(reasoning, "")...)
	}

	if choice.Delta.Content != "" {
		events = append(events, d.state.Text(choice.Delta.Content)...)
	}

	for _, call := range choice.Delta.ToolCalls {
		if d.state.Open() != stream.BlockToolCall || call.Index != d.toolIndex {
			id := call.ID
			if id == "" {
				id = "call_" + uuid.New().String()
			}
			d.toolIndex = call.Index
			events = append(events, d.state.StartToolCall(id, call.Function.Name)...)
		} else {
			d.state.FillToolIdentity(call.ID, call.Function.Name)
		}

		if call.Function.Arguments != "" {
			events = append(events, d.state.ToolArgs(call.Function.Arguments)...)
		}
	}

	if choice.FinishReason != "" {
		d.finish = string(choice.FinishReason)
	}

	if len(events) == 0 {
		return true
	}
	if !d.start(chunk.Model, chunk.ID) {
		return false
	}
	return d.emit.Content(events...)
}

// start emits stream_start once. Vendors that omit the role delta still get
// a start before their first content.
func (d *streamDecoder) start(model, id string) bool {
	if d.started {
		return true
	}
	d.started = true

	if model == "" {
		model = d.model
	}
	return d.emit.Emit(domain.NewStreamStart(model, id))
}

func (d *streamDecoder) finishStream() {
	if !d.start("", "") {
		return
	}
	if !d.emit.Content(d.state.Close()...) {
		return
	}
	d.emit.Emit(domain.NewStreamStop(d.finish, d.usage))
}
