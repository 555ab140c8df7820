package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/davidbz/switchboard/internal/domain"
	"github.com/davidbz/switchboard/internal/observability"
	"github.com/davidbz/switchboard/internal/provider/stream"
)

type streamEvent struct {
	Type string `json:"type"`

	Message *struct {
		ID    string `json:"id"`
		Model string `json:"model"`
		Usage usage  `json:"usage"`
	} `json:"message"`

	ContentBlock *responseBlock `json:"content_block"`

	Delta *struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		PartialJSON string `json:"partial_json"`
		Thinking    string `json:"thinking"`
		Signature   string `json:"signature"`
		StopReason  string `json:"stop_reason"`
	} `json:"delta"`

	Usage *usage `json:"usage"`

	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

type streamDecoder struct {
	provider string
	model    string
	emit     *stream.Emitter
	state    stream.State
	started  bool

	stopReason string
	usage      usage
}

func (a *Adapter) decodeStream(ctx context.Context, body io.ReadCloser, model string, out chan<- domain.StreamEvent) {
	defer close(out)
	defer body.Close()

	logger := observability.FromContext(ctx)
	d := &streamDecoder{
		provider:   a.Name(),
		model:      model,
		emit:       stream.NewEmitter(ctx, out),
		stopReason: unknownStopReason,
	}

	reader := stream.NewReader(body)
	for {
		data, err := reader.Next()
		if errors.Is(err, stream.ErrDone) || errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			logger.Warn("messages stream interrupted", observability.Error(err))
			d.emit.Emit(domain.NewStreamError(&domain.TransportError{Provider: d.provider, Err: err}))
			return
		}

		var event streamEvent
		if err := json.Unmarshal(data, &event); err != nil {
			continue
		}

		done, ok := d.handle(event)
		if !ok || done {
			return
		}
	}

	// Body ended without message_stop.
	d.stop()
}

// handle applies one vendor event. done reports a terminal event; ok is
// false once the consumer has gone away.
func (d *streamDecoder) handle(event streamEvent) (done, ok bool) {
	switch event.Type {
	case "message_start":
		id, model := "", ""
		if event.Message != nil {
			id, model = event.Message.ID, event.Message.Model
			d.usage.InputTokens = event.Message.Usage.InputTokens
			d.usage.OutputTokens = event.Message.Usage.OutputTokens
		}
		return false, d.start(model, id)

	case "content_block_start":
		if event.ContentBlock == nil {
			return false, true
		}
		return false, d.content(d.openBlock(*event.ContentBlock))

	case "content_block_delta":
		if event.Delta == nil {
			return false, true
		}
		var events []domain.ContentEvent
		switch event.Delta.Type {
		case "text_delta":
			events = d.state.Text(event.Delta.Text)
		case "input_json_delta":
			events = d.state.ToolArgs(event.Delta.PartialJSON)
		case "thinking_delta":
			events = d.state.Thinking(event.Delta.Thinking, "")
		case "signature_delta":
			events = d.state.Thinking("", event.Delta.Signature)
		}
		return false, d.content(events)

	case "content_block_stop":
		return false, d.content(d.state.Close())

	case "message_delta":
		if event.Delta != nil && event.Delta.StopReason != "" {
			d.stopReason = event.Delta.StopReason
		}
		if event.Usage != nil {
			d.usage.OutputTokens = event.Usage.OutputTokens
			if event.Usage.InputTokens > 0 {
				d.usage.InputTokens = event.Usage.InputTokens
			}
		}
		return false, true

	case "message_stop":
		d.stop()
		return true, true

	case "error":
		err := errors.New("stream error")
		if event.Error != nil {
			err = fmt.Errorf("%s: %s", event.Error.Type, event.Error.Message)
		}
		d.emit.Emit(domain.NewStreamError(&domain.TransportError{Provider: d.provider, Err: err}))
		return true, true

	default:
		// ping and unknown event types
		return false, true
	}
}

func (d *streamDecoder) openBlock(b responseBlock) []domain.ContentEvent {
	switch b.Type {
	case "text":
		events := d.state.OpenText()
		if b.Text != "" {
			events = append(events, d.state.Text(b.Text)...)
		}
		return events
	case "thinking":
		events := d.state.OpenThinking()
		if b.Thinking != "" {
			events = append(events, d.state.Thinking(b.Thinking, "")...)
		}
		return events
	case "tool_use":
		return d.state.StartToolCall(b.ID, b.Name)
	default:
		return nil
	}
}

func (d *streamDecoder) content(events []domain.ContentEvent) bool {
	if len(events) == 0 {
		return true
	}
	if !d.start("", "") {
		return false
	}
	return d.emit.Content(events...)
}

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

func (d *streamDecoder) stop() {
	if !d.start("", "") {
		return
	}
	if !d.emit.Content(d.state.Close()...) {
		return
	}
	d.emit.Emit(domain.NewStreamStop(d.stopReason, d.usage.toDomain()))
}
