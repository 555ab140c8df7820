package google

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/tidwall/gjson"

	"github.com/davidbz/switchboard/internal/domain"
	"github.com/davidbz/switchboard/internal/observability"
	"github.com/davidbz/switchboard/internal/provider/stream"
)

type streamDecoder struct {
	model   string
	emit    *stream.Emitter
	state   stream.State
	started bool

	finish string
	usage  *usageMetadata
}

func (a *Adapter) decodeStream(ctx context.Context, body io.ReadCloser, model string, out chan<- domain.StreamEvent) {
	defer close(out)
	defer body.Close()

	logger := observability.FromContext(ctx)
	d := &streamDecoder{
		model:  model,
		emit:   stream.NewEmitter(ctx, out),
		finish: unknownFinishReason,
	}

	reader := stream.NewReader(body)
	for {
		data, err := reader.Next()
		if errors.Is(err, stream.ErrDone) || errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			logger.Warn("generateContent stream interrupted", observability.Error(err))
			d.emit.Emit(domain.NewStreamError(&domain.TransportError{Provider: a.Name(), Err: err}))
			return
		}

		if vendorErr := gjson.GetBytes(data, "error"); vendorErr.IsObject() {
			err := errors.New(vendorErr.Get("message").String())
			d.emit.Emit(domain.NewStreamError(&domain.TransportError{
				Provider:   a.Name(),
				StatusCode: int(vendorErr.Get("code").Int()),
				Body:       vendorErr.Raw,
				Err:        err,
			}))
			return
		}

		var chunk generateResponse
		if err := json.Unmarshal(data, &chunk); err != nil {
			continue
		}

		if !d.chunk(chunk) {
			return
		}
	}

	if !d.start("", "") {
		return
	}
	if !d.emit.Content(d.state.Close()...) {
		return
	}
	d.emit.Emit(domain.NewStreamStop(d.finish, d.usage.toDomain()))
}

func (d *streamDecoder) chunk(chunk generateResponse) bool {
	if !d.start(chunk.ModelVersion, chunk.ResponseID) {
		return false
	}

	if chunk.UsageMetadata != nil {
		d.usage = chunk.UsageMetadata
	}

	if len(chunk.Candidates) == 0 {
		return true
	}

	c := chunk.Candidates[0]
	if c.FinishReason != "" {
		d.finish = c.FinishReason
	}

	var events []domain.ContentEvent
	for _, p := range c.Content.Parts {
		switch {
		case p.FunctionCall != nil:
			// Gemini delivers whole calls, so each one opens and closes at once.
			events = append(events, d.state.StartToolCall(newToolCallID(), p.FunctionCall.Name)...)
			events = append(events, d.state.ToolArgs(encodeArgs(p.FunctionCall.Args))...)
			events = append(events, d.state.Close()...)
		case p.Thought:
			events = append(events, d.state.Thinking(p.Text, p.ThoughtSignature)...)
		case p.Text != "":
			events = append(events, d.state.Text(p.Text)...)
		}
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

// encodeArgs renders function-call arguments, falling back to an empty object.
func encodeArgs(args map[string]any) string {
	if args == nil {
		return "{}"
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(raw)
}
