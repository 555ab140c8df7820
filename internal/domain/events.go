package domain

import "encoding/json"

// EventType is the top-level discriminant of a StreamEvent.
type EventType string

const (
	EventStreamStart EventType = "stream_start"
	EventStreamDelta EventType = "stream_delta"
	EventStreamStop  EventType = "stream_stop"
	EventError       EventType = "error"
)

// ContentEventType is the discriminant of a ContentEvent.
type ContentEventType string

const (
	TextStart     ContentEventType = "text_start"
	TextDelta     ContentEventType = "text_delta"
	TextEnd       ContentEventType = "text_end"
	ThinkingStart ContentEventType = "thinking_start"
	ThinkingDelta ContentEventType = "thinking_delta"
	ThinkingEnd   ContentEventType = "thinking_end"
	ToolCallStart ContentEventType = "tool_call_start"
	ToolCallDelta ContentEventType = "tool_call_delta"
	ToolCallEnd   ContentEventType = "tool_call_end"
)

// ContentEvent is the payload of a stream_delta.
type ContentEvent struct {
	Type ContentEventType `json:"type"`

	Text string `json:"text,omitempty"`

	Thinking  string `json:"thinking,omitempty"`
	Signature string `json:"signature,omitempty"`

	ToolCallID string         `json:"toolCallId,omitempty"`
	Name       string         `json:"name,omitempty"`
	Args       string         `json:"args,omitempty"`
	Input      map[string]any `json:"input,omitempty"`
}

// MarshalJSON always writes "input" on tool_call_end, even when empty.
func (e ContentEvent) MarshalJSON() ([]byte, error) {
	type alias ContentEvent
	if e.Type != ToolCallEnd {
		return json.Marshal(alias(e))
	}

	input := e.Input
	if input == nil {
		input = map[string]any{}
	}
	return json.Marshal(struct {
		alias
		Input map[string]any `json:"input"`
	}{alias(e), input})
}

// StreamEvent is one element of a unified stream. Which fields are set
// depends on Type:
//   - stream_start: Model, ResponseID
//   - stream_delta: Content
//   - stream_stop:  FinishReason, Usage
//   - error:        Err
type StreamEvent struct {
	Type EventType

	Model      string
	ResponseID string

	Content *ContentEvent

	FinishReason string
	Usage        Usage

	Err error
}

// NewStreamStart builds a stream_start event.
func NewStreamStart(model, responseID string) StreamEvent {
	return StreamEvent{Type: EventStreamStart, Model: model, ResponseID: responseID}
}

// NewStreamDelta wraps a content event.
func NewStreamDelta(content ContentEvent) StreamEvent {
	return StreamEvent{Type: EventStreamDelta, Content: &content}
}

// NewStreamStop builds a stream_stop event.
func NewStreamStop(finishReason string, usage Usage) StreamEvent {
	return StreamEvent{Type: EventStreamStop, FinishReason: finishReason, Usage: usage}
}

// NewStreamError builds an error event.
func NewStreamError(err error) StreamEvent {
	return StreamEvent{Type: EventError, Err: err}
}

// MarshalJSON renders the event in its wire shape:
// {"type":..., "data":{...}} for start/stop/error and {"type":..., "content":{...}} for deltas.
func (e StreamEvent) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case EventStreamStart:
		return json.Marshal(map[string]any{
			"type": e.Type,
			"data": map[string]any{"model": e.Model, "responseId": e.ResponseID},
		})
	case EventStreamDelta:
		return json.Marshal(map[string]any{"type": e.Type, "content": e.Content})
	case EventStreamStop:
		return json.Marshal(map[string]any{
			"type": e.Type,
			"data": map[string]any{"finishReason": e.FinishReason, "usage": e.Usage},
		})
	default:
		message := ""
		if e.Err != nil {
			message = e.Err.Error()
		}
		return json.Marshal(map[string]any{
			"type": EventError,
			"data": map[string]any{"message": message},
		})
	}
}
