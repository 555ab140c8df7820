package stream

import (
	"context"

	"github.com/davidbz/switchboard/internal/domain"
)

// Emitter sends events to a consumer until the context is cancelled.
type Emitter struct {
	ctx context.Context
	out chan<- domain.StreamEvent
}

// NewEmitter creates an emitter writing to out.
func NewEmitter(ctx context.Context, out chan<- domain.StreamEvent) *Emitter {
	return &Emitter{ctx: ctx, out: out}
}

// Emit sends events in order. It returns false as soon as the consumer has
// gone away, in which case the caller must stop decoding.
func (e *Emitter) Emit(events ...domain.StreamEvent) bool {
	for _, event := range events {
		select {
		case e.out <- event:
		case <-e.ctx.Done():
			return false
		}
	}
	return true
}

// Content wraps each content event in a stream_delta and sends it.
func (e *Emitter) Content(events ...domain.ContentEvent) bool {
	for _, content := range events {
		if !e.Emit(domain.NewStreamDelta(content)) {
			return false
		}
	}
	return true
}
