package domain

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/davidbz/switchboard/internal/observability"
)

// Lifecycle event types published by the dispatcher.
const (
	EventDispatchCompleted = "dispatch.completed"
	EventDispatchFailed    = "dispatch.failed"
	EventStreamStopped     = "stream.stopped"
	EventStreamFailed      = "stream.failed"
)

// Options are per-call settings layered over the dispatcher defaults.
type Options struct {
	System      string
	Temperature *float64
	TopP        *float64
	TopK        *int
	MaxTokens   *int
	Stop        []string
	Tools       []Tool

	Reasoning       bool
	ReasoningBudget *int

	APIKey       string
	APIBase      string
	ExtraHeaders map[string]string
}

// Defaults seed every request built by the dispatcher.
type Defaults struct {
	APIKey       string
	APIBase      string
	ExtraHeaders map[string]string
}

// Dispatcher resolves a model to its adapter and forwards calls to it.
type Dispatcher struct {
	resolver  ProviderResolver
	adapters  AdapterRegistry
	publisher EventPublisher
	defaults  Defaults
}

// NewDispatcher creates a new dispatcher (DI constructor).
func NewDispatcher(
	resolver ProviderResolver,
	adapters AdapterRegistry,
	publisher EventPublisher,
	defaults Defaults,
) *Dispatcher {
	return &Dispatcher{
		resolver:  resolver,
		adapters:  adapters,
		publisher: publisher,
		defaults:  defaults,
	}
}

// NormalizeInput turns free-form input into a message list. A string becomes
// a single user message; message lists pass through unchanged.
func NormalizeInput(input any) ([]Message, error) {
	switch v := input.(type) {
	case string:
		return []Message{UserMessage(v)}, nil
	case []Message:
		return v, nil
	case Message:
		return []Message{v}, nil
	case nil:
		return nil, fmt.Errorf("%w: input cannot be nil", ErrInvalidInput)
	default:
		return nil, fmt.Errorf("%w: unsupported input type %T", ErrInvalidInput, input)
	}
}

// ResolveProvider returns the provider id serving a model.
func (d *Dispatcher) ResolveProvider(model string) (string, error) {
	if model == "" {
		return "", fmt.Errorf("%w: model cannot be empty", ErrInvalidInput)
	}
	return d.resolver.ResolveProvider(model)
}

// Complete handles a single-shot completion.
func (d *Dispatcher) Complete(ctx context.Context, model string, input any, opts Options) (*Response, error) {
	ctx, adapter, req, err := d.prepare(ctx, model, input, opts, false)
	if err != nil {
		return nil, err
	}

	logger := observability.FromContext(ctx)
	started := time.Now()

	response, err := adapter.Complete(ctx, req)
	if err != nil {
		logger.Error("completion failed", observability.Error(err))
		d.publish(ctx, EventDispatchFailed, map[string]interface{}{
			"provider": req.Provider,
			"model":    model,
			"error":    err.Error(),
		})
		return nil, fmt.Errorf("completion failed: %w", err)
	}

	logger.Info("completion succeeded",
		observability.Int("total_tokens", response.Usage.TotalTokens),
		observability.Duration("elapsed", time.Since(started)),
	)
	d.publish(ctx, EventDispatchCompleted, map[string]interface{}{
		"provider":      req.Provider,
		"model":         model,
		"total_tokens":  response.Usage.TotalTokens,
		"finish_reason": firstFinishReason(response),
		"elapsed_ms":    time.Since(started).Milliseconds(),
	})

	return response, nil
}

// Stream handles a streaming completion. The returned channel closes when the
// upstream stream ends or ctx is cancelled.
func (d *Dispatcher) Stream(ctx context.Context, model string, input any, opts Options) (<-chan StreamEvent, error) {
	ctx, adapter, req, err := d.prepare(ctx, model, input, opts, true)
	if err != nil {
		return nil, err
	}

	events, err := adapter.Stream(ctx, req)
	if err != nil {
		observability.FromContext(ctx).Error("stream failed", observability.Error(err))
		d.publish(ctx, EventDispatchFailed, map[string]interface{}{
			"provider": req.Provider,
			"model":    model,
			"error":    err.Error(),
		})
		return nil, fmt.Errorf("failed to stream from provider: %w", err)
	}

	out := make(chan StreamEvent)
	go d.relay(ctx, req, events, out)

	return out, nil
}

// relay forwards adapter events and publishes the stream outcome.
func (d *Dispatcher) relay(ctx context.Context, req *Request, events <-chan StreamEvent, out chan<- StreamEvent) {
	defer close(out)

	for event := range events {
		switch event.Type {
		case EventStreamStop:
			d.publish(ctx, EventStreamStopped, map[string]interface{}{
				"provider":      req.Provider,
				"model":         req.Model,
				"finish_reason": event.FinishReason,
				"total_tokens":  event.Usage.TotalTokens,
			})
		case EventError:
			errMsg := ""
			if event.Err != nil {
				errMsg = event.Err.Error()
			}
			d.publish(ctx, EventStreamFailed, map[string]interface{}{
				"provider": req.Provider,
				"model":    req.Model,
				"error":    errMsg,
			})
		}

		select {
		case out <- event:
		case <-ctx.Done():
			return
		}
	}
}

func (d *Dispatcher) prepare(
	ctx context.Context,
	model string,
	input any,
	opts Options,
	stream bool,
) (context.Context, Adapter, *Request, error) {
	messages, err := NormalizeInput(input)
	if err != nil {
		return ctx, nil, nil, err
	}

	provider, err := d.ResolveProvider(model)
	if err != nil {
		return ctx, nil, nil, err
	}

	ctx = observability.WithProvider(ctx, provider)
	ctx = observability.WithModel(ctx, model)

	adapter, err := d.adapters.Get(ctx, provider)
	if err != nil {
		return ctx, nil, nil, fmt.Errorf("provider routing failed: %w", err)
	}

	observability.FromContext(ctx).Info("request dispatched",
		observability.String("adapter", adapter.Name()),
		observability.Bool("stream", stream),
	)

	return ctx, adapter, d.buildRequest(provider, model, messages, opts, stream), nil
}

// buildRequest merges per-call options over the configured defaults.
func (d *Dispatcher) buildRequest(provider, model string, messages []Message, opts Options, stream bool) *Request {
	req := &Request{
		Provider:        provider,
		Model:           model,
		Messages:        messages,
		System:          opts.System,
		Temperature:     opts.Temperature,
		TopP:            opts.TopP,
		TopK:            opts.TopK,
		MaxTokens:       opts.MaxTokens,
		Stop:            opts.Stop,
		Tools:           opts.Tools,
		Reasoning:       opts.Reasoning,
		ReasoningBudget: opts.ReasoningBudget,
		Stream:          stream,
		APIKey:          d.defaults.APIKey,
		APIBase:         d.defaults.APIBase,
	}

	if opts.APIKey != "" {
		req.APIKey = opts.APIKey
	}
	if opts.APIBase != "" {
		req.APIBase = opts.APIBase
	}

	if len(d.defaults.ExtraHeaders) > 0 || len(opts.ExtraHeaders) > 0 {
		req.ExtraHeaders = make(map[string]string, len(d.defaults.ExtraHeaders)+len(opts.ExtraHeaders))
		maps.Copy(req.ExtraHeaders, d.defaults.ExtraHeaders)
		maps.Copy(req.ExtraHeaders, opts.ExtraHeaders)
	}

	return req
}

func (d *Dispatcher) publish(ctx context.Context, eventType string, data map[string]interface{}) {
	if d.publisher == nil {
		return
	}
	d.publisher.Publish(ctx, eventType, data)
}

func firstFinishReason(resp *Response) string {
	if len(resp.Choices) == 0 {
		return ""
	}
	return resp.Choices[0].FinishReason
}
