// Package azure adapts OpenAI-style chat completion deployments (Azure
// OpenAI and the gateways that mirror it) to the unified model. One Adapter
// type serves every provider id that speaks this wire protocol.
package azure

import (
	"context"
	"errors"
	"net/http"

	"github.com/davidbz/switchboard/internal/domain"
	"github.com/davidbz/switchboard/internal/observability"
	"github.com/davidbz/switchboard/internal/provider/transport"
)

// Adapter implements domain.Adapter for the chat completions protocol.
type Adapter struct {
	name   string
	client *transport.Client
}

// NewAdapter creates an adapter reporting itself as name.
func NewAdapter(name string, client *transport.Client) *Adapter {
	return &Adapter{name: name, client: client}
}

// Name returns the provider identifier.
func (a *Adapter) Name() string {
	return a.name
}

// Complete sends a single-shot request and maps the reply.
func (a *Adapter) Complete(ctx context.Context, req *domain.Request) (*domain.Response, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	logger := observability.FromContext(ctx)
	logger.Debug("calling chat completions")

	resp, err := a.client.Do(ctx, transport.Request{
		Provider: a.name,
		URL:      deploymentURL(req.APIBase, req.Model),
		Headers:  a.headers(req, false),
		Body:     buildRequest(req, false),
	})
	if err != nil {
		logger.Error("chat completions call failed", observability.Error(err))
		return nil, err
	}

	body, err := transport.ReadBody(resp, a.name)
	if err != nil {
		return nil, err
	}

	out, err := a.toResponse(body, req.Model)
	if err != nil {
		return nil, err
	}

	logger.Debug("chat completions call succeeded",
		observability.Int("prompt_tokens", out.Usage.PromptTokens),
		observability.Int("completion_tokens", out.Usage.CompletionTokens),
	)
	return out, nil
}

// Stream sends a streaming request. Failures before the first byte are
// returned directly; later failures arrive as an error event.
func (a *Adapter) Stream(ctx context.Context, req *domain.Request) (<-chan domain.StreamEvent, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	observability.FromContext(ctx).Debug("calling chat completions stream")

	resp, err := a.client.Do(ctx, transport.Request{
		Provider: a.name,
		URL:      deploymentURL(req.APIBase, req.Model),
		Headers:  a.headers(req, true),
		Body:     buildRequest(req, true),
		Stream:   true,
	})
	if err != nil {
		return nil, err
	}

	events := make(chan domain.StreamEvent)
	go a.decodeStream(ctx, resp.Body, req.Model, events)
	return events, nil
}

func (a *Adapter) headers(req *domain.Request, stream bool) http.Header {
	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	for key, value := range req.ExtraHeaders {
		headers.Set(key, value)
	}
	if req.APIKey != "" {
		headers.Set("Authorization", "Bearer "+req.APIKey)
		headers.Set("api-key", req.APIKey)
	}
	if stream {
		headers.Set("Accept", "text/event-stream")
	}
	return headers
}
