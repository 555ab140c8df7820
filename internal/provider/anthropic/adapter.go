// Package anthropic adapts the Anthropic Messages protocol to the unified
// model.
package anthropic

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/davidbz/switchboard/internal/domain"
	"github.com/davidbz/switchboard/internal/observability"
	"github.com/davidbz/switchboard/internal/provider/transport"
)

const apiVersion = "2023-06-01"

// Adapter implements domain.Adapter for the Messages protocol.
type Adapter struct {
	client *transport.Client
	now    func() time.Time
}

// NewAdapter creates a new Anthropic adapter.
func NewAdapter(client *transport.Client) *Adapter {
	return &Adapter{client: client, now: time.Now}
}

// Name returns the provider identifier.
func (a *Adapter) Name() string {
	return domain.ProviderAnthropic
}

// Complete sends a single-shot request and maps the reply.
func (a *Adapter) Complete(ctx context.Context, req *domain.Request) (*domain.Response, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	logger := observability.FromContext(ctx)
	logger.Debug("calling messages API")

	resp, err := a.client.Do(ctx, transport.Request{
		Provider: a.Name(),
		URL:      messagesURL(req.APIBase),
		Headers:  headers(req, false),
		Body:     buildRequest(req, false),
	})
	if err != nil {
		logger.Error("messages API call failed", observability.Error(err))
		return nil, err
	}

	body, err := transport.ReadBody(resp, a.Name())
	if err != nil {
		return nil, err
	}

	out, err := a.toResponse(body, req.Model)
	if err != nil {
		return nil, err
	}

	logger.Debug("messages API call succeeded",
		observability.Int("input_tokens", out.Usage.PromptTokens),
		observability.Int("output_tokens", out.Usage.CompletionTokens),
	)
	return out, nil
}

// Stream sends a streaming request and decodes the event stream.
func (a *Adapter) Stream(ctx context.Context, req *domain.Request) (<-chan domain.StreamEvent, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	observability.FromContext(ctx).Debug("calling messages API stream")

	resp, err := a.client.Do(ctx, transport.Request{
		Provider: a.Name(),
		URL:      messagesURL(req.APIBase),
		Headers:  headers(req, true),
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

func headers(req *domain.Request, stream bool) http.Header {
	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	for key, value := range req.ExtraHeaders {
		headers.Set(key, value)
	}
	if req.APIKey != "" {
		headers.Set("Authorization", "Bearer "+req.APIKey)
		headers.Set("x-api-key", req.APIKey)
	}
	headers.Set("anthropic-version", apiVersion)
	if stream {
		headers.Set("Accept", "text/event-stream")
	}
	return headers
}
