// Package google adapts the Gemini generateContent protocol to the unified
// model.
package google

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/davidbz/switchboard/internal/domain"
	"github.com/davidbz/switchboard/internal/observability"
	"github.com/davidbz/switchboard/internal/provider/transport"
)

// Adapter implements domain.Adapter for generateContent.
type Adapter struct {
	client *transport.Client
	now    func() time.Time
}

// NewAdapter creates a new Gemini adapter.
func NewAdapter(client *transport.Client) *Adapter {
	return &Adapter{client: client, now: time.Now}
}

// Name returns the provider identifier.
func (a *Adapter) Name() string {
	return domain.ProviderGoogle
}

// Complete sends a single-shot request and maps the reply.
func (a *Adapter) Complete(ctx context.Context, req *domain.Request) (*domain.Response, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	logger := observability.FromContext(ctx)
	logger.Debug("calling generateContent")

	resp, err := a.client.Do(ctx, transport.Request{
		Provider: a.Name(),
		URL:      modelURL(req.APIBase, req.Model, req.APIKey, false),
		Headers:  headers(req),
		Body:     buildRequest(req),
	})
	if err != nil {
		logger.Error("generateContent call failed", observability.Error(err))
		return nil, err
	}

	body, err := transport.ReadBody(resp, a.Name())
	if err != nil {
		return nil, err
	}

	return a.toResponse(body, req.Model)
}

// Stream sends a streamGenerateContent request with SSE framing.
func (a *Adapter) Stream(ctx context.Context, req *domain.Request) (<-chan domain.StreamEvent, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	observability.FromContext(ctx).Debug("calling streamGenerateContent")

	resp, err := a.client.Do(ctx, transport.Request{
		Provider: a.Name(),
		URL:      modelURL(req.APIBase, req.Model, req.APIKey, true),
		Headers:  headers(req),
		Body:     buildRequest(req),
		Stream:   true,
	})
	if err != nil {
		return nil, err
	}

	events := make(chan domain.StreamEvent)
	go a.decodeStream(ctx, resp.Body, req.Model, events)
	return events, nil
}

// The key travels in the query string.
func headers(req *domain.Request) http.Header {
	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	for key, value := range req.ExtraHeaders {
		headers.Set(key, value)
	}
	return headers
}
