package domain

import "context"

// Provider ids understood by the dispatch layer.
const (
	ProviderOpenAI    = "openai"
	ProviderAzure     = "azure"
	ProviderHChat     = "hchat"
	ProviderAnthropic = "anthropic"
	ProviderGoogle    = "google"
)

// Adapter translates the unified model to and from one vendor wire protocol.
type Adapter interface {
	// Complete sends a single-shot request and maps the full reply.
	Complete(ctx context.Context, req *Request) (*Response, error)

	// Stream sends a streaming request and returns the unified event sequence.
	// The channel is closed when the stream ends or ctx is cancelled.
	Stream(ctx context.Context, req *Request) (<-chan StreamEvent, error)

	// Name returns the adapter identifier.
	Name() string
}

// AdapterRegistry hands out cached adapters by provider id.
type AdapterRegistry interface {
	// Get returns the adapter for a provider, constructing it on first use.
	Get(ctx context.Context, provider string) (Adapter, error)

	// List returns the registered provider ids.
	List(ctx context.Context) []string
}

// ProviderResolver maps a model id to the provider that serves it.
type ProviderResolver interface {
	ResolveProvider(model string) (string, error)
}

// EventPublisher publishes events for observability.
type EventPublisher interface {
	// Publish publishes an event with the given type and data.
	Publish(ctx context.Context, eventType string, data map[string]interface{})
}
