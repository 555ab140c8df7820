package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedModel indicates that no capability entry matches a model id.
	ErrUnsupportedModel = errors.New("unsupported model")

	// ErrUnsupportedProvider indicates that a provider id has no adapter.
	ErrUnsupportedProvider = errors.New("unsupported provider")

	// ErrTransport indicates a network failure or a non-2xx upstream status.
	ErrTransport = errors.New("transport error")

	// ErrDecode indicates an upstream body that does not have the expected shape.
	ErrDecode = errors.New("decode error")

	// ErrModelNotFound is returned by the models accessor for unknown ids.
	ErrModelNotFound = errors.New("model not found")

	// ErrInvalidInput indicates caller input that cannot be normalised into messages.
	ErrInvalidInput = errors.New("invalid input")
)

// UnsupportedModelError names the offending model id.
func UnsupportedModelError(model string) error {
	return fmt.Errorf("%w: %s", ErrUnsupportedModel, model)
}

// UnsupportedProviderError names the offending provider id.
func UnsupportedProviderError(provider string) error {
	return fmt.Errorf("%w: %s", ErrUnsupportedProvider, provider)
}

// TransportError describes a failed outbound HTTP exchange. StatusCode is
// zero when no response was received.
type TransportError struct {
	Provider   string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: API returned status %d: %s", e.Provider, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s: request failed: %v", e.Provider, e.Err)
}

// Unwrap exposes both the ErrTransport sentinel and the underlying cause.
func (e *TransportError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrTransport}
	}
	return []error{ErrTransport, e.Err}
}

// DecodeError describes an upstream body that could not be mapped.
type DecodeError struct {
	Provider string
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: failed to decode response: %v", e.Provider, e.Err)
}

// Unwrap exposes both the ErrDecode sentinel and the underlying cause.
func (e *DecodeError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrDecode}
	}
	return []error{ErrDecode, e.Err}
}
