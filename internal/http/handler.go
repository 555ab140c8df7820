package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/davidbz/switchboard/internal/capability"
	"github.com/davidbz/switchboard/internal/domain"
	"github.com/davidbz/switchboard/internal/observability"
)

const (
	headerAPIKey         = "X-Api-Key"
	headerUpstreamPrefix = "X-Upstream-"
)

// Dispatcher is the subset of domain.Dispatcher used by the handler.
type Dispatcher interface {
	Complete(ctx context.Context, model string, input any, opts domain.Options) (*domain.Response, error)
	Stream(ctx context.Context, model string, input any, opts domain.Options) (<-chan domain.StreamEvent, error)
}

// Catalog exposes the supported models.
type Catalog interface {
	List() []capability.Model
	Retrieve(id string) (capability.Model, error)
}

// Handler handles HTTP requests.
type Handler struct {
	dispatcher Dispatcher
	catalog    Catalog
}

// NewHandler creates a new HTTP handler (DI constructor).
func NewHandler(dispatcher Dispatcher, catalog Catalog) *Handler {
	return &Handler{
		dispatcher: dispatcher,
		catalog:    catalog,
	}
}

// MessageRequest is the body accepted by POST /v1/messages. Input is either a
// JSON string, one message object or an array of messages.
type MessageRequest struct {
	Model           string          `json:"model"`
	Input           json.RawMessage `json:"input"`
	Stream          bool            `json:"stream"`
	System          string          `json:"system,omitempty"`
	Temperature     *float64        `json:"temperature,omitempty"`
	TopP            *float64        `json:"top_p,omitempty"`
	TopK            *int            `json:"top_k,omitempty"`
	MaxTokens       *int            `json:"max_tokens,omitempty"`
	Stop            []string        `json:"stop,omitempty"`
	Tools           []domain.Tool   `json:"tools,omitempty"`
	Reasoning       bool            `json:"reasoning,omitempty"`
	ReasoningBudget *int            `json:"reasoning_budget,omitempty"`
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// HandleMessages processes completion requests in both single-shot and
// streaming form.
func (h *Handler) HandleMessages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Early validation.
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", fmt.Sprintf("invalid request body: %v", err))
		return
	}

	input, err := decodeInput(req.Input)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	opts := requestOptions(r, &req)

	logger := observability.FromContext(ctx)
	logger.Info("message request received",
		zap.String("model", req.Model),
		zap.Bool("stream", req.Stream),
	)

	if req.Stream {
		h.handleStream(ctx, w, req.Model, input, opts)
		return
	}

	response, err := h.dispatcher.Complete(ctx, req.Model, input, opts)
	if err != nil {
		logger.Error("completion failed", zap.Error(err))
		writeDispatchError(w, err)
		return
	}

	writeJSON(ctx, w, http.StatusOK, response)
}

func (h *Handler) handleStream(
	ctx context.Context,
	w http.ResponseWriter,
	model string,
	input any,
	opts domain.Options,
) {
	logger := observability.FromContext(ctx)

	flusher, ok := w.(http.Flusher)
	if !ok {
		logger.Error("streaming not supported")
		writeError(w, http.StatusInternalServerError, "internal_error", "streaming not supported")
		return
	}

	events, err := h.dispatcher.Stream(ctx, model, input, opts)
	if err != nil {
		logger.Error("stream failed", zap.Error(err))
		writeDispatchError(w, err)
		return
	}

	// Set headers for SSE.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			logger.Error("failed to encode stream event", zap.Error(err))
			return
		}

		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()

		switch event.Type {
		case domain.EventError:
			logger.Error("stream event error", zap.Error(event.Err))
			return
		case domain.EventStreamStop:
			logger.Info("stream completed", zap.String("finish_reason", event.FinishReason))
		}
	}
}

// HandleModels lists the capability table.
func (h *Handler) HandleModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, http.StatusOK, map[string]any{
		"data": h.catalog.List(),
	})
}

// HandleModel returns one capability entry by id.
func (h *Handler) HandleModel(w http.ResponseWriter, r *http.Request) {
	model, err := h.catalog.Retrieve(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, domain.ErrModelNotFound) {
			writeError(w, http.StatusNotFound, "not_found", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	writeJSON(r.Context(), w, http.StatusOK, model)
}

// HandleHealth handles health check requests.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
	}); err != nil {
		// Already written status, can't change it, just log.
		return
	}
}

// decodeInput maps the raw input field onto one of the forms the
// dispatcher accepts.
func decodeInput(raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, errors.New("input is required")
	}

	parsed := gjson.ParseBytes(raw)
	switch {
	case parsed.Type == gjson.String:
		return parsed.String(), nil
	case parsed.IsArray():
		var messages []domain.Message
		if err := json.Unmarshal(raw, &messages); err != nil {
			return nil, fmt.Errorf("invalid input messages: %w", err)
		}
		return messages, nil
	case parsed.IsObject():
		var message domain.Message
		if err := json.Unmarshal(raw, &message); err != nil {
			return nil, fmt.Errorf("invalid input message: %w", err)
		}
		return message, nil
	default:
		return nil, errors.New("input must be a string, a message or an array of messages")
	}
}

// requestOptions collects per-call options from the body and headers.
// X-Upstream-<Name> headers are forwarded upstream as <Name>.
func requestOptions(r *http.Request, req *MessageRequest) domain.Options {
	opts := domain.Options{
		System:          req.System,
		Temperature:     req.Temperature,
		TopP:            req.TopP,
		TopK:            req.TopK,
		MaxTokens:       req.MaxTokens,
		Stop:            req.Stop,
		Tools:           req.Tools,
		Reasoning:       req.Reasoning,
		ReasoningBudget: req.ReasoningBudget,
		APIKey:          r.Header.Get(headerAPIKey),
	}

	for name, values := range r.Header {
		if len(values) == 0 || !strings.HasPrefix(name, headerUpstreamPrefix) {
			continue
		}
		upstream := strings.TrimPrefix(name, headerUpstreamPrefix)
		if upstream == "" {
			continue
		}
		if opts.ExtraHeaders == nil {
			opts.ExtraHeaders = make(map[string]string)
		}
		opts.ExtraHeaders[upstream] = values[0]
	}

	return opts
}

func dispatchStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrUnsupportedModel), errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, domain.ErrTransport), errors.Is(err, domain.ErrDecode):
		return http.StatusBadGateway, "upstream_error"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func writeDispatchError(w http.ResponseWriter, err error) {
	status, kind := dispatchStatus(err)
	writeError(w, status, kind, err.Error())
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: errorDetail{Type: kind, Message: message}})
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		observability.FromContext(ctx).Error("failed to encode response", zap.Error(err))
	}
}
