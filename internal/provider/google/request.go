package google

import (
	"net/url"
	"strings"

	"github.com/davidbz/switchboard/internal/domain"
)

const (
	methodGenerate = "generateContent"
	methodStream   = "streamGenerateContent"

	roleUser  = "user"
	roleModel = "model"
)

type generateRequest struct {
	Contents          []content         `json:"contents"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	GenerationConfig  generationConfig  `json:"generationConfig"`
	Tools             []toolDeclaration `json:"tools,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

// part is shared by requests and responses.
type part struct {
	Text             string            `json:"text,omitempty"`
	Thought          bool              `json:"thought,omitempty"`
	ThoughtSignature string            `json:"thoughtSignature,omitempty"`
	InlineData       *inlineData       `json:"inlineData,omitempty"`
	FunctionCall     *functionCall     `json:"functionCall,omitempty"`
	FunctionResponse *functionResponse `json:"functionResponse,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type functionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

type functionResponse struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type generationConfig struct {
	MaxOutputTokens *int            `json:"maxOutputTokens,omitempty"`
	Temperature     *float64        `json:"temperature,omitempty"`
	TopP            *float64        `json:"topP,omitempty"`
	TopK            *int            `json:"topK,omitempty"`
	StopSequences   []string        `json:"stopSequences,omitempty"`
	ThinkingConfig  *thinkingConfig `json:"thinkingConfig,omitempty"`
}

type thinkingConfig struct {
	IncludeThoughts bool `json:"includeThoughts"`
	ThinkingBudget  *int `json:"thinkingBudget,omitempty"`
}

type toolDeclaration struct {
	FunctionDeclarations []functionDeclaration `json:"functionDeclarations"`
}

type functionDeclaration struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Parameters  any    `json:"parameters,omitempty"`
}

// modelURL builds {base}/models/{model}:{method}?key={key}, reusing a
// models segment already present in the base.
func modelURL(base, model, key string, stream bool) string {
	base = strings.TrimRight(base, "/")
	if !strings.Contains(base, "models") {
		base += "/models"
	}

	method := methodGenerate
	if stream {
		method = methodStream
	}

	u := base + "/" + url.PathEscape(model) + ":" + method + "?key=" + url.QueryEscape(key)
	if stream {
		u += "&alt=sse"
	}
	return u
}

func buildRequest(req *domain.Request) generateRequest {
	body := generateRequest{
		Contents: make([]content, 0, len(req.Messages)),
		GenerationConfig: generationConfig{
			MaxOutputTokens: req.MaxTokens,
			Temperature:     req.Temperature,
			TopP:            req.TopP,
			TopK:            req.TopK,
			StopSequences:   req.Stop,
		},
		Tools: convertTools(req.Tools),
	}

	if req.System != "" {
		body.SystemInstruction = &content{Parts: []part{{Text: req.System}}}
	}

	if req.Reasoning {
		body.GenerationConfig.ThinkingConfig = &thinkingConfig{
			IncludeThoughts: true,
			ThinkingBudget:  req.ReasoningBudget,
		}
	}

	// functionResponse parts are keyed by name, so remember which tool each
	// tool_use id referred to.
	toolNames := map[string]string{}
	for _, msg := range req.Messages {
		body.Contents = append(body.Contents, convertMessage(msg, toolNames))
	}

	return body
}

func convertMessage(msg domain.Message, toolNames map[string]string) content {
	role := roleModel
	if msg.Role == domain.RoleUser {
		role = roleUser
	}

	if !msg.Content.IsBlocks() {
		return content{Role: role, Parts: []part{{Text: msg.Content.Text}}}
	}

	parts := make([]part, 0, len(msg.Content.Blocks))
	for _, b := range msg.Content.Blocks {
		switch b.Type {
		case domain.BlockText:
			parts = append(parts, part{Text: b.Text})
		case domain.BlockImage:
			// Only inline sources are accepted; URL and file sources are dropped.
			if b.Source == nil || b.Source.Type != domain.SourceBase64 {
				continue
			}
			parts = append(parts, part{InlineData: &inlineData{MimeType: b.Source.MediaType, Data: b.Source.Data}})
		case domain.BlockToolUse:
			toolNames[b.ID] = b.Name
			args := b.Input
			if args == nil {
				args = map[string]any{}
			}
			parts = append(parts, part{FunctionCall: &functionCall{Name: b.Name, Args: args}})
		case domain.BlockToolResult:
			parts = append(parts, part{FunctionResponse: &functionResponse{
				Name:     toolNames[b.ToolUseID],
				Response: map[string]any{"content": b.Content},
			}})
		case domain.BlockThinking:
			parts = append(parts, part{Text: b.Thinking, Thought: true, ThoughtSignature: b.Signature})
		case domain.BlockError:
		}
	}

	return content{Role: role, Parts: parts}
}

func convertTools(tools []domain.Tool) []toolDeclaration {
	if len(tools) == 0 {
		return nil
	}

	declarations := make([]functionDeclaration, 0, len(tools))
	for _, t := range tools {
		declarations = append(declarations, functionDeclaration{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Schema(),
		})
	}
	return []toolDeclaration{{FunctionDeclarations: declarations}}
}
