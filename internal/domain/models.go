package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// BlockType discriminates content block variants.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockImage      BlockType = "image"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
	BlockThinking   BlockType = "thinking"
	BlockError      BlockType = "error"
)

// Image source kinds.
const (
	SourceBase64 = "base64"
	SourceURL    = "url"
	SourceFile   = "file"
)

// ImageSource locates image bytes for an image block.
type ImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`
	FileID    string `json:"file_id,omitempty"`
}

// ContentBlock is one element of a structured message body. Type selects
// which of the remaining fields are meaningful.
type ContentBlock struct {
	Type BlockType `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// image
	Source *ImageSource `json:"source,omitempty"`

	// tool_use
	ID    string         `json:"id,omitempty"`
	Name  string         `json:"name,omitempty"`
	Input map[string]any `json:"input,omitempty"`

	// tool_result
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`

	// thinking
	Thinking  string `json:"thinking,omitempty"`
	Signature string `json:"signature,omitempty"`

	// error
	Error string `json:"error,omitempty"`
}

// TextBlock builds a text block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

// ToolUseBlock builds a tool-use block.
func ToolUseBlock(id, name string, input map[string]any) ContentBlock {
	return ContentBlock{Type: BlockToolUse, ID: id, Name: name, Input: input}
}

// ToolResultBlock builds a tool-result block answering the tool-use with the given id.
func ToolResultBlock(toolUseID, content string, isError bool) ContentBlock {
	return ContentBlock{Type: BlockToolResult, ToolUseID: toolUseID, Content: content, IsError: isError}
}

// ThinkingBlock builds a reasoning block.
func ThinkingBlock(thinking, signature string) ContentBlock {
	return ContentBlock{Type: BlockThinking, Thinking: thinking, Signature: signature}
}

// Content is either plain text or an ordered list of blocks. A non-nil
// Blocks slice selects the block form; Text is ignored in that case.
type Content struct {
	Text   string
	Blocks []ContentBlock
}

// TextContent wraps a plain string.
func TextContent(text string) Content {
	return Content{Text: text}
}

// BlockContent wraps an ordered block list.
func BlockContent(blocks ...ContentBlock) Content {
	if blocks == nil {
		blocks = []ContentBlock{}
	}
	return Content{Blocks: blocks}
}

// IsBlocks reports whether the content uses the block-list form.
func (c Content) IsBlocks() bool {
	return c.Blocks != nil
}

// String returns the plain text, or the concatenation of all text blocks.
func (c Content) String() string {
	if !c.IsBlocks() {
		return c.Text
	}

	var sb strings.Builder
	for _, block := range c.Blocks {
		if block.Type == BlockText {
			sb.WriteString(block.Text)
		}
	}
	return sb.String()
}

// MarshalJSON encodes text content as a JSON string and block content as an array.
func (c Content) MarshalJSON() ([]byte, error) {
	if c.IsBlocks() {
		return json.Marshal(c.Blocks)
	}
	return json.Marshal(c.Text)
}

// UnmarshalJSON accepts either a JSON string or an array of blocks.
func (c *Content) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*c = Content{}
		return nil
	}

	switch data[0] {
	case '"':
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
		*c = TextContent(text)
		return nil
	case '[':
		var blocks []ContentBlock
		if err := json.Unmarshal(data, &blocks); err != nil {
			return err
		}
		*c = BlockContent(blocks...)
		return nil
	default:
		return errors.New("content must be a string or an array of blocks")
	}
}

// Message is a single conversational turn.
type Message struct {
	Role    Role    `json:"role"`
	Content Content `json:"content"`
}

// UserMessage builds a user message with plain text content.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: TextContent(text)}
}

// AssistantMessage builds an assistant message with plain text content.
func AssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: TextContent(text)}
}

// Tool is a vendor-neutral tool declaration. Recognised keys are "type",
// "name", "description", "parameters" (or "input_schema") and, for
// declarations already in OpenAI shape, "function".
type Tool map[string]any

// Name returns the declared tool name, looking inside "function" when present.
func (t Tool) Name() string {
	if fn, ok := t["function"].(map[string]any); ok {
		name, _ := fn["name"].(string)
		return name
	}
	name, _ := t["name"].(string)
	return name
}

// Description returns the declared tool description.
func (t Tool) Description() string {
	if fn, ok := t["function"].(map[string]any); ok {
		desc, _ := fn["description"].(string)
		return desc
	}
	desc, _ := t["description"].(string)
	return desc
}

// Schema returns the JSON schema of the tool arguments, accepting either
// "parameters" or "input_schema".
func (t Tool) Schema() any {
	if fn, ok := t["function"].(map[string]any); ok {
		return fn["parameters"]
	}
	if params, ok := t["parameters"]; ok {
		return params
	}
	return t["input_schema"]
}

// Request is the provider-agnostic input to an adapter call.
type Request struct {
	Provider string
	Model    string
	Messages []Message
	System   string

	Temperature *float64
	TopP        *float64
	TopK        *int
	MaxTokens   *int
	Stop        []string

	Tools []Tool

	Reasoning       bool
	ReasoningBudget *int

	Stream bool

	APIKey       string
	APIBase      string
	ExtraHeaders map[string]string
}

// Usage tracks token consumption.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
	ReasoningTokens  int `json:"reasoningTokens"`
}

// Choice is one generated alternative.
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finishReason"`
}

// Response is the unified non-streaming completion result.
type Response struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Created int64    `json:"created"`
	Usage   Usage    `json:"usage"`
	Choices []Choice `json:"choices"`
}

// Text returns the text of the first choice.
func (r *Response) Text() string {
	if r == nil || len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content.String()
}
