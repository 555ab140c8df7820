package stream

import (
	"encoding/json"
	"strings"

	"github.com/davidbz/switchboard/internal/domain"
)

// Block is the kind of content block currently open in a stream.
type Block int

const (
	BlockNone Block = iota
	BlockText
	BlockThinking
	BlockToolCall
)

func (b Block) String() string {
	switch b {
	case BlockText:
		return "text"
	case BlockThinking:
		return "thinking"
	case BlockToolCall:
		return "tool_call"
	default:
		return "none"
	}
}

// State tracks the single open block of one stream and the argument buffer
// of the open tool call. Every method returns the content events to emit, in
// order, so that a *_start is always closed by exactly one matching *_end
// before a block of another kind (or another tool call) begins.
//
// A State belongs to one stream and must not be shared.
type State struct {
	open     Block
	toolID   string
	toolName string
	args     strings.Builder
}

// Open returns the kind of the open block.
func (s *State) Open() Block {
	return s.open
}

// ToolID returns the id of the open tool call, if any.
func (s *State) ToolID() string {
	if s.open != BlockToolCall {
		return ""
	}
	return s.toolID
}

// OpenText opens a text block unless one is already open.
func (s *State) OpenText() []domain.ContentEvent {
	return s.ensure(BlockText, nil)
}

// OpenThinking opens a thinking block unless one is already open.
func (s *State) OpenThinking() []domain.ContentEvent {
	return s.ensure(BlockThinking, nil)
}

// Text emits a text fragment, opening a text block first when needed.
func (s *State) Text(text string) []domain.ContentEvent {
	return s.ensure(BlockText, []domain.ContentEvent{{Type: domain.TextDelta, Text: text}})
}

// Thinking emits a reasoning fragment, opening a thinking block first when needed.
func (s *State) Thinking(thinking, signature string) []domain.ContentEvent {
	return s.ensure(BlockThinking, []domain.ContentEvent{{
		Type:      domain.ThinkingDelta,
		Thinking:  thinking,
		Signature: signature,
	}})
}

// StartToolCall closes whatever is open and starts a new tool call.
func (s *State) StartToolCall(id, name string) []domain.ContentEvent {
	events := s.Close()

	s.open = BlockToolCall
	s.toolID = id
	s.toolName = name
	s.args.Reset()

	return append(events, domain.ContentEvent{
		Type:       domain.ToolCallStart,
		ToolCallID: id,
		Name:       name,
	})
}

// FillToolIdentity sets the id or name of the open tool call when they were
// not known at start.
func (s *State) FillToolIdentity(id, name string) {
	if s.open != BlockToolCall {
		return
	}
	if s.toolID == "" {
		s.toolID = id
	}
	if s.toolName == "" {
		s.toolName = name
	}
}

// ToolArgs appends an argument fragment to the open tool call. Fragments
// arriving with no tool call open are dropped.
func (s *State) ToolArgs(fragment string) []domain.ContentEvent {
	if s.open != BlockToolCall {
		return nil
	}
	s.args.WriteString(fragment)
	return []domain.ContentEvent{{Type: domain.ToolCallDelta, ToolCallID: s.toolID, Args: fragment}}
}

// Close ends the open block, if any. A tool call's buffered arguments are
// parsed into its end event; a buffer that is not a JSON object yields {}.
func (s *State) Close() []domain.ContentEvent {
	var events []domain.ContentEvent

	switch s.open {
	case BlockText:
		events = append(events, domain.ContentEvent{Type: domain.TextEnd})
	case BlockThinking:
		events = append(events, domain.ContentEvent{Type: domain.ThinkingEnd})
	case BlockToolCall:
		events = append(events, domain.ContentEvent{
			Type:       domain.ToolCallEnd,
			ToolCallID: s.toolID,
			Name:       s.toolName,
			Input:      ParseArguments(s.args.String()),
		})
		s.toolID = ""
		s.toolName = ""
		s.args.Reset()
	case BlockNone:
	}

	s.open = BlockNone
	return events
}

func (s *State) ensure(block Block, tail []domain.ContentEvent) []domain.ContentEvent {
	if s.open == block {
		return tail
	}

	events := s.Close()
	s.open = block

	switch block {
	case BlockText:
		events = append(events, domain.ContentEvent{Type: domain.TextStart})
	case BlockThinking:
		events = append(events, domain.ContentEvent{Type: domain.ThinkingStart})
	case BlockNone, BlockToolCall:
	}

	return append(events, tail...)
}

// ParseArguments decodes a tool-argument buffer into an object. Empty or
// malformed buffers, and JSON values that are not objects, yield an empty map.
func ParseArguments(raw string) map[string]any {
	input := map[string]any{}
	if strings.TrimSpace(raw) == "" {
		return input
	}

	var parsed map[string]any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil || parsed == nil {
		return input
	}
	return parsed
}
