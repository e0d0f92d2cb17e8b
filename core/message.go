package core

import (
	"errors"
	"fmt"
	"strings"
)

// Role identifies the author of a conversation turn.
type Role string

const (
	// RoleSystem carries instructions injected ahead of the conversation.
	RoleSystem Role = "system"
	// RoleUser marks caller-authored turns.
	RoleUser Role = "user"
	// RoleModel marks provider-generated turns, including tool call requests.
	RoleModel Role = "model"
)

// ErrMultipleTextParts signals a message carrying more than one text part.
// This is an internal consistency defect of stream consolidation, not a user
// error: callers should treat it as a bug report, never repair it silently.
var ErrMultipleTextParts = errors.New("message contains more than one text part")

// ChatMessage is one conversation turn: a role plus ordered content parts.
// Messages are treated as immutable once yielded on a result stream.
type ChatMessage struct {
	Role  Role   `json:"role"`
	Parts []Part `json:"parts"`
}

// NewUserMessage builds a user turn from prompt text plus optional attachment
// parts (data or link). An empty prompt yields a message with attachments only.
func NewUserMessage(prompt string, attachments ...Part) ChatMessage {
	parts := make([]Part, 0, len(attachments)+1)
	if prompt != "" {
		parts = append(parts, TextPart{Text: prompt})
	}
	parts = append(parts, attachments...)
	return ChatMessage{Role: RoleUser, Parts: parts}
}

// NewModelMessage builds a model turn from arbitrary parts.
func NewModelMessage(parts ...Part) ChatMessage {
	return ChatMessage{Role: RoleModel, Parts: parts}
}

// NewSystemMessage builds a system instruction turn.
func NewSystemMessage(text string) ChatMessage {
	return ChatMessage{Role: RoleSystem, Parts: []Part{TextPart{Text: text}}}
}

// NewToolResultMessage wraps a single tool result as a model-role turn so the
// provider sees the outcome of its own call on the next request.
func NewToolResultMessage(res ToolResult) ChatMessage {
	return ChatMessage{Role: RoleModel, Parts: []Part{ToolResultPart{Result: res}}}
}

// Text returns the message's text content. Multiple fragments are joined in
// order; a consolidated message has at most one.
func (m ChatMessage) Text() string {
	var b strings.Builder
	for _, p := range m.Parts {
		if tp, ok := p.(TextPart); ok {
			b.WriteString(tp.Text)
		}
	}
	return b.String()
}

// ToolCalls returns the tool calls contained in the message preserving order.
func (m ChatMessage) ToolCalls() []ToolCall {
	var calls []ToolCall
	for _, p := range m.Parts {
		if tc, ok := p.(ToolCallPart); ok {
			calls = append(calls, tc.Call)
		}
	}
	return calls
}

// ToolResults returns the tool results contained in the message preserving order.
func (m ChatMessage) ToolResults() []ToolResult {
	var results []ToolResult
	for _, p := range m.Parts {
		if tr, ok := p.(ToolResultPart); ok {
			results = append(results, tr.Result)
		}
	}
	return results
}

// CheckParts reports ErrMultipleTextParts when the message violates the
// single-text-part invariant. Used as a fail-fast guard on every message the
// agent emits or receives.
func (m ChatMessage) CheckParts() error {
	texts := 0
	for _, p := range m.Parts {
		if _, ok := p.(TextPart); ok {
			texts++
		}
	}
	if texts > 1 {
		return fmt.Errorf("%s message with %d text parts: %w", m.Role, texts, ErrMultipleTextParts)
	}
	return nil
}

// Consolidate returns a copy of the message with all text fragments merged
// into a single leading TextPart, preserving the order of non-text parts.
// Providers stream text in fragments; the orchestrator consolidates before a
// message is appended to history or yielded to the caller.
func (m ChatMessage) Consolidate() ChatMessage {
	var text strings.Builder
	rest := make([]Part, 0, len(m.Parts))
	for _, p := range m.Parts {
		if tp, ok := p.(TextPart); ok {
			text.WriteString(tp.Text)
			continue
		}
		rest = append(rest, p)
	}
	parts := make([]Part, 0, len(rest)+1)
	if text.Len() > 0 {
		parts = append(parts, TextPart{Text: text.String()})
	}
	parts = append(parts, rest...)
	return ChatMessage{Role: m.Role, Parts: parts}
}
