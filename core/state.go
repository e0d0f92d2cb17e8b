package core

import (
	"context"
	"fmt"
)

// Tool is the orchestration-facing contract for a caller-supplied tool. The
// core never mutates tools; it looks them up by name and invokes them with
// decoded arguments. Implementations live in the tool package or with the
// caller.
type Tool interface {
	// Name returns the unique identifier for this tool within a turn.
	Name() string

	// Description is surfaced to the model to guide tool selection.
	Description() string

	// Parameters returns a JSON schema describing the expected arguments.
	Parameters() map[string]any

	// Call executes the tool. Errors are captured per call and converted to
	// error-bearing tool results; they never abort the turn.
	Call(ctx context.Context, args map[string]any) (any, error)
}

// TurnPhase tracks where a turn is in its lifecycle.
type TurnPhase int

const (
	// TurnPending means no model request has been issued yet.
	TurnPending TurnPhase = iota
	// TurnIterating means a model request is in flight or about to be.
	TurnIterating
	// TurnExecutingTools means the last model message contains calls whose
	// results have not all been appended to history yet.
	TurnExecutingTools
	// TurnComplete is terminal.
	TurnComplete
)

// String returns the phase name for logging.
func (p TurnPhase) String() string {
	switch p {
	case TurnPending:
		return "pending"
	case TurnIterating:
		return "iterating"
	case TurnExecutingTools:
		return "tool-executing"
	case TurnComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// StreamingState is the mutable session state of one SendStream invocation.
// It is exclusively owned by that invocation and must never be shared across
// concurrent sends. History is append-only during the turn, the done flag is
// monotonic, and the tool map is immutable for the turn's lifetime, which
// makes the state safe to resume from after a caller-level retry.
type StreamingState struct {
	history []ChatMessage
	tools   map[string]Tool
	done    bool
	last    *ChatResult
	phase   TurnPhase
	callSeq int
	pending map[string]ToolCall // unmatched call id -> call
}

// NewStreamingState seeds state with the conversation so far (including the
// new user turn) and the tools available for this turn.
func NewStreamingState(history []ChatMessage, tools map[string]Tool) *StreamingState {
	h := make([]ChatMessage, len(history))
	copy(h, history)
	if tools == nil {
		tools = map[string]Tool{}
	}
	return &StreamingState{
		history: h,
		tools:   tools,
		phase:   TurnPending,
		pending: map[string]ToolCall{},
	}
}

// History returns the conversation snapshot. The returned slice must not be
// mutated; the state appends to its own copy.
func (s *StreamingState) History() []ChatMessage { return s.history }

// Tools returns the immutable tool map for this turn.
func (s *StreamingState) Tools() map[string]Tool { return s.tools }

// Tool looks up a tool by name.
func (s *StreamingState) Tool(name string) (Tool, bool) {
	t, ok := s.tools[name]
	return t, ok
}

// Done reports whether the turn has completed.
func (s *StreamingState) Done() bool { return s.done }

// Phase returns the current turn phase.
func (s *StreamingState) Phase() TurnPhase { return s.phase }

// Last returns the most recent result seen, used for id propagation across
// chunks of the same turn.
func (s *StreamingState) Last() *ChatResult { return s.last }

// SetLast records the most recent result.
func (s *StreamingState) SetLast(res ChatResult) { s.last = &res }

// NextCallID returns a synthetic, per-turn-stable tool call id for providers
// whose API does not supply one, keeping result matching unambiguous.
func (s *StreamingState) NextCallID() string {
	id := fmt.Sprintf("call_%d", s.callSeq)
	s.callSeq++
	return id
}

// Append adds messages to history and advances the phase machine: a model
// message with calls moves the turn to tool-executing; once every pending
// call has a matching result the turn returns to iterating.
func (s *StreamingState) Append(msgs ...ChatMessage) {
	for _, m := range msgs {
		s.history = append(s.history, m)
		for _, call := range m.ToolCalls() {
			s.pending[call.ID] = call
		}
		for _, res := range m.ToolResults() {
			delete(s.pending, res.ID)
		}
	}
	if s.done {
		return
	}
	if len(s.pending) > 0 {
		s.phase = TurnExecutingTools
	} else {
		s.phase = TurnIterating
	}
}

// PendingCalls returns the calls still awaiting a result, in no particular order.
func (s *StreamingState) PendingCalls() []ToolCall {
	calls := make([]ToolCall, 0, len(s.pending))
	for _, c := range s.pending {
		calls = append(calls, c)
	}
	return calls
}

// ToolComplete reports whether every call has a matching result.
func (s *StreamingState) ToolComplete() bool { return len(s.pending) == 0 }

// MarkDone transitions the turn to its terminal phase. The flag only ever
// moves false to true.
func (s *StreamingState) MarkDone() {
	s.done = true
	s.phase = TurnComplete
}
