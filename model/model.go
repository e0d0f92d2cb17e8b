package model

import (
	"context"

	"github.com/parley-ai/parley/core"
)

// ToolDefinition declaratively exposes a callable tool to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes an individual tool exposed to the model.
// Parameters is a JSON Schema object (draft agnostic, minimal subset expected).
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"` // JSON Schema
}

// Request captures the normalized model input produced by the orchestrator.
type Request struct {
	Instructions string             `json:"instructions,omitempty"` // System prompt
	Messages     []core.ChatMessage `json:"messages"`               // Conversation history, oldest first
	Tools        []ToolDefinition   `json:"tools,omitempty"`
	OutputSchema map[string]any     `json:"output_schema,omitempty"` // JSON schema constraining the answer
	Temperature  *float64           `json:"temperature,omitempty"`
	Thinking     bool               `json:"thinking,omitempty"` // Request reasoning traces where supported
	Stream       bool               `json:"stream,omitempty"`
}

// Response is a (partial or final) chunk emitted by a streaming model,
// normalized across vendors so downstream logic needs no per-provider
// branching. Partial chunks carry deltas; the final chunk carries the
// complete model message plus finish reason and usage.
type Response struct {
	ID            string            `json:"id"`
	Partial       bool              `json:"partial"`
	Delta         string            `json:"delta,omitempty"`          // Incremental answer text
	ThinkingDelta string            `json:"thinking_delta,omitempty"` // Incremental reasoning text
	Message       core.ChatMessage  `json:"message,omitempty"`        // Complete turn; only on the final chunk
	FinishReason  core.FinishReason `json:"finish_reason,omitempty"`
	Usage         *core.Usage       `json:"usage,omitempty"`
}

// Model is the minimal interface required to drive generation. Close releases
// underlying connections and must be called exactly once per acquired model,
// on every exit path.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Close releases provider resources held by this model instance.
	Close() error
}

// Capabilities describes provider behaviors the orchestrator resolution step
// consults when picking a turn strategy. Flags are static per provider.
type Capabilities struct {
	Streaming            bool `json:"streaming"`
	ParallelToolCalls    bool `json:"parallel_tool_calls"`
	TypedOutput          bool `json:"typed_output"`            // Native schema-constrained response mode
	TypedOutputWithTools bool `json:"typed_output_with_tools"` // Schema and tool list accepted in one request
	Thinking             bool `json:"thinking"`
}

// Provider is a factory for Model instances of one vendor.
type Provider interface {
	// Name returns the provider identifier ("openai", "anthropic", ...).
	Name() string

	// Capabilities returns the provider's static capability flags.
	Capabilities() Capabilities

	// NewModel acquires a model instance for the named deployment. The caller
	// owns the returned model and must Close it.
	NewModel(name string) (Model, error)
}
