// Package orchestrator drives one conversation turn against a model:
// issuing requests, forwarding streamed deltas, detecting and executing tool
// calls, and deciding whether the turn continues. Provider quirks around
// typed output are absorbed by specialized variants so the caller always sees
// one uniform result stream.
package orchestrator

import (
	"context"

	"github.com/parley-ai/parley/core"
	"github.com/parley-ai/parley/logging"
	"github.com/parley-ai/parley/model"
)

// Orchestrator is the strategy driving one turn's iteration and
// tool-execution logic.
//
// The agent loop calls Initialize once, then ProcessIteration repeatedly
// until the state reports done, then Finalize exactly once regardless of how
// the loop exited. ProcessIteration runs exactly one request/response cycle
// and yields zero or more result chunks; tool results for every call in the
// model's message are appended to state before the channels close.
type Orchestrator interface {
	// Initialize performs one-time setup before the loop.
	Initialize(state *core.StreamingState)

	// ProcessIteration runs one model iteration. The returned channels are
	// closed when the iteration completes; an error on the second channel is
	// terminal for the turn.
	ProcessIteration(ctx context.Context, m model.Model, state *core.StreamingState, outputSchema map[string]any) (<-chan core.ChatResult, <-chan error)

	// Finalize performs guaranteed cleanup after the loop.
	Finalize(state *core.StreamingState)
}

// Options configure orchestrator construction.
type Options struct {
	// Instructions is the system prompt forwarded on every request.
	Instructions string

	// Temperature overrides the provider default when non-nil.
	Temperature *float64

	// Thinking requests reasoning traces where the provider supports them.
	Thinking bool

	// MaxParallelTools bounds concurrent tool executions within one model
	// turn. Values below 1 fall back to the default.
	MaxParallelTools int

	// Logger receives structured execution events; NoOpLogger when nil.
	Logger logging.Logger
}

// DefaultMaxParallelTools bounds tool concurrency when not configured.
const DefaultMaxParallelTools = 4

func (o *Options) normalize() {
	if o.MaxParallelTools < 1 {
		o.MaxParallelTools = DefaultMaxParallelTools
	}
	if o.Logger == nil {
		o.Logger = logging.NoOpLogger{}
	}
}

// Factory produces a fresh Orchestrator per send. Strategy selection happens
// once, at resolve time; instantiation per send keeps variant-internal state
// (the two-phase machine) from leaking across concurrent invocations.
type Factory func() Orchestrator

// Resolve picks the orchestrator variant matching the provider's
// capabilities:
//
//   - no native typed output        -> tool-call emulation variant
//   - typed output, but not in the
//     same request as a tool list   -> two-phase variant
//   - otherwise                     -> default variant
//
// All variants behave identically for sends without an output schema.
func Resolve(caps model.Capabilities, optFns ...func(o *Options)) Factory {
	var opts Options
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.normalize()

	switch {
	case !caps.TypedOutput:
		return func() Orchestrator { return newToolCallOrchestrator(opts) }
	case !caps.TypedOutputWithTools:
		return func() Orchestrator { return newTwoPhaseOrchestrator(opts) }
	default:
		return func() Orchestrator { return newDefaultOrchestrator(opts) }
	}
}
