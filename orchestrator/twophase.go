package orchestrator

import (
	"context"

	"github.com/parley-ai/parley/core"
	"github.com/parley-ai/parley/model"
)

// twoPhasePhase is the sub-state of the two-phase typed-output machine.
type twoPhasePhase int

const (
	// phaseToolUse runs requests with tools enabled and the schema withheld.
	phaseToolUse twoPhasePhase = iota
	// phaseStructured runs the closing request with the schema enabled and
	// tools withheld.
	phaseStructured
)

// twoPhaseOrchestrator serves providers whose API cannot accept a tool list
// and an output schema in the same request. Phase one lets the model use
// tools freely; once a turn produces no tool calls, phase two issues a final
// schema-constrained request without tools. From the outside this looks like
// one continuous stream terminating in a structured result.
//
// Instances are per-send (see Factory); the phase field never crosses
// invocations.
type twoPhaseOrchestrator struct {
	defaultOrchestrator
	phase twoPhasePhase
}

func newTwoPhaseOrchestrator(opts Options) *twoPhaseOrchestrator {
	return &twoPhaseOrchestrator{defaultOrchestrator: *newDefaultOrchestrator(opts)}
}

// Initialize implements Orchestrator. With no tools registered there is
// nothing for phase one to do.
func (o *twoPhaseOrchestrator) Initialize(state *core.StreamingState) {
	o.phase = phaseToolUse
	if len(state.Tools()) == 0 {
		o.phase = phaseStructured
	}
}

// ProcessIteration implements Orchestrator.
func (o *twoPhaseOrchestrator) ProcessIteration(
	ctx context.Context,
	m model.Model,
	state *core.StreamingState,
	outputSchema map[string]any,
) (<-chan core.ChatResult, <-chan error) {
	if outputSchema == nil {
		return o.defaultOrchestrator.ProcessIteration(ctx, m, state, nil)
	}

	out := make(chan core.ChatResult, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)
		switch o.phase {
		case phaseToolUse:
			o.runToolPhase(ctx, m, state, out, errCh)
		case phaseStructured:
			o.runStructuredPhase(ctx, m, state, outputSchema, out, errCh)
		}
	}()

	return out, errCh
}

// runToolPhase performs one tools-enabled iteration with the schema withheld.
// Text deltas are suppressed: phase-one chunks carry tool activity only, so
// the caller's typed output is never polluted by interim prose.
func (o *twoPhaseOrchestrator) runToolPhase(
	ctx context.Context,
	m model.Model,
	state *core.StreamingState,
	out chan<- core.ChatResult,
	errCh chan<- error,
) {
	req := o.buildRequest(state, nil, true)

	final, ok := streamModel(ctx, m, req, state, out, errCh, false)
	if !ok {
		return
	}

	modelMsg, err := finishModelMessage(state, final.Message)
	if err != nil {
		errCh <- err
		return
	}
	state.Append(modelMsg)

	calls := modelMsg.ToolCalls()
	if len(calls) == 0 {
		// Tool use exhausted. The prose answer stays in history as context
		// for the structured request but is not yielded to the caller.
		o.phase = phaseStructured
		o.opts.Logger.Debug("orchestrator.two_phase.transition", "history_len", len(state.History()))
		return
	}

	if !send(ctx, out, core.ChatResult{ID: final.ID, Messages: []core.ChatMessage{modelMsg}}) {
		errCh <- ctx.Err()
		return
	}

	o.runTools(ctx, state, final.ID, calls, out, errCh)
}

// runStructuredPhase issues the closing schema-constrained request with
// tools withheld and terminates the turn.
func (o *twoPhaseOrchestrator) runStructuredPhase(
	ctx context.Context,
	m model.Model,
	state *core.StreamingState,
	outputSchema map[string]any,
	out chan<- core.ChatResult,
	errCh chan<- error,
) {
	req := o.buildRequest(state, outputSchema, false)

	final, ok := streamModel(ctx, m, req, state, out, errCh, true)
	if !ok {
		return
	}

	modelMsg, err := finishModelMessage(state, final.Message)
	if err != nil {
		errCh <- err
		return
	}
	state.Append(modelMsg)

	if !send(ctx, out, core.ChatResult{ID: final.ID, Messages: []core.ChatMessage{modelMsg}}) {
		errCh <- ctx.Err()
		return
	}

	o.finishTurn(ctx, state, final, out, errCh)
}
