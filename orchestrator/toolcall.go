package orchestrator

import (
	"context"

	"github.com/parley-ai/parley/core"
	"github.com/parley-ai/parley/model"
)

// StructuredOutputToolName is the synthetic tool injected by the tool-call
// typed-output variant. Its argument payload is the structured answer.
const StructuredOutputToolName = "emit_structured_output"

const structuredOutputToolDescription = "Record the final answer as a structured object matching the " +
	"required schema. Call exactly once, after any other tool use is finished."

// toolCallOrchestrator emulates typed output for providers whose protocol has
// no native JSON-schema response mode: the caller's schema becomes the
// parameter schema of a synthetic tool, and the arguments of that call become
// the structured output. For sends without a schema it behaves exactly like
// the default variant.
type toolCallOrchestrator struct {
	defaultOrchestrator
}

func newToolCallOrchestrator(opts Options) *toolCallOrchestrator {
	return &toolCallOrchestrator{defaultOrchestrator: *newDefaultOrchestrator(opts)}
}

// ProcessIteration implements Orchestrator.
func (o *toolCallOrchestrator) ProcessIteration(
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
		o.runTypedIteration(ctx, m, state, outputSchema, out, errCh)
	}()

	return out, errCh
}

func (o *toolCallOrchestrator) runTypedIteration(
	ctx context.Context,
	m model.Model,
	state *core.StreamingState,
	outputSchema map[string]any,
	out chan<- core.ChatResult,
	errCh chan<- error,
) {
	// Schema is withheld from the request; the synthetic tool carries it.
	req := o.buildRequest(state, nil, true)
	req.Tools = append(req.Tools, model.ToolDefinition{
		Type: "function",
		Function: model.FunctionDefinition{
			Name:        StructuredOutputToolName,
			Description: structuredOutputToolDescription,
			Parameters:  outputSchema,
		},
	})

	// Text deltas are suppressed: for typed sends the only Output the caller
	// sees is the structured JSON, never interleaved prose.
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

	if !send(ctx, out, core.ChatResult{ID: final.ID, Messages: []core.ChatMessage{modelMsg}}) {
		errCh <- ctx.Err()
		return
	}

	var structured *core.ToolCall
	var regular []core.ToolCall
	for _, call := range modelMsg.ToolCalls() {
		if call.Name == StructuredOutputToolName {
			c := call
			structured = &c
			continue
		}
		regular = append(regular, call)
	}

	if len(regular) > 0 {
		o.runTools(ctx, state, final.ID, regular, out, errCh)
		if ctx.Err() != nil {
			return
		}
	}

	if structured == nil {
		if len(regular) > 0 {
			// Ordinary tool turn; loop again.
			return
		}
		// The model answered in prose instead of calling the output tool.
		// Surface the text as the final output; typed decoding happens (and
		// may fail with a format error) at the caller.
		state.MarkDone()
		if text := modelMsg.Text(); text != "" {
			if !send(ctx, out, core.ChatResult{ID: final.ID, Output: text}) {
				errCh <- ctx.Err()
				return
			}
		}
		o.emitTerminal(ctx, state, final, out, errCh)
		return
	}

	// Acknowledge the synthetic call so the pending-call bookkeeping closes
	// and a resumed turn would see a well-formed history.
	ack := core.NewToolResultMessage(core.ToolResult{
		ID:    structured.ID,
		Name:  structured.Name,
		Value: "recorded",
	})
	state.Append(ack)

	state.MarkDone()
	if !send(ctx, out, core.ChatResult{ID: final.ID, Output: structured.Arguments}) {
		errCh <- ctx.Err()
		return
	}
	o.emitTerminal(ctx, state, final, out, errCh)
}

func (o *toolCallOrchestrator) emitTerminal(
	ctx context.Context,
	state *core.StreamingState,
	final *model.Response,
	out chan<- core.ChatResult,
	errCh chan<- error,
) {
	terminal := core.ChatResult{ID: final.ID, FinishReason: core.FinishStop, Usage: final.Usage}
	state.SetLast(terminal)
	if !send(ctx, out, terminal) {
		errCh <- ctx.Err()
	}
}
