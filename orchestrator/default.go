package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/parley-ai/parley/core"
	"github.com/parley-ai/parley/model"
)

// defaultOrchestrator implements the turn strategy that most providers use:
// stream text deltas, detect tool calls in the finished model message,
// execute them, append results, and continue until a turn ends without calls.
type defaultOrchestrator struct {
	opts Options
	exec *toolExecutor
}

func newDefaultOrchestrator(opts Options) *defaultOrchestrator {
	return &defaultOrchestrator{
		opts: opts,
		exec: newToolExecutor(opts.MaxParallelTools, opts.Logger),
	}
}

// Initialize implements Orchestrator. The default variant carries no
// cross-iteration state beyond what StreamingState holds.
func (o *defaultOrchestrator) Initialize(*core.StreamingState) {}

// Finalize implements Orchestrator.
func (o *defaultOrchestrator) Finalize(state *core.StreamingState) {
	o.opts.Logger.Debug("orchestrator.finalize", "phase", state.Phase().String(), "history_len", len(state.History()))
}

// ProcessIteration implements Orchestrator.
func (o *defaultOrchestrator) ProcessIteration(
	ctx context.Context,
	m model.Model,
	state *core.StreamingState,
	outputSchema map[string]any,
) (<-chan core.ChatResult, <-chan error) {
	out := make(chan core.ChatResult, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)
		o.runIteration(ctx, m, state, outputSchema, out, errCh)
	}()

	return out, errCh
}

func (o *defaultOrchestrator) runIteration(
	ctx context.Context,
	m model.Model,
	state *core.StreamingState,
	outputSchema map[string]any,
	out chan<- core.ChatResult,
	errCh chan<- error,
) {
	req := o.buildRequest(state, outputSchema, true)

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

	calls := modelMsg.ToolCalls()
	if len(calls) == 0 {
		o.finishTurn(ctx, state, final, out, errCh)
		return
	}

	o.runTools(ctx, state, final.ID, calls, out, errCh)
}

// runTools executes every call, appends one result message per call and
// emits them in order. All calls complete (or fail individually) before the
// next model request is issued.
func (o *defaultOrchestrator) runTools(
	ctx context.Context,
	state *core.StreamingState,
	id string,
	calls []core.ToolCall,
	out chan<- core.ChatResult,
	errCh chan<- error,
) {
	results := o.exec.Execute(ctx, state.Tools(), calls)
	for _, res := range results {
		msg := core.NewToolResultMessage(res)
		state.Append(msg)
		if !send(ctx, out, core.ChatResult{ID: id, Messages: []core.ChatMessage{msg}}) {
			errCh <- ctx.Err()
			return
		}
	}
}

// finishTurn marks the state complete and emits the terminal usage chunk.
func (o *defaultOrchestrator) finishTurn(
	ctx context.Context,
	state *core.StreamingState,
	final *model.Response,
	out chan<- core.ChatResult,
	errCh chan<- error,
) {
	state.MarkDone()

	finish := final.FinishReason
	if finish == core.FinishUnspecified {
		finish = core.FinishStop
	}
	terminal := core.ChatResult{ID: final.ID, FinishReason: finish, Usage: final.Usage}
	state.SetLast(terminal)
	if !send(ctx, out, terminal) {
		errCh <- ctx.Err()
	}
}

// buildRequest assembles the normalized model request from current state.
func (o *defaultOrchestrator) buildRequest(state *core.StreamingState, outputSchema map[string]any, withTools bool) model.Request {
	req := model.Request{
		Instructions: o.opts.Instructions,
		Messages:     state.History(),
		OutputSchema: outputSchema,
		Temperature:  o.opts.Temperature,
		Thinking:     o.opts.Thinking,
		Stream:       true,
	}
	if withTools {
		req.Tools = toolDefinitions(state.Tools())
	}
	return req
}

// toolDefinitions converts the turn's tool map into declarative definitions.
func toolDefinitions(tools map[string]core.Tool) []model.ToolDefinition {
	if len(tools) == 0 {
		return nil
	}
	defs := make([]model.ToolDefinition, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, model.ToolDefinition{
			Type: "function",
			Function: model.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return defs
}

// streamModel drives one Generate call, forwarding partial deltas to the
// caller when forwardDeltas is set, and returns the final response. A false
// second return means a terminal error was already surfaced on errCh.
func streamModel(
	ctx context.Context,
	m model.Model,
	req model.Request,
	state *core.StreamingState,
	out chan<- core.ChatResult,
	errCh chan<- error,
	forwardDeltas bool,
) (*model.Response, bool) {
	respCh, modelErrCh := m.Generate(ctx, req)

	var final *model.Response
	for respCh != nil || modelErrCh != nil {
		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
			return nil, false

		case resp, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}
			if !resp.Partial {
				r := resp
				final = &r
				continue
			}
			if resp.Delta == "" && resp.ThinkingDelta == "" {
				continue
			}
			chunk := core.ChatResult{ID: resp.ID, Thinking: resp.ThinkingDelta}
			if forwardDeltas {
				chunk.Output = resp.Delta
			}
			if chunk.Output == "" && chunk.Thinking == "" {
				continue
			}
			state.SetLast(chunk)
			if !send(ctx, out, chunk) {
				errCh <- ctx.Err()
				return nil, false
			}

		case err, ok := <-modelErrCh:
			if !ok {
				modelErrCh = nil
				continue
			}
			if err != nil {
				errCh <- fmt.Errorf("model generate: %w", err)
				return nil, false
			}
		}
	}

	if final == nil {
		errCh <- errors.New("model stream ended without a final response")
		return nil, false
	}
	return final, true
}

// finishModelMessage consolidates the provider's final message into a
// well-formed model turn: text fragments merged into at most one part and
// every tool call carrying an id, synthesized from the per-turn counter when
// the provider supplied none.
func finishModelMessage(state *core.StreamingState, msg core.ChatMessage) (core.ChatMessage, error) {
	merged := msg.Consolidate()
	parts := make([]core.Part, len(merged.Parts))
	for i, p := range merged.Parts {
		if tc, ok := p.(core.ToolCallPart); ok && tc.Call.ID == "" {
			tc.Call.ID = state.NextCallID()
			parts[i] = tc
			continue
		}
		parts[i] = p
	}
	final := core.ChatMessage{Role: core.RoleModel, Parts: parts}
	if err := final.CheckParts(); err != nil {
		return core.ChatMessage{}, err
	}
	return final, nil
}

// send delivers a chunk unless the caller abandoned the stream.
func send(ctx context.Context, out chan<- core.ChatResult, res core.ChatResult) bool {
	select {
	case <-ctx.Done():
		return false
	case out <- res:
		return true
	}
}
