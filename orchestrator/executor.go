package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/parley-ai/parley/core"
	"github.com/parley-ai/parley/logging"
)

// toolExecutor runs a batch of tool calls, possibly in parallel. The model
// declared the calls independent, so no ordering is guaranteed among the
// executions themselves, but results come back in the original call order and
// every call produces exactly one result before the batch returns.
//
// Failures never escape: an execution error or panic becomes an error-bearing
// ToolResult so the model can see and react to it on the next iteration.
type toolExecutor struct {
	maxParallel int
	logger      logging.Logger
}

func newToolExecutor(maxParallel int, logger logging.Logger) *toolExecutor {
	if maxParallel < 1 {
		maxParallel = DefaultMaxParallelTools
	}
	return &toolExecutor{maxParallel: maxParallel, logger: logger}
}

// Execute runs every call and returns one result per call, ordered.
func (e *toolExecutor) Execute(ctx context.Context, tools map[string]core.Tool, calls []core.ToolCall) []core.ToolResult {
	results := make([]core.ToolResult, len(calls))
	if len(calls) == 0 {
		return results
	}

	// Fast path: single call, execute inline.
	if len(calls) == 1 {
		results[0] = e.executeSingle(ctx, tools, calls[0])
		return results
	}

	limit := e.maxParallel
	if limit > len(calls) {
		limit = len(calls)
	}

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, call := range calls {
		i, call := i, call
		g.Go(func() error {
			results[i] = e.executeSingle(gctx, tools, call)
			return nil // failures are captured in the result, never propagated
		})
	}
	_ = g.Wait()

	e.logger.Debug(
		"tools.batch.complete",
		"count", len(calls),
		"parallelism", limit,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return results
}

func (e *toolExecutor) executeSingle(ctx context.Context, tools map[string]core.Tool, call core.ToolCall) core.ToolResult {
	start := time.Now()

	var (
		value any
		err   error
	)
	func() { // panic safety
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("tool panicked: %v", r)
				e.logger.Error("tool.panic", "tool", call.Name, "call_id", call.ID, "recover", r)
			}
		}()
		value, err = invokeTool(ctx, tools, call)
	}()

	e.logger.Info(
		"tool.executed",
		"tool", call.Name,
		"call_id", call.ID,
		"duration_ms", time.Since(start).Milliseconds(),
		"error", err != nil,
	)

	res := core.ToolResult{ID: call.ID, Name: call.Name, Value: value}
	if err != nil {
		res.Value = nil
		res.Error = err.Error()
	}
	return res
}

// invokeTool centralizes lookup, argument decoding and invocation.
func invokeTool(ctx context.Context, tools map[string]core.Tool, call core.ToolCall) (any, error) {
	impl, ok := tools[call.Name]
	if !ok {
		return nil, fmt.Errorf("tool %s not found", call.Name)
	}

	args := map[string]any{}
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			return nil, fmt.Errorf("failed to unmarshal args: %w", err)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return impl.Call(ctx, args)
}
