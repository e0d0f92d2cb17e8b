package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/parley-ai/parley/core"
	"github.com/parley-ai/parley/model"
)

func drainIteration(t *testing.T, ch <-chan core.ChatResult, errCh <-chan error) []core.ChatResult {
	t.Helper()
	var chunks []core.ChatResult
	for c := range ch {
		chunks = append(chunks, c)
	}
	if err, ok := <-errCh; ok && err != nil {
		t.Fatalf("iteration error: %v", err)
	}
	return chunks
}

func runIteration(t *testing.T, orch Orchestrator, m model.Model, state *core.StreamingState, schema map[string]any) []core.ChatResult {
	t.Helper()
	ch, errCh := orch.ProcessIteration(context.Background(), m, state, schema)
	return drainIteration(t, ch, errCh)
}

func outputOf(chunks []core.ChatResult) string {
	var b strings.Builder
	for _, c := range chunks {
		b.WriteString(c.Output)
	}
	return b.String()
}

func TestDefaultOrchestrator_PlainTextTurn(t *testing.T) {
	m := model.NewMockModel(model.MockTurn{
		Text:  "2+2 is 4.",
		Usage: &core.Usage{PromptTokens: 8, CompletionTokens: 4, TotalTokens: 12},
	})
	orch := Resolve(model.Capabilities{TypedOutput: true, TypedOutputWithTools: true})()
	state := core.NewStreamingState([]core.ChatMessage{core.NewUserMessage("What is 2+2?")}, nil)

	orch.Initialize(state)
	chunks := runIteration(t, orch, m, state, nil)
	orch.Finalize(state)

	if !state.Done() {
		t.Fatal("turn should be complete after a no-tool iteration")
	}
	if got := outputOf(chunks); got != "2+2 is 4." {
		t.Fatalf("delta concatenation mismatch: %q", got)
	}

	last := chunks[len(chunks)-1]
	if last.FinishReason != core.FinishStop {
		t.Fatalf("expected terminal stop chunk, got %+v", last)
	}
	if last.Usage == nil || last.Usage.TotalTokens != 12 {
		t.Fatalf("usage missing on terminal chunk: %+v", last.Usage)
	}

	// Exactly one messages chunk carrying the consolidated model turn.
	var msgChunks int
	for _, c := range chunks {
		if len(c.Messages) > 0 {
			msgChunks++
			if err := c.Messages[0].CheckParts(); err != nil {
				t.Fatalf("emitted message violates text invariant: %v", err)
			}
		}
	}
	if msgChunks != 1 {
		t.Fatalf("expected 1 messages chunk, got %d", msgChunks)
	}
}

func TestDefaultOrchestrator_ToolLoop(t *testing.T) {
	m := model.NewMockModel(
		model.MockTurn{Calls: []core.ToolCall{{Name: "get_weather", Arguments: `{"city":"Paris"}`}}},
		model.MockTurn{Text: "It is sunny in Paris."},
	)
	weather := &execMockTool{name: "get_weather", result: "sunny"}
	state := core.NewStreamingState(
		[]core.ChatMessage{core.NewUserMessage("Weather in Paris?")},
		execTools(weather),
	)
	orch := Resolve(model.Capabilities{TypedOutput: true, TypedOutputWithTools: true})()
	orch.Initialize(state)

	// First iteration: model requests a tool, result gets appended.
	first := runIteration(t, orch, m, state, nil)
	if state.Done() {
		t.Fatal("turn must continue after tool execution")
	}
	if !state.ToolComplete() {
		t.Fatal("all calls must be resolved before the next model request")
	}

	var sawCall, sawResult bool
	for _, c := range first {
		for _, msg := range c.Messages {
			if len(msg.ToolCalls()) > 0 {
				sawCall = true
				// Provider supplied no id; the orchestrator synthesizes one.
				if msg.ToolCalls()[0].ID == "" {
					t.Fatal("tool call left without id")
				}
			}
			if len(msg.ToolResults()) > 0 {
				sawResult = true
				if msg.ToolResults()[0].Value != "sunny" {
					t.Fatalf("unexpected tool result: %+v", msg.ToolResults()[0])
				}
			}
		}
	}
	if !sawCall || !sawResult {
		t.Fatalf("expected call and result chunks, got %+v", first)
	}

	// Second iteration: final text, turn completes.
	second := runIteration(t, orch, m, state, nil)
	if !state.Done() {
		t.Fatal("turn should be complete")
	}
	if !strings.Contains(outputOf(second), "sunny") {
		t.Fatalf("final text missing: %q", outputOf(second))
	}

	// History: user, model(call), model(result), model(text).
	h := state.History()
	if len(h) != 4 {
		t.Fatalf("expected 4 history messages, got %d", len(h))
	}
	if len(h[1].ToolCalls()) != 1 || len(h[2].ToolResults()) != 1 {
		t.Fatalf("history shape wrong: %+v", h)
	}
	if h[1].ToolCalls()[0].ID != h[2].ToolResults()[0].ID {
		t.Fatal("result id does not match call id")
	}
}

func TestDefaultOrchestrator_ToolFailureContinuesTurn(t *testing.T) {
	m := model.NewMockModel(
		model.MockTurn{Calls: []core.ToolCall{{ID: "c1", Name: "flaky", Arguments: "{}"}}},
		model.MockTurn{Text: "The tool failed, sorry."},
	)
	state := core.NewStreamingState(
		[]core.ChatMessage{core.NewUserMessage("go")},
		execTools(&execMockTool{name: "flaky", err: errors.New("boom")}),
	)
	orch := Resolve(model.Capabilities{TypedOutput: true, TypedOutputWithTools: true})()
	orch.Initialize(state)

	first := runIteration(t, orch, m, state, nil)
	if state.Done() {
		t.Fatal("a tool failure must not abort the turn")
	}
	var sawError bool
	for _, c := range first {
		for _, msg := range c.Messages {
			for _, res := range msg.ToolResults() {
				if res.Error != "" {
					sawError = true
				}
			}
		}
	}
	if !sawError {
		t.Fatal("expected an error-bearing tool result")
	}

	runIteration(t, orch, m, state, nil)
	if !state.Done() {
		t.Fatal("follow-up model turn should finish the exchange")
	}
}

func TestDefaultOrchestrator_ParallelCallsAllResolved(t *testing.T) {
	m := model.NewMockModel(
		model.MockTurn{Calls: []core.ToolCall{
			{ID: "a", Name: "one", Arguments: "{}"},
			{ID: "b", Name: "two", Arguments: "{}"},
			{ID: "c", Name: "three", Arguments: "{}"},
		}},
		model.MockTurn{Text: "done"},
	)
	state := core.NewStreamingState(
		[]core.ChatMessage{core.NewUserMessage("go")},
		execTools(
			&execMockTool{name: "one", result: 1},
			&execMockTool{name: "two", result: 2},
			&execMockTool{name: "three", result: 3},
		),
	)
	orch := Resolve(model.Capabilities{ParallelToolCalls: true, TypedOutput: true, TypedOutputWithTools: true})()
	orch.Initialize(state)

	runIteration(t, orch, m, state, nil)

	if !state.ToolComplete() {
		t.Fatal("every call needs a matching result before the next request")
	}
	var resultCount int
	for _, msg := range state.History() {
		resultCount += len(msg.ToolResults())
	}
	if resultCount != 3 {
		t.Fatalf("expected 3 tool-result messages, got %d", resultCount)
	}
}

func TestDefaultOrchestrator_ProviderFailure(t *testing.T) {
	m := model.NewMockModel(model.MockTurn{Err: errors.New("rate limited")})
	state := core.NewStreamingState([]core.ChatMessage{core.NewUserMessage("hi")}, nil)
	orch := Resolve(model.Capabilities{TypedOutput: true, TypedOutputWithTools: true})()
	orch.Initialize(state)

	ch, errCh := orch.ProcessIteration(context.Background(), m, state, nil)
	for range ch {
	}
	err := <-errCh
	if err == nil || !strings.Contains(err.Error(), "rate limited") {
		t.Fatalf("expected terminal provider failure, got %v", err)
	}
	if state.Done() {
		t.Fatal("state must not be marked complete on provider failure")
	}
}
