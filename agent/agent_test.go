package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parley-ai/parley/core"
	"github.com/parley-ai/parley/memory"
	"github.com/parley-ai/parley/model"
	"github.com/parley-ai/parley/tool"
)

func fullCaps() model.Capabilities {
	return model.Capabilities{
		Streaming:            true,
		ParallelToolCalls:    true,
		TypedOutput:          true,
		TypedOutputWithTools: true,
	}
}

func newMockAgent(t *testing.T, m *model.MockModel, optFns ...func(o *Options)) *Agent {
	t.Helper()
	provider := &model.MockProvider{Caps: fullCaps(), Model: m}
	optFns = append([]func(o *Options){WithProvider(provider)}, optFns...)
	a, err := New("mock/test-model", optFns...)
	require.NoError(t, err)
	return a
}

type weatherArgs struct {
	City string `json:"city" description:"City name"`
}

func weatherTool(t *testing.T, result any, callErr error) *tool.FunctionTool {
	t.Helper()
	return tool.NewFunctionToolFromStruct(
		"get_weather", "Get current weather for a city", weatherArgs{},
		func(ctx context.Context, args map[string]any) (any, error) {
			return result, callErr
		},
	)
}

func drainStream(t *testing.T, chunks <-chan core.ChatResult, errCh <-chan error) ([]core.ChatResult, error) {
	t.Helper()
	var collected []core.ChatResult
	for c := range chunks {
		collected = append(collected, c)
	}
	if err, ok := <-errCh; ok {
		return collected, err
	}
	return collected, nil
}

func sendStream(t *testing.T, a *Agent, prompt string, optFns ...func(o *SendOptions)) ([]core.ChatResult, error) {
	t.Helper()
	chunks, errCh := a.SendStream(context.Background(), prompt, optFns...)
	return drainStream(t, chunks, errCh)
}

func TestAgent_SimpleQuestionStream(t *testing.T) {
	m := model.NewMockModel(model.MockTurn{
		Text:  "2 + 2 = 4",
		Usage: &core.Usage{PromptTokens: 8, CompletionTokens: 6, TotalTokens: 14},
	})
	a := newMockAgent(t, m)

	chunks, err := sendStream(t, a, "What is 2+2?")
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	// The user message is the first chunk of the turn.
	first := chunks[0]
	require.Len(t, first.Messages, 1)
	assert.Equal(t, core.RoleUser, first.Messages[0].Role)
	assert.Equal(t, "What is 2+2?", first.Messages[0].Text())

	var output strings.Builder
	for _, c := range chunks {
		output.WriteString(c.Output)
		for _, msg := range c.Messages {
			assert.NoError(t, msg.CheckParts())
		}
	}
	assert.Contains(t, output.String(), "4")

	last := chunks[len(chunks)-1]
	assert.Equal(t, core.FinishStop, last.FinishReason)
	require.NotNil(t, last.Usage)
	assert.Equal(t, 14, last.Usage.TotalTokens)

	assert.True(t, m.Closed(), "model must be released when the stream ends")
}

func TestAgent_StreamFoldsIntoSendResult(t *testing.T) {
	turn := model.MockTurn{Text: "streaming and blocking agree"}
	streamModel := model.NewMockModel(turn)
	blockingModel := model.NewMockModel(turn)

	chunks, err := sendStream(t, newMockAgent(t, streamModel), "hi")
	require.NoError(t, err)
	var concat strings.Builder
	for _, c := range chunks {
		concat.WriteString(c.Output)
	}

	res, err := newMockAgent(t, blockingModel).Send(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, concat.String(), res.Output)
	assert.Equal(t, core.FinishStop, res.FinishReason)
}

func TestAgent_ToolLoop(t *testing.T) {
	m := model.NewMockModel(
		model.MockTurn{Calls: []core.ToolCall{{ID: "c1", Name: "get_weather", Arguments: `{"city":"Paris"}`}}},
		model.MockTurn{Text: "It is sunny in Paris."},
	)
	a := newMockAgent(t, m, WithTools(weatherTool(t, "sunny, 21C", nil)))

	res, err := a.Send(context.Background(), "Weather in Paris?")
	require.NoError(t, err)
	assert.Contains(t, res.Output, "sunny")

	// History shape: user, model(call), model(result), model(text).
	require.Len(t, res.Messages, 4)
	assert.Equal(t, core.RoleUser, res.Messages[0].Role)
	require.Len(t, res.Messages[1].ToolCalls(), 1)
	require.Len(t, res.Messages[2].ToolResults(), 1)
	assert.Equal(t, "c1", res.Messages[2].ToolResults()[0].ID)
	assert.Equal(t, "It is sunny in Paris.", res.Messages[3].Text())
}

func TestAgent_ToolFailureContinuesTurn(t *testing.T) {
	m := model.NewMockModel(
		model.MockTurn{Calls: []core.ToolCall{{ID: "c1", Name: "get_weather", Arguments: `{"city":"Paris"}`}}},
		model.MockTurn{Text: "The weather service is unavailable."},
	)
	a := newMockAgent(t, m, WithTools(weatherTool(t, nil, errors.New("upstream timeout"))))

	res, err := a.Send(context.Background(), "Weather in Paris?")
	require.NoError(t, err, "a tool failure must not abort the turn")

	var failed *core.ToolResult
	for _, msg := range res.Messages {
		for _, tr := range msg.ToolResults() {
			if tr.Error != "" {
				failed = &tr
			}
		}
	}
	require.NotNil(t, failed, "the failed call must leave an error-bearing result")
	assert.Contains(t, failed.Error, "upstream timeout")
	assert.Contains(t, res.Output, "unavailable")
}

func TestAgent_ModelReleasedOnProviderFailure(t *testing.T) {
	m := model.NewMockModel(model.MockTurn{Err: errors.New("rate limited")})
	a := newMockAgent(t, m)

	_, err := a.Send(context.Background(), "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
	assert.True(t, m.Closed(), "model must be released on the error path")
}

func TestAgent_MaxModelCalls(t *testing.T) {
	loop := model.MockTurn{Calls: []core.ToolCall{{ID: "", Name: "get_weather", Arguments: `{"city":"Paris"}`}}}
	m := model.NewMockModel(loop, loop, loop)
	a := newMockAgent(t, m,
		WithTools(weatherTool(t, "sunny", nil)),
		WithMaxModelCalls(2),
	)

	_, err := a.Send(context.Background(), "Weather in Paris?")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max model calls")
	assert.True(t, m.Closed())
}

func TestAgent_InstructionsAndTemperatureForwarded(t *testing.T) {
	m := model.NewMockModel(model.MockTurn{Text: "ok"})
	a := newMockAgent(t, m,
		WithInstructions("You are terse."),
		WithTemperature(0.2),
	)

	_, err := a.Send(context.Background(), "hi")
	require.NoError(t, err)

	reqs := m.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "You are terse.", reqs[0].Instructions)
	require.NotNil(t, reqs[0].Temperature)
	assert.InDelta(t, 0.2, *reqs[0].Temperature, 1e-9)
	assert.True(t, reqs[0].Stream)
}

func TestAgent_MemoryCarriesHistoryAcrossSends(t *testing.T) {
	m := model.NewMockModel(
		model.MockTurn{Text: "Hi Alice, nice to meet you."},
		model.MockTurn{Text: "Your name is Alice."},
	)
	store := memory.NewInMemoryStore()
	a := newMockAgent(t, m, WithMemory(store))

	_, err := a.Send(context.Background(), "My name is Alice.", WithConversation("c1"))
	require.NoError(t, err)

	res, err := a.Send(context.Background(), "What is my name?", WithConversation("c1"))
	require.NoError(t, err)
	assert.Contains(t, res.Output, "Alice")

	reqs := m.Requests()
	require.Len(t, reqs, 2)
	// The second request replays the stored exchange before the new prompt.
	require.Len(t, reqs[1].Messages, 3)
	assert.Equal(t, "My name is Alice.", reqs[1].Messages[0].Text())
	assert.Equal(t, core.RoleModel, reqs[1].Messages[1].Role)
	assert.Equal(t, "What is my name?", reqs[1].Messages[2].Text())

	stored, err := store.History("c1")
	require.NoError(t, err)
	assert.Len(t, stored, 4)
}

func TestAgent_HistoryOption(t *testing.T) {
	m := model.NewMockModel(model.MockTurn{Text: "continuing"})
	a := newMockAgent(t, m)

	history := []core.ChatMessage{
		core.NewUserMessage("earlier question"),
		core.NewModelMessage(core.TextPart{Text: "earlier answer"}),
	}
	_, err := a.Send(context.Background(), "follow-up", WithHistory(history))
	require.NoError(t, err)

	reqs := m.Requests()
	require.Len(t, reqs, 1)
	require.Len(t, reqs[0].Messages, 3)
	assert.Equal(t, "earlier question", reqs[0].Messages[0].Text())
}

func TestAgent_AttachmentsOnUserMessage(t *testing.T) {
	m := model.NewMockModel(model.MockTurn{Text: "a chart"})
	a := newMockAgent(t, m)

	chunks, err := sendStream(t, a, "What is this?",
		WithAttachments(core.DataPart{Bytes: []byte{0x89}, MIMEType: "image/png", Name: "chart.png"}),
	)
	require.NoError(t, err)

	require.NotEmpty(t, chunks)
	userMsg := chunks[0].Messages[0]
	require.Len(t, userMsg.Parts, 2)
	assert.NoError(t, userMsg.CheckParts())
}

func TestNew_Validation(t *testing.T) {
	_, err := New("gpt-4o")
	assert.Error(t, err, "a bare model name needs an injected provider")

	_, err = New("nope/some-model")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown provider")

	m := model.NewMockModel()
	provider := &model.MockProvider{Caps: fullCaps(), Model: m}
	_, err = New("mock/test", WithProvider(provider),
		WithTools(weatherTool(t, "a", nil), weatherTool(t, "b", nil)),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate tool name")
}
