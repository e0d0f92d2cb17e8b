// Package anthropic adapts the Anthropic Messages API (streaming, tool use,
// extended thinking) to the generic model.Model interface. The Messages API
// has no native schema-constrained response mode, so typed output is
// emulated upstream through a tool-call mechanism.
package anthropic

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/parley-ai/parley/core"
	"github.com/parley-ai/parley/model"
)

// Options configure the Anthropic model adapter.
type Options struct {
	Model          anthropic.Model
	Temperature    float64
	MaxTokens      int64
	ThinkingBudget int64
	APIKey         string
}

// Model wraps the Anthropic Messages API behind model.Model.
type Model struct {
	client *anthropic.Client
	opts   Options
}

// NewModel creates an Anthropic model using the official client. The API
// key is read from the environment unless set explicitly.
func NewModel(optFns ...func(o *Options)) *Model {
	opts := applyOptions(optFns)
	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)
	return &Model{client: &client, opts: opts}
}

// NewModelFromClient creates an Anthropic model from an existing client.
func NewModelFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Model {
	return &Model{client: client, opts: applyOptions(optFns)}
}

func applyOptions(optFns []func(o *Options)) Options {
	opts := Options{
		Model:          anthropic.ModelClaudeSonnet4_0,
		Temperature:    0.7,
		MaxTokens:      4096,
		ThinkingBudget: 1024,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return opts
}

// Generate implements model.Model.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)
		params := m.buildParams(req)
		if req.Stream {
			m.handleStreaming(ctx, params, out, errCh)
			return
		}
		m.handleNonStreaming(ctx, params, out, errCh)
	}()

	return out, errCh
}

// Close implements model.Model. The underlying client keeps no
// per-connection state, so there is nothing to release.
func (m *Model) Close() error { return nil }

func (m *Model) buildParams(req model.Request) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:     m.opts.Model,
		Messages:  buildMessages(req.Messages),
		MaxTokens: m.opts.MaxTokens,
	}

	if req.Thinking {
		// Extended thinking requires the default temperature.
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(m.opts.ThinkingBudget)
	} else if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	} else {
		params.Temperature = anthropic.Float(m.opts.Temperature)
	}

	if system := buildSystem(req); len(system) > 0 {
		params.System = system
	}
	if len(req.Tools) > 0 {
		params.Tools = buildTools(req.Tools)
	}
	return params
}

// buildSystem merges the request instructions and any system-role history
// into system blocks.
func buildSystem(req model.Request) []anthropic.TextBlockParam {
	var blocks []anthropic.TextBlockParam
	if req.Instructions != "" {
		blocks = append(blocks, anthropic.TextBlockParam{Text: req.Instructions})
	}
	for _, msg := range req.Messages {
		if msg.Role == core.RoleSystem && msg.Text() != "" {
			blocks = append(blocks, anthropic.TextBlockParam{Text: msg.Text()})
		}
	}
	return blocks
}

// buildMessages converts the normalized history into Anthropic messages.
// Tool results must arrive as tool_result blocks in a user message
// following the assistant turn that issued the calls; the history ordering
// already guarantees that adjacency.
func buildMessages(msgs []core.ChatMessage) []anthropic.MessageParam {
	var messages []anthropic.MessageParam
	for _, msg := range msgs {
		switch msg.Role {
		case core.RoleSystem:
			continue
		case core.RoleUser:
			if content := userContent(msg); len(content) > 0 {
				messages = append(messages, anthropic.NewUserMessage(content...))
			}
		case core.RoleModel:
			if results := msg.ToolResults(); len(results) > 0 {
				content := make([]anthropic.ContentBlockParamUnion, len(results))
				for i, res := range results {
					content[i] = anthropic.NewToolResultBlock(res.ID, resultContent(res), res.Error != "")
				}
				messages = append(messages, anthropic.NewUserMessage(content...))
				continue
			}
			if content := assistantContent(msg); len(content) > 0 {
				messages = append(messages, anthropic.NewAssistantMessage(content...))
			}
		}
	}
	return messages
}

func userContent(msg core.ChatMessage) []anthropic.ContentBlockParamUnion {
	var content []anthropic.ContentBlockParamUnion
	for _, p := range msg.Parts {
		switch part := p.(type) {
		case core.TextPart:
			if part.Text != "" {
				content = append(content, anthropic.NewTextBlock(part.Text))
			}
		case core.DataPart:
			if part.MIMEType != "" {
				content = append(content, anthropic.NewImageBlockBase64(part.MIMEType, base64.StdEncoding.EncodeToString(part.Bytes)))
			}
		case core.LinkPart:
			content = append(content, anthropic.NewTextBlock(part.URI))
		}
	}
	return content
}

func assistantContent(msg core.ChatMessage) []anthropic.ContentBlockParamUnion {
	var content []anthropic.ContentBlockParamUnion
	for _, p := range msg.Parts {
		switch part := p.(type) {
		case core.TextPart:
			if part.Text != "" {
				content = append(content, anthropic.NewTextBlock(part.Text))
			}
		case core.ToolCallPart:
			var input any
			if part.Call.Arguments != "" {
				if err := json.Unmarshal([]byte(part.Call.Arguments), &input); err != nil {
					input = part.Call.Arguments
				}
			}
			content = append(content, anthropic.NewToolUseBlock(part.Call.ID, input, part.Call.Name))
		}
	}
	return content
}

// resultContent renders a tool result as the wire payload the model sees.
func resultContent(res core.ToolResult) string {
	if res.Error != "" {
		return res.Error
	}
	if s, ok := res.Value.(string); ok {
		return s
	}
	data, err := json.Marshal(res.Value)
	if err != nil {
		return fmt.Sprintf("%v", res.Value)
	}
	return string(data)
}

func buildTools(tools []model.ToolDefinition) []anthropic.ToolUnionParam {
	anthropicTools := make([]anthropic.ToolUnionParam, len(tools))
	for i, tdef := range tools {
		inputSchema := anthropic.ToolInputSchemaParam{
			Type: constant.Object("object"),
		}
		if params := tdef.Function.Parameters; params != nil {
			if properties, exists := params["properties"]; exists {
				inputSchema.Properties = properties
			}
			inputSchema.Required = requiredFields(params)
		}
		anthropicTools[i] = anthropic.ToolUnionParamOfTool(inputSchema, tdef.Function.Name)
	}
	return anthropicTools
}

// requiredFields tolerates both []string and []any forms of the schema's
// required list.
func requiredFields(params map[string]any) []string {
	required, exists := params["required"]
	if !exists {
		return nil
	}
	if fields, ok := required.([]string); ok {
		return fields
	}
	values, ok := required.([]any)
	if !ok {
		return nil
	}
	var fields []string
	for _, v := range values {
		if s, ok := v.(string); ok {
			fields = append(fields, s)
		}
	}
	return fields
}

// handleStreaming forwards text and thinking deltas as they arrive and lets
// the SDK accumulate events into the complete message for the final chunk.
func (m *Model) handleStreaming(
	ctx context.Context,
	params anthropic.MessageNewParams,
	out chan<- model.Response,
	errCh chan<- error,
) {
	stream := m.client.Messages.NewStreaming(ctx, params)

	message := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			errCh <- fmt.Errorf("anthropic stream accumulate error: %w", err)
			return
		}
		switch eventVariant := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			switch deltaVariant := eventVariant.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				out <- model.Response{ID: message.ID, Partial: true, Delta: deltaVariant.Text}
			case anthropic.ThinkingDelta:
				out <- model.Response{ID: message.ID, Partial: true, ThinkingDelta: deltaVariant.Thinking}
			}
		}
	}
	if err := stream.Err(); err != nil {
		errCh <- fmt.Errorf("anthropic streaming error: %w", err)
		return
	}

	out <- finalResponse(message)
}

// handleNonStreaming performs a blocking request and emits one final
// response.
func (m *Model) handleNonStreaming(
	ctx context.Context,
	params anthropic.MessageNewParams,
	out chan<- model.Response,
	errCh chan<- error,
) {
	resp, err := m.client.Messages.New(ctx, params)
	if err != nil {
		errCh <- fmt.Errorf("anthropic api error: %w", err)
		return
	}
	out <- finalResponse(*resp)
}

// finalResponse converts a complete API message into the normalized final
// chunk.
func finalResponse(message anthropic.Message) model.Response {
	var parts []core.Part
	for _, block := range message.Content {
		switch block.Type {
		case "text":
			textBlock := block.AsText()
			if textBlock.Text != "" {
				parts = append(parts, core.TextPart{Text: textBlock.Text})
			}
		case "tool_use":
			toolBlock := block.AsToolUse()
			args := ""
			if toolBlock.Input != nil {
				if data, err := json.Marshal(toolBlock.Input); err == nil {
					args = string(data)
				}
			}
			parts = append(parts, core.ToolCallPart{Call: core.ToolCall{
				ID:        toolBlock.ID,
				Name:      toolBlock.Name,
				Arguments: args,
			}})
		}
	}
	return model.Response{
		ID:           message.ID,
		Message:      core.NewModelMessage(parts...),
		FinishReason: mapStopReason(message.StopReason),
		Usage: &core.Usage{
			PromptTokens:     int(message.Usage.InputTokens),
			CompletionTokens: int(message.Usage.OutputTokens),
			TotalTokens:      int(message.Usage.InputTokens + message.Usage.OutputTokens),
		},
	}
}

func mapStopReason(reason anthropic.StopReason) core.FinishReason {
	switch reason {
	case anthropic.StopReasonEndTurn, anthropic.StopReasonStopSequence, anthropic.StopReasonPauseTurn:
		return core.FinishStop
	case anthropic.StopReasonToolUse:
		return core.FinishToolCalls
	case anthropic.StopReasonMaxTokens:
		return core.FinishLength
	case anthropic.StopReasonRefusal:
		return core.FinishContentFilter
	default:
		return core.FinishStop
	}
}

// Provider is the model factory for Anthropic deployments.
type Provider struct {
	opts []func(o *Options)
}

// NewProvider constructs the Anthropic provider. Options are applied to
// every model it creates.
func NewProvider(optFns ...func(o *Options)) *Provider {
	return &Provider{opts: optFns}
}

// Name implements model.Provider.
func (p *Provider) Name() string { return "anthropic" }

// Capabilities implements model.Provider. The Messages API has no native
// schema-constrained response mode, so typed output goes through the
// tool-call emulation path.
func (p *Provider) Capabilities() model.Capabilities {
	return model.Capabilities{
		Streaming:         true,
		ParallelToolCalls: true,
		Thinking:          true,
	}
}

// NewModel implements model.Provider.
func (p *Provider) NewModel(name string) (model.Model, error) {
	optFns := p.opts
	if name != "" {
		optFns = append(append([]func(o *Options){}, p.opts...), func(o *Options) {
			o.Model = anthropic.Model(name)
		})
	}
	return NewModel(optFns...), nil
}
