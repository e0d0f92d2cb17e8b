package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/parley-ai/parley/core"
	"github.com/parley-ai/parley/logging"
	"github.com/parley-ai/parley/memory"
	"github.com/parley-ai/parley/model"
	"github.com/parley-ai/parley/model/anthropic"
	"github.com/parley-ai/parley/model/openai"
	"github.com/parley-ai/parley/orchestrator"
)

// DefaultMaxModelCalls caps provider requests per send, guarding against
// runaway tool loops.
const DefaultMaxModelCalls = 10

// Options configure an Agent instance.
//
// Use functional options with New to override defaults.
type Options struct {
	// Provider overrides the built-in provider registry. When set, the model
	// spec passed to New is the bare model name.
	Provider model.Provider

	// Instructions is the system prompt sent on every request.
	Instructions string

	// Tools the model may call during a turn. Names must be unique.
	Tools []core.Tool

	// Temperature overrides the provider default when non-nil.
	Temperature *float64

	// Thinking requests reasoning traces where the provider supports them.
	Thinking bool

	// MaxModelCalls caps provider requests per send.
	MaxModelCalls int

	// MaxParallelTools bounds concurrent tool executions within one turn.
	MaxParallelTools int

	// Memory persists conversation history across sends when a send names a
	// conversation id.
	Memory memory.Store

	// Logger receives structured execution events; NoOpLogger when nil.
	Logger logging.Logger
}

// WithProvider injects a provider, bypassing the built-in registry.
func WithProvider(p model.Provider) func(o *Options) {
	return func(o *Options) { o.Provider = p }
}

// WithInstructions sets the system prompt.
func WithInstructions(instructions string) func(o *Options) {
	return func(o *Options) { o.Instructions = instructions }
}

// WithTools registers tools the model may call.
func WithTools(tools ...core.Tool) func(o *Options) {
	return func(o *Options) { o.Tools = append(o.Tools, tools...) }
}

// WithTemperature overrides the provider default temperature.
func WithTemperature(t float64) func(o *Options) {
	return func(o *Options) { o.Temperature = &t }
}

// WithThinking requests reasoning traces.
func WithThinking() func(o *Options) {
	return func(o *Options) { o.Thinking = true }
}

// WithMaxModelCalls caps provider requests per send.
func WithMaxModelCalls(max int) func(o *Options) {
	return func(o *Options) { o.MaxModelCalls = max }
}

// WithMaxParallelTools bounds concurrent tool executions within one turn.
func WithMaxParallelTools(max int) func(o *Options) {
	return func(o *Options) { o.MaxParallelTools = max }
}

// WithMemory attaches a conversation store.
func WithMemory(store memory.Store) func(o *Options) {
	return func(o *Options) { o.Memory = store }
}

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) func(o *Options) {
	return func(o *Options) { o.Logger = logger }
}

// Agent drives conversations against one provider model. It is safe for
// concurrent sends: per-send state lives in a fresh StreamingState and a
// fresh orchestrator instance.
type Agent struct {
	provider      model.Provider
	modelName     string
	factory       orchestrator.Factory
	tools         map[string]core.Tool
	memory        memory.Store
	maxModelCalls int
	logger        logging.Logger
}

// New constructs an agent for the given model spec. The spec is
// "provider/name" (for example "openai/gpt-4o" or
// "anthropic/claude-sonnet-4-0") resolved against the built-in providers,
// or a bare model name when a provider is injected via WithProvider.
func New(modelSpec string, optFns ...func(o *Options)) (*Agent, error) {
	opts := Options{
		MaxModelCalls:    DefaultMaxModelCalls,
		MaxParallelTools: orchestrator.DefaultMaxParallelTools,
		Logger:           logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	provider, modelName, err := resolveProvider(modelSpec, opts.Provider)
	if err != nil {
		return nil, err
	}

	tools := make(map[string]core.Tool, len(opts.Tools))
	for _, t := range opts.Tools {
		if _, exists := tools[t.Name()]; exists {
			return nil, fmt.Errorf("duplicate tool name %q", t.Name())
		}
		tools[t.Name()] = t
	}

	factory := orchestrator.Resolve(provider.Capabilities(), func(o *orchestrator.Options) {
		o.Instructions = opts.Instructions
		o.Temperature = opts.Temperature
		o.Thinking = opts.Thinking
		o.MaxParallelTools = opts.MaxParallelTools
		o.Logger = opts.Logger
	})

	return &Agent{
		provider:      provider,
		modelName:     modelName,
		factory:       factory,
		tools:         tools,
		memory:        opts.Memory,
		maxModelCalls: opts.MaxModelCalls,
		logger:        opts.Logger,
	}, nil
}

// resolveProvider maps a model spec onto a provider and model name. An
// injected provider takes precedence; a "provider/" prefix matching its name
// is tolerated and stripped.
func resolveProvider(modelSpec string, injected model.Provider) (model.Provider, string, error) {
	if injected != nil {
		name := strings.TrimPrefix(modelSpec, injected.Name()+"/")
		return injected, name, nil
	}
	providerName, modelName, ok := strings.Cut(modelSpec, "/")
	if !ok {
		return nil, "", fmt.Errorf("invalid model spec %q: expected provider/name", modelSpec)
	}
	switch providerName {
	case "openai":
		return openai.NewProvider(), modelName, nil
	case "anthropic":
		return anthropic.NewProvider(), modelName, nil
	default:
		return nil, "", fmt.Errorf("unknown provider %q", providerName)
	}
}

// SendOptions configure a single send.
type SendOptions struct {
	// History is prior conversation context, oldest first.
	History []core.ChatMessage

	// Attachments are extra parts carried on the user message.
	Attachments []core.Part

	// OutputSchema constrains the final answer to a JSON schema.
	OutputSchema map[string]any

	// ConversationID loads and persists history through the agent's memory
	// store.
	ConversationID string
}

// WithHistory supplies prior conversation context.
func WithHistory(history []core.ChatMessage) func(o *SendOptions) {
	return func(o *SendOptions) { o.History = history }
}

// WithAttachments adds parts to the user message.
func WithAttachments(parts ...core.Part) func(o *SendOptions) {
	return func(o *SendOptions) { o.Attachments = append(o.Attachments, parts...) }
}

// WithOutputSchema requests typed output conforming to the schema.
func WithOutputSchema(schema map[string]any) func(o *SendOptions) {
	return func(o *SendOptions) { o.OutputSchema = schema }
}

// WithConversation names the stored conversation to continue.
func WithConversation(id string) func(o *SendOptions) {
	return func(o *SendOptions) { o.ConversationID = id }
}

// SendStream sends a prompt and yields every result chunk as it is
// produced, in strict production order. The user message is yielded before
// any model-generated chunk. Both channels are closed when the turn ends;
// an error on the second channel is terminal. Model resources are released
// on every exit path, including cancellation.
func (a *Agent) SendStream(ctx context.Context, prompt string, optFns ...func(o *SendOptions)) (<-chan core.ChatResult, <-chan error) {
	var opts SendOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	out := make(chan core.ChatResult, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)
		if err := a.run(ctx, prompt, opts, out); err != nil {
			errCh <- err
		}
	}()

	return out, errCh
}

// Send is the blocking one-shot API: SendStream drained through an
// Accumulator into one aggregate result.
func (a *Agent) Send(ctx context.Context, prompt string, optFns ...func(o *SendOptions)) (core.ChatResult, error) {
	chunks, errCh := a.SendStream(ctx, prompt, optFns...)
	acc := core.NewAccumulator()
	for res := range chunks {
		acc.Add(res)
	}
	if err, ok := <-errCh; ok && err != nil {
		return core.ChatResult{}, err
	}
	return acc.Final(), nil
}

// SendMedia is the blocking send for media-generating models. Instead of
// concatenating text it collects the generated assets: data parts and link
// references carried by the stream.
func (a *Agent) SendMedia(ctx context.Context, prompt string, optFns ...func(o *SendOptions)) (core.ChatResult, []core.Part, error) {
	chunks, errCh := a.SendStream(ctx, prompt, optFns...)
	acc := core.NewMediaAccumulator()
	for res := range chunks {
		acc.Add(res)
	}
	if err, ok := <-errCh; ok && err != nil {
		return core.ChatResult{}, nil, err
	}
	return acc.Final(), acc.Assets(), nil
}

// run drives one complete turn. State mutation is append-only, so a
// caller-level retry after a failure resumes cleanly from the last
// committed message.
func (a *Agent) run(ctx context.Context, prompt string, opts SendOptions, out chan<- core.ChatResult) error {
	history, err := a.loadHistory(opts)
	if err != nil {
		return err
	}

	userMsg := core.NewUserMessage(prompt, opts.Attachments...)
	if err := userMsg.CheckParts(); err != nil {
		return err
	}

	initial := make([]core.ChatMessage, 0, len(history)+1)
	initial = append(initial, history...)
	initial = append(initial, userMsg)
	state := core.NewStreamingState(initial, a.tools)

	m, err := a.provider.NewModel(a.modelName)
	if err != nil {
		return fmt.Errorf("failed to construct model %q: %w", a.modelName, err)
	}
	defer func() {
		if cerr := m.Close(); cerr != nil {
			a.logger.Warn("agent.model_close_failed", "error", cerr)
		}
	}()

	orch := a.factory()
	orch.Initialize(state)
	defer orch.Finalize(state)

	// The user message is always the first chunk of the turn.
	if !send(ctx, out, core.ChatResult{ID: core.NewID(), Messages: []core.ChatMessage{userMsg}}) {
		return ctx.Err()
	}

	limiter := core.NewModelLimiter(a.maxModelCalls)
	for !state.Done() {
		if err := limiter.Increment(); err != nil {
			return err
		}
		a.logger.Debug("agent.iteration", "call", limiter.Count(), "phase", state.Phase().String())

		chunks, iterErr := orch.ProcessIteration(ctx, m, state, opts.OutputSchema)
		var turnErr error
		for res := range chunks {
			if turnErr != nil {
				continue
			}
			for _, msg := range res.Messages {
				if err := msg.CheckParts(); err != nil {
					turnErr = err
					break
				}
			}
			if turnErr != nil {
				continue
			}
			if !send(ctx, out, res) {
				turnErr = ctx.Err()
			}
		}
		if turnErr != nil {
			return turnErr
		}
		if err, ok := <-iterErr; ok && err != nil {
			return err
		}
	}

	if opts.ConversationID != "" && a.memory != nil {
		produced := state.History()[len(history):]
		if err := a.memory.Append(opts.ConversationID, produced...); err != nil {
			return fmt.Errorf("failed to persist conversation %q: %w", opts.ConversationID, err)
		}
	}
	return nil
}

// loadHistory merges stored conversation history with per-send history,
// stored messages first.
func (a *Agent) loadHistory(opts SendOptions) ([]core.ChatMessage, error) {
	if opts.ConversationID == "" || a.memory == nil {
		return opts.History, nil
	}
	stored, err := a.memory.History(opts.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation %q: %w", opts.ConversationID, err)
	}
	return append(stored, opts.History...), nil
}

func send(ctx context.Context, out chan<- core.ChatResult, res core.ChatResult) bool {
	select {
	case out <- res:
		return true
	case <-ctx.Done():
		return false
	}
}
