// Package parley provides a high-level façade over the agent, model and tool
// abstractions enabling rapid construction of LLM-driven applications. Most
// applications interact with this package by:
//  1. Creating an agent via New("provider/model") with tools and instructions
//  2. Calling Send for a one-shot answer or SendStream for real-time chunks
//  3. Optionally requesting typed output with an output schema
//
// The façade delegates the conversation loop to agent.Agent while keeping
// setup ergonomics concise. Defaults are safe for local development;
// production deployments typically supply a durable conversation store and a
// structured logger.
package parley

import (
	"context"

	"github.com/parley-ai/parley/agent"
	"github.com/parley-ai/parley/config"
	"github.com/parley-ai/parley/core"
	"github.com/parley-ai/parley/logging"
	"github.com/parley-ai/parley/memory"
)

// Re-exports so simple applications only import this package.
type (
	// Agent drives conversations against one provider model.
	Agent = agent.Agent

	// ChatResult is one stream chunk or the folded aggregate of a send.
	ChatResult = core.ChatResult

	// ChatMessage is one conversation turn.
	ChatMessage = core.ChatMessage
)

// New constructs an agent for the given "provider/name" model spec.
func New(modelSpec string, optFns ...func(o *agent.Options)) (*Agent, error) {
	return agent.New(modelSpec, optFns...)
}

// NewFromEnv constructs an agent from environment configuration: model spec,
// instructions, temperature, limits and log settings all come from PARLEY_*
// variables, with an in-memory conversation store attached.
func NewFromEnv(optFns ...func(o *agent.Options)) (*Agent, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	base := []func(o *agent.Options){
		agent.WithInstructions(cfg.Instructions),
		agent.WithTemperature(cfg.Temperature),
		agent.WithMaxModelCalls(cfg.MaxModelCalls),
		agent.WithMaxParallelTools(cfg.MaxParallelTools),
		agent.WithMemory(memory.NewInMemoryStore()),
		agent.WithLogger(logging.New(&logging.Config{
			Level:  logging.ParseLevel(cfg.LogLevel),
			Format: cfg.LogFormat,
		})),
	}
	if cfg.Thinking {
		base = append(base, agent.WithThinking())
	}
	return agent.New(cfg.Model, append(base, optFns...)...)
}

// Ask is a convenience one-shot: construct an agent from the environment,
// send the prompt, return the answer text.
func Ask(ctx context.Context, prompt string) (string, error) {
	a, err := NewFromEnv()
	if err != nil {
		return "", err
	}
	res, err := a.Send(ctx, prompt)
	if err != nil {
		return "", err
	}
	return res.Output, nil
}
