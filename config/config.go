// Package config loads SDK settings from the environment. All variables use
// the PARLEY_ prefix except provider API keys, which keep the names the
// vendor SDKs read natively.
package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v9"
)

// Config holds runtime settings for constructing agents.
type Config struct {
	// Model is the default model spec, "provider/name".
	Model string `env:"PARLEY_MODEL" envDefault:"openai/gpt-4o-mini"`

	// Instructions is the default system prompt.
	Instructions string `env:"PARLEY_INSTRUCTIONS"`

	// Temperature overrides the provider default when set.
	Temperature float64 `env:"PARLEY_TEMPERATURE" envDefault:"0.7"`

	// MaxModelCalls caps provider requests per send.
	MaxModelCalls int `env:"PARLEY_MAX_MODEL_CALLS" envDefault:"10"`

	// MaxParallelTools bounds concurrent tool executions per turn.
	MaxParallelTools int `env:"PARLEY_MAX_PARALLEL_TOOLS" envDefault:"4"`

	// Thinking requests reasoning traces where supported.
	Thinking bool `env:"PARLEY_THINKING"`

	// LogLevel controls structured log verbosity (debug, info, warn, error).
	LogLevel string `env:"PARLEY_LOG_LEVEL" envDefault:"info"`

	// LogFormat selects the slog handler (text or json).
	LogFormat string `env:"PARLEY_LOG_FORMAT" envDefault:"text"`

	// API keys are read by the vendor SDKs directly; mirrored here so
	// callers can check presence up front.
	OpenAIAPIKey    string `env:"OPENAI_API_KEY"`
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`
}

// Load reads the configuration from the environment.
func Load() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, fmt.Errorf("failed to parse environment: %w", err)
	}
	return c, nil
}

// HasKeyFor reports whether the API key for the given provider is present.
func (c Config) HasKeyFor(provider string) bool {
	switch provider {
	case "openai":
		return c.OpenAIAPIKey != ""
	case "anthropic":
		return c.AnthropicAPIKey != ""
	default:
		return false
	}
}

// SplitModelSpec splits a "provider/name" spec into its two halves.
func SplitModelSpec(spec string) (provider, name string, err error) {
	provider, name, ok := strings.Cut(spec, "/")
	if !ok || provider == "" || name == "" {
		return "", "", fmt.Errorf("invalid model spec %q: expected provider/name", spec)
	}
	return provider, name, nil
}
