package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "openai/gpt-4o-mini", cfg.Model)
	assert.Equal(t, 10, cfg.MaxModelCalls)
	assert.Equal(t, 4, cfg.MaxParallelTools)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PARLEY_MODEL", "anthropic/claude-sonnet-4-0")
	t.Setenv("PARLEY_MAX_MODEL_CALLS", "3")
	t.Setenv("PARLEY_THINKING", "true")
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "anthropic/claude-sonnet-4-0", cfg.Model)
	assert.Equal(t, 3, cfg.MaxModelCalls)
	assert.True(t, cfg.Thinking)
	assert.True(t, cfg.HasKeyFor("anthropic"))
	assert.False(t, cfg.HasKeyFor("mistral"))
}

func TestSplitModelSpec(t *testing.T) {
	provider, name, err := SplitModelSpec("openai/gpt-4o")
	require.NoError(t, err)
	assert.Equal(t, "openai", provider)
	assert.Equal(t, "gpt-4o", name)

	_, _, err = SplitModelSpec("gpt-4o")
	assert.Error(t, err)

	_, _, err = SplitModelSpec("/gpt-4o")
	assert.Error(t, err)
}
