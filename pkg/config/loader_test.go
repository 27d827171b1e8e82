package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeDefaultsOnly(t *testing.T) {
	// Empty config directory: no tablemind.yaml at all
	configDir := t.TempDir()

	ctx := context.Background()
	cfg, err := Initialize(ctx, configDir)

	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 5*time.Minute, cfg.Session.TTL)
	assert.Equal(t, 15, cfg.Session.MaxIterations)
	assert.Equal(t, 10, cfg.Session.MaxTables)
	assert.Equal(t, 100, cfg.Session.MaxColumns)
	assert.Equal(t, int64(150_000), cfg.Quota.DefaultTokenLimit)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, 20, cfg.RateLimit.EndpointLimit("analyze"))
	assert.Equal(t, 10, cfg.RateLimit.EndpointLimit("login"))
	assert.Equal(t, 60, cfg.RateLimit.EndpointLimit("tool_result"))
	assert.Equal(t, 60, cfg.RateLimit.EndpointLimit("resume"))
	assert.Equal(t, 0, cfg.RateLimit.EndpointLimit("unknown"))

	// Built-in tiers
	require.True(t, cfg.TierRegistry.Has(ModelTierLow))
	require.True(t, cfg.TierRegistry.Has(ModelTierHigh))

	low, err := cfg.TierRegistry.Get(ModelTierLow)
	require.NoError(t, err)
	assert.False(t, low.RequiresPaid)
	assert.False(t, low.SupportsThinking)

	high, err := cfg.TierRegistry.Get(ModelTierHigh)
	require.NoError(t, err)
	assert.True(t, high.RequiresPaid)
	assert.True(t, high.SupportsThinking)
	assert.GreaterOrEqual(t, high.ThinkingBudget, int64(1024))
	assert.Greater(t, high.ThinkingMaxTokens, high.ThinkingBudget)
}

func TestInitializeYAMLOverrides(t *testing.T) {
	configDir := t.TempDir()

	userConfig := `
session:
  max_iterations: 2
  sample_row_limit: 3
llm:
  tiers:
    high:
      model: "claude-opus-4-6"
quota:
  default_token_limit: 50000
`
	err := os.WriteFile(filepath.Join(configDir, ConfigFileName), []byte(userConfig), 0644)
	require.NoError(t, err)

	ctx := context.Background()
	cfg, err := Initialize(ctx, configDir)
	require.NoError(t, err)

	// Overridden values
	assert.Equal(t, 2, cfg.Session.MaxIterations)
	assert.Equal(t, 3, cfg.Session.SampleRowLimit)
	assert.Equal(t, int64(50000), cfg.Quota.DefaultTokenLimit)

	// Unset values keep defaults
	assert.Equal(t, 5*time.Minute, cfg.Session.TTL)
	assert.Equal(t, 10, cfg.Session.MaxTables)

	// Tier merge: model overridden, remaining fields from the built-in
	high, err := cfg.TierRegistry.Get(ModelTierHigh)
	require.NoError(t, err)
	assert.Equal(t, "claude-opus-4-6", high.Model)
	assert.True(t, high.SupportsThinking)
	assert.True(t, high.RequiresPaid)
}

func TestInitializeEnvExpansion(t *testing.T) {
	configDir := t.TempDir()
	t.Setenv("TEST_MODEL_NAME", "claude-haiku-4-5-custom")

	userConfig := `
llm:
  tiers:
    low:
      model: "{{.TEST_MODEL_NAME}}"
`
	err := os.WriteFile(filepath.Join(configDir, ConfigFileName), []byte(userConfig), 0644)
	require.NoError(t, err)

	cfg, err := Initialize(context.Background(), configDir)
	require.NoError(t, err)

	low, err := cfg.TierRegistry.Get(ModelTierLow)
	require.NoError(t, err)
	assert.Equal(t, "claude-haiku-4-5-custom", low.Model)
}

func TestInitializeInvalidYAML(t *testing.T) {
	configDir := t.TempDir()

	err := os.WriteFile(filepath.Join(configDir, ConfigFileName), []byte("session: [not: a: map"), 0644)
	require.NoError(t, err)

	_, err = Initialize(context.Background(), configDir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load configuration")
}

func TestInitializeUnknownTierRejected(t *testing.T) {
	configDir := t.TempDir()

	userConfig := `
llm:
  tiers:
    turbo:
      model: "claude-sonnet-4-5"
      max_tokens: 2048
`
	err := os.WriteFile(filepath.Join(configDir, ConfigFileName), []byte(userConfig), 0644)
	require.NoError(t, err)

	_, err = Initialize(context.Background(), configDir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "turbo")
}

func TestInitializeValidationFailure(t *testing.T) {
	tests := []struct {
		name     string
		yaml     string
		contains string
	}{
		{
			name: "llm timeout below provider floor",
			yaml: "llm:\n  timeout: 5\n",
			// 5ns is far below the 60s floor
			contains: "timeout",
		},
		{
			name:     "thinking budget below provider minimum",
			yaml:     "llm:\n  tiers:\n    high:\n      thinking_budget: 512\n",
			contains: "thinking_budget",
		},
		{
			name:     "zero rate limit",
			yaml:     "rate_limit:\n  endpoints:\n    analyze: -1\n",
			contains: "rate limit",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configDir := t.TempDir()
			err := os.WriteFile(filepath.Join(configDir, ConfigFileName), []byte(tt.yaml), 0644)
			require.NoError(t, err)

			_, err = Initialize(context.Background(), configDir)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestParseModelTier(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want ModelTier
	}{
		{name: "low", raw: "low", want: ModelTierLow},
		{name: "high", raw: "high", want: ModelTierHigh},
		{name: "empty falls back to low", raw: "", want: ModelTierLow},
		{name: "unknown falls back to low", raw: "ultra", want: ModelTierLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseModelTier(tt.raw))
		})
	}
}
