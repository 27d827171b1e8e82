package config

import "time"

// Built-in defaults. YAML values override these; env vars override neither
// (env covers operational settings only, resolved in main).
const (
	// DefaultSessionTTL is the session inactivity timeout.
	DefaultSessionTTL = 5 * time.Minute

	// DefaultMaxIterations caps LLM turns per session.
	DefaultMaxIterations = 15

	// DefaultLLMTimeout bounds a single provider request.
	DefaultLLMTimeout = 120 * time.Second

	// DefaultAPIKeyEnv names the provider API key environment variable.
	DefaultAPIKeyEnv = "ANTHROPIC_API_KEY"

	// DefaultTokenLimit is the monthly token allowance without an override.
	DefaultTokenLimit = 150_000

	// DefaultRateWindow is the sliding-window width for rate limiting.
	DefaultRateWindow = time.Minute
)

// DefaultServerConfig returns built-in HTTP server settings.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ShutdownTimeout: 10 * time.Second,
	}
}

// DefaultSessionConfig returns built-in session settings.
func DefaultSessionConfig() *SessionConfig {
	return &SessionConfig{
		TTL:            DefaultSessionTTL,
		MaxIterations:  DefaultMaxIterations,
		MaxTables:      10,
		MaxColumns:     100,
		SampleRowLimit: 5,
		ResultRowLimit: 500,
		LockTTL:        90 * time.Second,
	}
}

// DefaultLLMConfig returns built-in provider settings without tiers.
func DefaultLLMConfig() *LLMConfig {
	return &LLMConfig{
		APIKeyEnv: DefaultAPIKeyEnv,
		Timeout:   DefaultLLMTimeout,
	}
}

// DefaultRateLimitConfig returns built-in per-endpoint request limits.
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		Window: DefaultRateWindow,
		Endpoints: map[string]int{
			"analyze":     20,
			"login":       10,
			"tool_result": 60,
			"resume":      60,
		},
	}
}

// DefaultQuotaConfig returns built-in quota settings.
func DefaultQuotaConfig() *QuotaConfig {
	return &QuotaConfig{
		DefaultTokenLimit: DefaultTokenLimit,
	}
}

// BuiltinTiers returns the built-in model tier definitions.
// The low tier is available to everyone; the high tier adds extended
// thinking and requires a paid entitlement.
func BuiltinTiers() map[ModelTier]*TierConfig {
	return map[ModelTier]*TierConfig{
		ModelTierLow: {
			Model:     "claude-haiku-4-5",
			MaxTokens: 4096,
		},
		ModelTierHigh: {
			Model:             "claude-sonnet-4-5",
			MaxTokens:         8192,
			SupportsThinking:  true,
			ThinkingMaxTokens: 16384,
			ThinkingBudget:    4096,
			RequiresPaid:      true,
		},
	}
}
