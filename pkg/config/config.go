// Package config loads and validates tablemind configuration.
//
// Configuration is resolved in three layers: built-in defaults, an optional
// tablemind.yaml file in the config directory, and environment variables for
// operational settings (addresses, secrets, log level). YAML values override
// built-in defaults; the file may be absent entirely.
package config

import "time"

// Config is the root configuration shared across components.
type Config struct {
	Server    *ServerConfig
	Session   *SessionConfig
	LLM       *LLMConfig
	RateLimit *RateLimitConfig
	Quota     *QuotaConfig

	// TierRegistry resolves model tier names to provider settings.
	TierRegistry *TierRegistry

	configDir string
}

// ServerConfig groups HTTP server settings.
type ServerConfig struct {
	// ShutdownTimeout bounds graceful HTTP shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// SessionConfig groups session lifecycle and input-validation settings.
type SessionConfig struct {
	// TTL is the session inactivity timeout; refreshed on every store access.
	TTL time.Duration `yaml:"ttl"`

	// MaxIterations caps LLM turns per session.
	MaxIterations int `yaml:"max_iterations"`

	// MaxTables caps the number of tables accepted in a schema.
	MaxTables int `yaml:"max_tables"`

	// MaxColumns caps columns per table.
	MaxColumns int `yaml:"max_columns"`

	// SampleRowLimit caps sample rows kept per table; excess rows are
	// silently truncated at admission.
	SampleRowLimit int `yaml:"sample_row_limit"`

	// ResultRowLimit caps tool-result rows persisted in the session record.
	// Larger results are truncated with a marker before commit.
	ResultRowLimit int `yaml:"result_row_limit"`

	// LockTTL bounds the advisory per-session turn lock.
	LockTTL time.Duration `yaml:"lock_ttl"`
}

// LLMConfig groups provider-level settings shared by all tiers.
type LLMConfig struct {
	// APIKeyEnv names the environment variable holding the provider API key.
	APIKeyEnv string `yaml:"api_key_env"`

	// Timeout bounds a single provider request. Must be at least 60s; the
	// turn loop has no separate budget beyond this.
	Timeout time.Duration `yaml:"timeout"`

	// Tiers maps tier names to model settings. Merged over built-in tiers.
	Tiers map[string]*TierConfig `yaml:"tiers"`
}

// RateLimitConfig groups sliding-window admission settings.
type RateLimitConfig struct {
	// Window is the sliding window width.
	Window time.Duration `yaml:"window"`

	// Endpoints maps endpoint names to requests allowed per window.
	Endpoints map[string]int `yaml:"endpoints"`
}

// QuotaConfig groups per-user token accounting settings.
type QuotaConfig struct {
	// DefaultTokenLimit is the monthly token allowance for users without a
	// per-user override in the backing store.
	DefaultTokenLimit int64 `yaml:"default_token_limit"`
}

// ConfigDir returns the directory the configuration was loaded from.
func (c *Config) ConfigDir() string {
	return c.configDir
}

// EndpointLimit returns the per-window request limit for an endpoint,
// or 0 when the endpoint is not rate limited.
func (c *RateLimitConfig) EndpointLimit(endpoint string) int {
	return c.Endpoints[endpoint]
}
