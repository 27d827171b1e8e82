package config

import (
	"fmt"
	"time"
)

// ConfigValidator validates configuration comprehensively with clear error messages
type ConfigValidator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration
func NewValidator(cfg *Config) *ConfigValidator {
	return &ConfigValidator{cfg: cfg}
}

// ValidateAll performs comprehensive validation (fail-fast - stops at first error)
func (v *ConfigValidator) ValidateAll() error {
	if err := v.validateSession(); err != nil {
		return fmt.Errorf("session validation failed: %w", err)
	}

	if err := v.validateLLM(); err != nil {
		return fmt.Errorf("llm validation failed: %w", err)
	}

	if err := v.validateTiers(); err != nil {
		return fmt.Errorf("tier validation failed: %w", err)
	}

	if err := v.validateRateLimit(); err != nil {
		return fmt.Errorf("rate limit validation failed: %w", err)
	}

	if err := v.validateQuota(); err != nil {
		return fmt.Errorf("quota validation failed: %w", err)
	}

	return nil
}

func (v *ConfigValidator) validateSession() error {
	s := v.cfg.Session
	if s.TTL <= 0 {
		return NewValidationError("session", "", "ttl", fmt.Errorf("must be positive"))
	}
	if s.MaxIterations < 1 {
		return NewValidationError("session", "", "max_iterations", fmt.Errorf("must be at least 1"))
	}
	if s.MaxTables < 1 {
		return NewValidationError("session", "", "max_tables", fmt.Errorf("must be at least 1"))
	}
	if s.MaxColumns < 1 {
		return NewValidationError("session", "", "max_columns", fmt.Errorf("must be at least 1"))
	}
	if s.SampleRowLimit < 0 {
		return NewValidationError("session", "", "sample_row_limit", fmt.Errorf("must not be negative"))
	}
	if s.ResultRowLimit < 1 {
		return NewValidationError("session", "", "result_row_limit", fmt.Errorf("must be at least 1"))
	}
	if s.LockTTL <= 0 {
		return NewValidationError("session", "", "lock_ttl", fmt.Errorf("must be positive"))
	}
	return nil
}

func (v *ConfigValidator) validateLLM() error {
	l := v.cfg.LLM
	if l.APIKeyEnv == "" {
		return NewValidationError("llm", "", "api_key_env", ErrMissingRequiredField)
	}
	// Provider calls can take tens of seconds; anything under a minute
	// aborts legitimate long turns.
	if l.Timeout < 60*time.Second {
		return NewValidationError("llm", "", "timeout", fmt.Errorf("must be at least 60s"))
	}
	return nil
}

func (v *ConfigValidator) validateTiers() error {
	if v.cfg.TierRegistry == nil || v.cfg.TierRegistry.Len() == 0 {
		return NewValidationError("tier", "", "", fmt.Errorf("at least one tier required"))
	}
	if !v.cfg.TierRegistry.Has(ModelTierLow) {
		return NewValidationError("tier", string(ModelTierLow), "", fmt.Errorf("default tier must be defined"))
	}

	for _, name := range []ModelTier{ModelTierLow, ModelTierHigh} {
		tier, err := v.cfg.TierRegistry.Get(name)
		if err != nil {
			continue
		}
		if tier.Model == "" {
			return NewValidationError("tier", string(name), "model", ErrMissingRequiredField)
		}
		if tier.MaxTokens < 1 {
			return NewValidationError("tier", string(name), "max_tokens", fmt.Errorf("must be at least 1"))
		}
		if tier.SupportsThinking {
			if tier.ThinkingBudget < 1024 {
				return NewValidationError("tier", string(name), "thinking_budget", fmt.Errorf("provider minimum is 1024"))
			}
			if tier.ThinkingMaxTokens <= tier.ThinkingBudget {
				return NewValidationError("tier", string(name), "thinking_max_tokens", fmt.Errorf("must exceed thinking_budget"))
			}
		}
	}
	return nil
}

func (v *ConfigValidator) validateRateLimit() error {
	r := v.cfg.RateLimit
	if r.Window <= 0 {
		return NewValidationError("rate_limit", "", "window", fmt.Errorf("must be positive"))
	}
	for endpoint, limit := range r.Endpoints {
		if limit < 1 {
			return NewValidationError("rate_limit", endpoint, "limit", fmt.Errorf("must be at least 1"))
		}
	}
	return nil
}

func (v *ConfigValidator) validateQuota() error {
	if v.cfg.Quota.DefaultTokenLimit < 1 {
		return NewValidationError("quota", "", "default_token_limit", fmt.Errorf("must be at least 1"))
	}
	return nil
}
