package config

import (
	"fmt"
	"sync"
)

// TierConfig defines the model settings bound to one tier.
type TierConfig struct {
	// Model name (required)
	Model string `yaml:"model"`

	// MaxTokens is the completion cap for normal turns (required, min 1)
	MaxTokens int64 `yaml:"max_tokens"`

	// SupportsThinking enables extended thinking for this tier. Requests
	// asking for thinking on a tier without support run without it.
	SupportsThinking bool `yaml:"supports_thinking"`

	// ThinkingMaxTokens is the raised completion cap when thinking is
	// enabled. Must exceed ThinkingBudget.
	ThinkingMaxTokens int64 `yaml:"thinking_max_tokens"`

	// ThinkingBudget is the thinking token budget (provider minimum 1024).
	ThinkingBudget int64 `yaml:"thinking_budget"`

	// RequiresPaid gates the tier behind a paid entitlement.
	RequiresPaid bool `yaml:"requires_paid"`
}

// TierRegistry stores tier configurations in memory with thread-safe access.
type TierRegistry struct {
	tiers map[ModelTier]*TierConfig
	mu    sync.RWMutex
}

// NewTierRegistry creates a tier registry from the given tier map.
func NewTierRegistry(tiers map[ModelTier]*TierConfig) *TierRegistry {
	// Copy to prevent external mutation
	copied := make(map[ModelTier]*TierConfig, len(tiers))
	for k, v := range tiers {
		copied[k] = v
	}
	return &TierRegistry{
		tiers: copied,
	}
}

// Get retrieves a tier configuration by name (thread-safe).
func (r *TierRegistry) Get(tier ModelTier) (*TierConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cfg, exists := r.tiers[tier]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrTierNotFound, tier)
	}
	return cfg, nil
}

// Has checks if a tier exists in the registry (thread-safe).
func (r *TierRegistry) Has(tier ModelTier) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.tiers[tier]
	return exists
}

// Len returns the number of tiers in the registry (thread-safe).
func (r *TierRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tiers)
}
