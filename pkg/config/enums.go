package config

// ModelTier selects an LLM configuration by capability class.
type ModelTier string

const (
	// ModelTierLow is the default tier available to every user.
	ModelTierLow ModelTier = "low"
	// ModelTierHigh is the premium tier; requires a paid entitlement.
	ModelTierHigh ModelTier = "high"
)

// IsValid checks if the model tier is a known tier name.
func (t ModelTier) IsValid() bool {
	return t == ModelTierLow || t == ModelTierHigh
}

// ParseModelTier maps a raw request value to a tier, falling back to
// ModelTierLow for unknown or empty values.
func ParseModelTier(raw string) ModelTier {
	t := ModelTier(raw)
	if t.IsValid() {
		return t
	}
	return ModelTierLow
}
