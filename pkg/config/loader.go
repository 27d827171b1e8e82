package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// ConfigFileName is the optional YAML file read from the config directory.
const ConfigFileName = "tablemind.yaml"

// tablemindYAMLConfig represents the complete tablemind.yaml file structure.
// Every section is optional; absent sections keep built-in defaults.
type tablemindYAMLConfig struct {
	Server    *ServerConfig    `yaml:"server"`
	Session   *SessionConfig   `yaml:"session"`
	LLM       *LLMConfig       `yaml:"llm"`
	RateLimit *RateLimitConfig `yaml:"rate_limit"`
	Quota     *QuotaConfig     `yaml:"quota"`
}

// Initialize loads, validates, and returns ready-to-use configuration.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Load tablemind.yaml from configDir (absent file = defaults only)
//  2. Expand environment variables
//  3. Merge built-in defaults under user values
//  4. Build the tier registry
//  5. Validate all configuration
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidationFailed, err)
	}

	log.Info("Configuration initialized successfully",
		"tiers", cfg.TierRegistry.Len(),
		"rate_endpoints", len(cfg.RateLimit.Endpoints),
		"max_iterations", cfg.Session.MaxIterations)

	return cfg, nil
}

// load is the internal loader (not exported)
func load(_ context.Context, configDir string) (*Config, error) {
	yamlCfg, err := loadYAMLFile(configDir)
	if err != nil {
		return nil, NewLoadError(ConfigFileName, err)
	}

	server := DefaultServerConfig()
	session := DefaultSessionConfig()
	llm := DefaultLLMConfig()
	rateLimit := DefaultRateLimitConfig()
	quota := DefaultQuotaConfig()

	// Merge user-provided sections into defaults (non-zero values override)
	if yamlCfg.Server != nil {
		if err := mergo.Merge(server, yamlCfg.Server, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge server config: %w", err)
		}
	}
	if yamlCfg.Session != nil {
		if err := mergo.Merge(session, yamlCfg.Session, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge session config: %w", err)
		}
	}
	if yamlCfg.LLM != nil {
		if err := mergo.Merge(llm, yamlCfg.LLM, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge llm config: %w", err)
		}
	}
	if yamlCfg.RateLimit != nil {
		if err := mergo.Merge(rateLimit, yamlCfg.RateLimit, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge rate_limit config: %w", err)
		}
	}
	if yamlCfg.Quota != nil {
		if err := mergo.Merge(quota, yamlCfg.Quota, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge quota config: %w", err)
		}
	}

	tiers, err := mergeTiers(BuiltinTiers(), llm.Tiers)
	if err != nil {
		return nil, err
	}

	return &Config{
		configDir:    configDir,
		Server:       server,
		Session:      session,
		LLM:          llm,
		RateLimit:    rateLimit,
		Quota:        quota,
		TierRegistry: NewTierRegistry(tiers),
	}, nil
}

// loadYAMLFile reads and parses tablemind.yaml. A missing file is not an
// error; deployments that configure everything via env and defaults carry
// no YAML at all.
func loadYAMLFile(configDir string) (*tablemindYAMLConfig, error) {
	var config tablemindYAMLConfig

	path := filepath.Join(configDir, ConfigFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Info("No configuration file found, using built-in defaults", "path", path)
			return &config, nil
		}
		return nil, err
	}

	// Expand environment variables using {{.VAR}} template syntax
	data = ExpandEnv(data)

	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	return &config, nil
}

// mergeTiers overlays user-defined tiers on the built-in set. Unknown tier
// names are rejected; per-tier fields merge with user values winning.
func mergeTiers(builtin map[ModelTier]*TierConfig, user map[string]*TierConfig) (map[ModelTier]*TierConfig, error) {
	merged := make(map[ModelTier]*TierConfig, len(builtin))
	for name, tier := range builtin {
		copied := *tier
		merged[name] = &copied
	}

	for name, tier := range user {
		if tier == nil {
			continue
		}
		tierName := ModelTier(name)
		if !tierName.IsValid() {
			return nil, NewValidationError("tier", name, "", ErrTierNotFound)
		}
		base, ok := merged[tierName]
		if !ok {
			copied := *tier
			merged[tierName] = &copied
			continue
		}
		if err := mergo.Merge(base, tier, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge tier %q: %w", name, err)
		}
	}

	return merged, nil
}

// validate performs comprehensive validation on loaded configuration
func validate(cfg *Config) error {
	return NewValidator(cfg).ValidateAll()
}
