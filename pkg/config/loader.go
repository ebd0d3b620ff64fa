package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// configFileName is the user configuration file looked up in the config dir.
const configFileName = "sommelier.yaml"

// Initialize loads, merges, and validates ready-to-use configuration.
//
// Steps:
//  1. Start from built-in defaults
//  2. Load sommelier.yaml from configDir if present
//  3. Expand environment variables ({{.VAR}} template syntax)
//  4. Merge user config over defaults
//  5. Validate
func Initialize(configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)

	cfg := builtinConfig()

	path := filepath.Join(configDir, configFileName)
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		log.Info("No user configuration found, using built-in defaults", "path", path)
	case err != nil:
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	default:
		var user Config
		if err := yaml.Unmarshal(ExpandEnv(data), &user); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", configFileName, err)
		}
		if err := mergo.Merge(cfg, &user, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge configuration: %w", err)
		}
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	log.Info("Configuration initialized",
		"providers", len(cfg.Providers),
		"task_routes", len(cfg.TaskRouting))
	return cfg, nil
}

// APIKey resolves a provider's key from its configured environment variable.
func (p ProviderConfig) APIKey() string {
	if p.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(p.APIKeyEnv)
}
