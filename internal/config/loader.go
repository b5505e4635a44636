package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Load reads and merges configuration from global and project paths.
// Order of precedence (highest to lowest): project config, global
// config, defaults. Missing files are not errors; malformed JSON
// returns an error.
func Load(globalPath, projectPath string) (*Config, error) {
	cfg := Default()

	if globalPath != "" {
		if err := mergeConfigFile(cfg, globalPath); err != nil {
			return nil, fmt.Errorf("loading global config: %w", err)
		}
	}

	if projectPath != "" {
		if err := mergeConfigFile(cfg, projectPath); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}

	return cfg, nil
}

// LoadDefault loads configuration from conventional paths.
// Global: ~/.foreman/config.json
// Project: .foreman/config.json (relative to cwd)
func LoadDefault() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting home directory: %w", err)
	}

	globalPath := filepath.Join(homeDir, ".foreman", "config.json")
	projectPath := filepath.Join(".foreman", "config.json")

	return Load(globalPath, projectPath)
}

// mergeConfigFile reads a JSON config file and merges its non-zero
// values into the base config. Missing files are silently skipped.
func mergeConfigFile(base *Config, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var loaded Config
	if err := json.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	if loaded.Ceilings.AuditPasses > 0 {
		base.Ceilings.AuditPasses = loaded.Ceilings.AuditPasses
	}
	if loaded.Ceilings.TestPasses > 0 {
		base.Ceilings.TestPasses = loaded.Ceilings.TestPasses
	}
	if loaded.Ceilings.FinalAuditPasses > 0 {
		base.Ceilings.FinalAuditPasses = loaded.Ceilings.FinalAuditPasses
	}
	if loaded.ContextWindow > 0 {
		base.ContextWindow = loaded.ContextWindow
	}
	if loaded.TestCommand != "" {
		base.TestCommand = loaded.TestCommand
	}
	if loaded.DatabasePath != "" {
		base.DatabasePath = loaded.DatabasePath
	}
	for key, worker := range loaded.Workers {
		base.Workers[key] = worker
	}

	return nil
}
