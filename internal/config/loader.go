// Package config provides configuration loading and management.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/loupe-re/loupe/internal/constants"
	"github.com/loupe-re/loupe/internal/safe"
)

// Loader handles loading and saving configuration files.
type Loader struct {
	homeDir string
}

// NewLoader creates a new config loader.
// The base directory is resolved in this order:
//  1. LOUPE_CONFIG environment variable.
//  2. User home directory (~/).
//  3. The system temp directory, when there is no home directory.
func NewLoader() *Loader {
	if baseDir := os.Getenv(constants.ConfigDirEnv); baseDir != "" {
		return &Loader{homeDir: baseDir}
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		return &Loader{homeDir: homeDir}
	}

	// Config files won't exist here, so Load returns defaults + env overrides.
	return &Loader{homeDir: filepath.Join(os.TempDir(), "loupe-fallback")}
}

// ConfigPath returns the path to the config file.
func (l *Loader) ConfigPath() string {
	return filepath.Join(l.homeDir, constants.DefaultDir, constants.ConfigFile)
}

// Load loads the configuration with layered precedence:
//  1. Defaults
//  2. File (if it exists)
//  3. Environment variables
//
// Command-line flags are applied by the caller afterwards.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	path := l.ConfigPath()
	if err := mergeFromFile(cfg, path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}

	if err := LoadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	return cfg, nil
}

// Save writes cfg to the config file.
func (l *Loader) Save(cfg *Config) error {
	path := l.ConfigPath()

	//nolint:gosec // G301: Directory needs standard permissions for traversal
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	//nolint:gosec // G306: Config file is not sensitive
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// mergeFromFile loads a YAML file over cfg. Keys absent from the file keep
// their current values.
func mergeFromFile(cfg *Config, path string) error {
	data, err := safe.ReadFile(path, &safe.ReadOptions{AllowSymlinks: true})
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	return nil
}
