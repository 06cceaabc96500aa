package config

import (
	"fmt"

	"github.com/caarlos0/env/v8"

	"github.com/loupe-re/loupe/internal/constants"
)

// LoadFromEnv overrides cfg fields from LOUPE_* environment variables, as
// named by their `env` struct tags. Unset variables leave fields untouched.
func LoadFromEnv(cfg *Config) error {
	return loadFromEnv(cfg, nil)
}

// loadFromEnv reads from environment instead of the process environment
// when it is non-nil.
func loadFromEnv(cfg *Config, environment map[string]string) error {
	opts := env.Options{Prefix: constants.EnvPrefix}
	if environment != nil {
		opts.Environment = environment
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}
	return nil
}
