package config

import (
	"net"
	"strconv"

	"github.com/loupe-re/loupe/internal/constants"
)

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: SchemaVersion,
		Engine: EngineConfig{
			Address:          net.JoinHostPort(constants.DefaultEngineHost, strconv.Itoa(constants.DefaultEnginePort)),
			Spawn:            true,
			BlockLimit:       constants.DefaultBlockLimit,
			StartTimeout:     constants.DefaultConnectTimeout,
			RPCTimeout:       constants.DefaultRPCTimeout,
			DecompileTimeout: constants.DefaultDecompileTimeout,
			HealthTimeout:    constants.DefaultHealthTimeout,
		},
		Session: SessionConfig{
			MaxRetries:     constants.DefaultMaxRetries,
			InitialBackoff: constants.DefaultInitialRetryDelay,
			MaxBackoff:     constants.DefaultMaxRetryDelay,
			Jitter:         constants.DefaultRetryJitter,
			HealthInterval: constants.DefaultHealthCheckInterval,
		},
		Cache: CacheConfig{
			Size: constants.DefaultCacheSize,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Pretty: true,
		},
	}
}
