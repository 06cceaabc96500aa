package config

import (
	"time"
)

// SchemaVersion is the configuration schema version.
const SchemaVersion = "1"

// Config represents ~/.loupe/config.yaml.
//
// Every field can be overridden from the environment. Variable names are the
// env tag prefixed with LOUPE_, e.g. LOUPE_ENGINE_ADDRESS.
type Config struct {
	Version string        `yaml:"version"`
	Engine  EngineConfig  `yaml:"engine"`
	Session SessionConfig `yaml:"session"`
	Cache   CacheConfig   `yaml:"cache"`
	Logging LoggingConfig `yaml:"logging"`
}

// EngineConfig describes how to reach, and optionally start, the engine.
type EngineConfig struct {
	// Address is the host:port the engine listens on.
	Address string `yaml:"address" env:"ENGINE_ADDRESS"`
	// Spawn starts the engine when nothing listens on Address.
	Spawn bool `yaml:"spawn" env:"ENGINE_SPAWN"`
	// BinaryPath overrides engine discovery.
	BinaryPath string `yaml:"binary_path,omitempty" env:"ENGINE_PATH"`
	// SpecDir is the processor specification directory given to LoadBinary.
	SpecDir string `yaml:"spec_dir,omitempty" env:"ENGINE_SPEC_DIR"`
	// BlockLimit caps instructions per decompiled function in a spawned engine.
	BlockLimit int `yaml:"block_limit" env:"ENGINE_BLOCK_LIMIT"`

	StartTimeout     time.Duration `yaml:"start_timeout" env:"ENGINE_START_TIMEOUT"`
	RPCTimeout       time.Duration `yaml:"rpc_timeout" env:"ENGINE_RPC_TIMEOUT"`
	DecompileTimeout time.Duration `yaml:"decompile_timeout" env:"ENGINE_DECOMPILE_TIMEOUT"`
	HealthTimeout    time.Duration `yaml:"health_timeout" env:"ENGINE_HEALTH_TIMEOUT"`
}

// SessionConfig controls reconnection and health checking.
type SessionConfig struct {
	MaxRetries     int           `yaml:"max_retries" env:"SESSION_MAX_RETRIES"`
	InitialBackoff time.Duration `yaml:"initial_backoff" env:"SESSION_INITIAL_BACKOFF"`
	MaxBackoff     time.Duration `yaml:"max_backoff" env:"SESSION_MAX_BACKOFF"`
	Jitter         float64       `yaml:"jitter" env:"SESSION_JITTER"`
	HealthInterval time.Duration `yaml:"health_interval" env:"SESSION_HEALTH_INTERVAL"`
}

// CacheConfig sizes the decompilation result cache.
type CacheConfig struct {
	Size int `yaml:"size" env:"CACHE_SIZE"`
}

// LoggingConfig configures the client logger.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Pretty bool   `yaml:"pretty" env:"LOG_PRETTY"`
}
