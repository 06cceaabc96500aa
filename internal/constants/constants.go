// Package constants defines shared configuration constants.
package constants

var (
	ConfigFile = "config.yaml"

	DefaultDir = ".loupe"

	// ConfigDirEnv overrides the directory holding the config file.
	ConfigDirEnv = "LOUPE_CONFIG"

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "LOUPE_"

	// EngineBinaryName is the name of the decompiler engine executable.
	EngineBinaryName = "loupe-engine"

	// EngineLibexecDir is searched relative to the client executable's
	// directory when the engine is not installed next to it.
	EngineLibexecDir = "../libexec/loupe"

	// DefaultEngineHost is the loopback address the engine binds.
	DefaultEngineHost = "127.0.0.1"

	DefaultEnginePort = 50051

	// DefaultArchSpec is the language id used when none is given.
	DefaultArchSpec = "x86:LE:64:default"
)
