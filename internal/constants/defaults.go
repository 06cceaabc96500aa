// Package constants defines shared configuration constants and defaults.
package constants

import "time"

// Timeouts - Default timeout values.
const (
	// DefaultRPCTimeout is the default timeout for load and disassemble calls.
	DefaultRPCTimeout = 10 * time.Second

	// DefaultDecompileTimeout is the default timeout for one decompilation.
	DefaultDecompileTimeout = 30 * time.Second

	// DefaultHealthTimeout is the default timeout for health checks.
	DefaultHealthTimeout = 500 * time.Millisecond

	// DefaultConnectTimeout bounds one attempt to reach or spawn the engine.
	DefaultConnectTimeout = 5 * time.Second

	// DefaultShutdownTimeout bounds graceful engine shutdown.
	DefaultShutdownTimeout = 10 * time.Second
)

// Intervals - Default periodic task intervals.
const (
	// DefaultHealthCheckInterval is the default interval between engine pings.
	DefaultHealthCheckInterval = 5 * time.Second
)

// Reconnection - Default reconnection settings.
const (
	// DefaultMaxRetries is the default number of reconnect attempts.
	DefaultMaxRetries = 5

	// DefaultInitialRetryDelay is the delay before the second attempt.
	DefaultInitialRetryDelay = 500 * time.Millisecond

	// DefaultMaxRetryDelay caps the exponential backoff.
	DefaultMaxRetryDelay = 8 * time.Second

	// DefaultRetryJitter is the fraction of random jitter added to each delay.
	DefaultRetryJitter = 0.1
)

// Engine Limits - Default engine resource limits.
const (
	// DefaultBlockLimit caps the instructions in a function's entry block.
	DefaultBlockLimit = 200

	// DefaultMaxDisassembleBytes caps one DisassembleRange request.
	DefaultMaxDisassembleBytes = 1 << 20

	// DefaultMaxDisassembleInstructions caps the instructions one
	// DisassembleRange request returns.
	DefaultMaxDisassembleInstructions = 20000

	// DefaultMaxBinarySize caps the size of a binary the client will load.
	DefaultMaxBinarySize = 512 << 20
)

// Cache - Default result cache settings.
const (
	// DefaultCacheSize is the default number of cached function results.
	DefaultCacheSize = 4096
)
