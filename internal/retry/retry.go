// Package retry runs an operation with exponential backoff until it
// succeeds, fails permanently, or the attempt budget is spent.
//
// The session layer uses it to reconnect to the decompiler engine: each
// attempt reaches (or spawns) the engine and pings it, and the wait between
// attempts doubles up to a cap.
//
//	err := retry.Do(ctx, retry.DefaultConfig(), func(ctx context.Context, attempt int) error {
//	    return connectAndPing(ctx)
//	}, nil)
//
// Backoff waits end early when ctx is cancelled; Do then returns ctx.Err().
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/loupe-re/loupe/internal/constants"
)

// ErrExhausted is wrapped by the error Do returns when every attempt failed.
var ErrExhausted = errors.New("retries exhausted")

// Config defines the retry behavior.
type Config struct {
	// MaxRetries is the total number of attempts. Values below one mean a
	// single attempt.
	MaxRetries int

	// InitialBackoff is the wait before the second attempt. Each further
	// wait doubles it.
	InitialBackoff time.Duration

	// MaxBackoff caps a single wait. Zero means no cap.
	MaxBackoff time.Duration

	// Jitter (0.0 to 1.0) stretches each wait by up to this fraction,
	// growing linearly with the attempt number.
	Jitter float64

	// OnRetry, when set, is called after a failed attempt that will be
	// retried, with the wait that precedes the next attempt.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// DefaultConfig returns the reconnection policy used when none is configured.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     constants.DefaultMaxRetries,
		InitialBackoff: constants.DefaultInitialRetryDelay,
		MaxBackoff:     constants.DefaultMaxRetryDelay,
		Jitter:         constants.DefaultRetryJitter,
	}
}

// ShouldRetryFunc reports whether err is worth another attempt. A nil
// ShouldRetryFunc retries every error.
type ShouldRetryFunc func(error) bool

// Func is one attempt. attempt starts at 1.
type Func func(ctx context.Context, attempt int) error

// Do calls fn until it returns nil, returns an error shouldRetry rejects, or
// cfg.MaxRetries attempts have failed. In the last case the returned error
// wraps both ErrExhausted and fn's final error.
func Do(ctx context.Context, cfg Config, fn Func, shouldRetry ShouldRetryFunc) error {
	attempts := cfg.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		if shouldRetry != nil && !shouldRetry(err) {
			return err
		}
		lastErr = err

		if attempt == attempts {
			break
		}

		wait := Backoff(cfg, attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempts, lastErr)
}

// Backoff returns the wait after the given failed attempt:
// InitialBackoff * 2^(attempt-1), capped at MaxBackoff, plus jitter.
func Backoff(cfg Config, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	wait := time.Duration(math.Pow(2, float64(attempt-1)) * float64(cfg.InitialBackoff))

	if cfg.MaxBackoff > 0 && wait > cfg.MaxBackoff {
		wait = cfg.MaxBackoff
	}

	if cfg.Jitter > 0 && cfg.MaxRetries > 0 {
		wait += time.Duration(float64(wait) * cfg.Jitter * float64(attempt) / float64(cfg.MaxRetries))
	}

	return wait
}
