package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Validator is the interface for validating configuration.
type Validator interface {
	Validate() error
}

// ValidationError represents a single validation error.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// MultiValidationError represents multiple validation errors.
type MultiValidationError struct {
	Errors []ValidationError
}

// Error implements the error interface.
func (e *MultiValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}

	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("validation failed with %d errors:\n", len(e.Errors)))
	for i, err := range e.Errors {
		builder.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return builder.String()
}

// Validate validates Config.
func (c *Config) Validate() error {
	var errors []ValidationError

	if c.Version == "" {
		errors = append(errors, ValidationError{Field: "version", Message: "version is required"})
	}

	errors = append(errors, c.Engine.validate()...)
	errors = append(errors, c.Session.validate()...)

	if c.Cache.Size <= 0 {
		errors = append(errors, ValidationError{Field: "cache.size", Message: "cache size must be positive"})
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Message: "log level must be 'debug', 'info', 'warn', or 'error'",
		})
	}

	if len(errors) > 0 {
		return &MultiValidationError{Errors: errors}
	}
	return nil
}

func (c *EngineConfig) validate() []ValidationError {
	var errors []ValidationError

	if c.Address == "" {
		errors = append(errors, ValidationError{Field: "engine.address", Message: "engine address is required"})
	} else if host, port, err := net.SplitHostPort(c.Address); err != nil {
		errors = append(errors, ValidationError{
			Field:   "engine.address",
			Message: fmt.Sprintf("invalid address %q: %v", c.Address, err),
		})
	} else {
		if host == "" {
			errors = append(errors, ValidationError{Field: "engine.address", Message: "host is required"})
		}
		if p, err := strconv.Atoi(port); err != nil || p < 1 || p > 65535 {
			errors = append(errors, ValidationError{
				Field:   "engine.address",
				Message: fmt.Sprintf("invalid port %q", port),
			})
		}
	}

	if c.BlockLimit <= 0 {
		errors = append(errors, ValidationError{Field: "engine.block_limit", Message: "block limit must be positive"})
	}

	for _, d := range []struct {
		field string
		value int64
	}{
		{"engine.start_timeout", int64(c.StartTimeout)},
		{"engine.rpc_timeout", int64(c.RPCTimeout)},
		{"engine.decompile_timeout", int64(c.DecompileTimeout)},
		{"engine.health_timeout", int64(c.HealthTimeout)},
	} {
		if d.value <= 0 {
			errors = append(errors, ValidationError{Field: d.field, Message: "timeout must be positive"})
		}
	}

	return errors
}

func (c *SessionConfig) validate() []ValidationError {
	var errors []ValidationError

	if c.MaxRetries < 1 {
		errors = append(errors, ValidationError{Field: "session.max_retries", Message: "at least one attempt is required"})
	}
	if c.InitialBackoff < 0 {
		errors = append(errors, ValidationError{Field: "session.initial_backoff", Message: "backoff cannot be negative"})
	}
	if c.MaxBackoff != 0 && c.MaxBackoff < c.InitialBackoff {
		errors = append(errors, ValidationError{
			Field:   "session.max_backoff",
			Message: "max backoff must not be below initial backoff",
		})
	}
	if c.Jitter < 0 || c.Jitter > 1 {
		errors = append(errors, ValidationError{Field: "session.jitter", Message: "jitter must be between 0 and 1"})
	}
	if c.HealthInterval <= 0 {
		errors = append(errors, ValidationError{Field: "session.health_interval", Message: "health interval must be positive"})
	}

	return errors
}
