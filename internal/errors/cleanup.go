// Package errors provides the loupe error taxonomy and error handling helpers.
package errors

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"
)

// DeferClose properly closes an io.Closer with logging.
// Use this in defer statements to avoid suppressing close errors.
func DeferClose(logger zerolog.Logger, closer io.Closer, msg string) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		logger.Warn().Err(err).Msg(msg)
	}
}

// RecoverInto converts a panic in the calling function into an error stored
// in errp. Use it as `defer errors.RecoverInto(&err, "render")` at a
// boundary that must not crash the process.
func RecoverInto(errp *error, op string) {
	r := recover()
	if r == nil {
		return
	}
	if err, ok := r.(error); ok {
		*errp = fmt.Errorf("%s: panic: %w", op, err)
		return
	}
	*errp = fmt.Errorf("%s: panic: %v", op, r)
}
