package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies a failure by how the caller should react to it.
type Kind int

const (
	// KindUnknown is the zero value and is never produced by loupe itself.
	KindUnknown Kind = iota
	// KindTransport is a connection refused, reset or timeout. It triggers
	// reconnection.
	KindTransport
	// KindLoad is a rejected LoadBinary: bad bytes, unknown language or
	// missing specification files. The engine stays up.
	KindLoad
	// KindAnalysis is a failure while analysing one function. The engine
	// stays loaded and usable for other addresses.
	KindAnalysis
	// KindNotLoaded is a request that needs a loaded binary when none is.
	KindNotLoaded
	// KindFatalEngine is a lost engine process or corrupted engine state.
	KindFatalEngine
	// KindUnavailable means reconnection was exhausted; the user must act.
	KindUnavailable
	// KindInvalidArgument is a request rejected before reaching the engine.
	KindInvalidArgument
)

// String returns a human-readable representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindLoad:
		return "load"
	case KindAnalysis:
		return "analysis"
	case KindNotLoaded:
		return "not_loaded"
	case KindFatalEngine:
		return "fatal_engine"
	case KindUnavailable:
		return "unavailable"
	case KindInvalidArgument:
		return "invalid_argument"
	default:
		return "unknown"
	}
}

// Error is a classified loupe error.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

// New creates a classified error without a cause.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap classifies err. It returns nil when err is nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = msg + ": " + e.Err.Error()
		}
	}
	if e.Op == "" {
		return fmt.Sprintf("%s error: %s", e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s error: %s", e.Op, e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
