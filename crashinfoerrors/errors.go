// Package crashinfoerrors provides typed error handling for the crash
// handler. It defines domain-specific error kinds that let callers
// classify failures (configuration vs. resource vs. stream vs. unwinder
// vs. fatal-signal) without string matching. All errors support the
// standard errors.Is() / errors.As() functions.
package crashinfoerrors

import (
	"errors"
	"fmt"
)

// Kind represents the category of an error, mirroring the five-kind
// taxonomy of the error handling design: configuration, resource,
// stream, unwinder, and fatal-signal errors.
type Kind int

const (
	// KindConfig indicates an invalid keyword, enumeration value,
	// integer, or mapping syntax in the configuration.
	KindConfig Kind = iota
	// KindResource indicates a pipe, fork, mkdir, or open failure
	// during output setup. Channel-scoped: disables the channel.
	KindResource
	// KindStream indicates a short write, EPIPE, or fsync failure on
	// an output stream. Logged as a warning; processing continues.
	KindStream
	// KindUnwind indicates PID resolution or backtrace initialization
	// failed. Non-fatal: the threads section degrades to proc-only.
	KindUnwind
	// KindFatal indicates a fatal signal during processing.
	KindFatal
)

// String returns a human-readable name for the error kind.
func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "configuration error"
	case KindResource:
		return "resource error"
	case KindStream:
		return "stream error"
	case KindUnwind:
		return "unwinder error"
	case KindFatal:
		return "fatal signal"
	default:
		return "unknown error"
	}
}

// CrashError represents an error that occurred during crash processing.
type CrashError struct {
	// Op is the operation that failed (e.g. "open_output", "parse_config").
	Op string
	// Channel names the affected output channel, if applicable ("core", "info").
	Channel string
	// Err is the underlying error.
	Err error
	// Kind is the error classification.
	Kind Kind
	// Detail provides additional human-readable context.
	Detail string
}

// Error returns the error message.
func (e *CrashError) Error() string {
	if e == nil {
		return "<nil>"
	}
	var msg string
	if e.Channel != "" {
		msg = fmt.Sprintf("channel %s: ", e.Channel)
	}
	if e.Op != "" {
		msg += fmt.Sprintf("%s: ", e.Op)
	}
	if e.Detail != "" {
		msg += e.Detail
	} else {
		msg += e.Kind.String()
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *CrashError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether the error matches target by Kind.
func (e *CrashError) Is(target error) bool {
	if e == nil {
		return target == nil
	}
	t, ok := target.(*CrashError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New creates a new CrashError with the given kind and detail.
func New(kind Kind, op string, detail string) *CrashError {
	return &CrashError{Op: op, Kind: kind, Detail: detail}
}

// Wrap wraps err with an operation and kind.
func Wrap(err error, kind Kind, op string) *CrashError {
	return &CrashError{Op: op, Err: err, Kind: kind}
}

// WrapWithDetail wraps err with an operation, kind, and extra detail.
func WrapWithDetail(err error, kind Kind, op string, detail string) *CrashError {
	return &CrashError{Op: op, Err: err, Kind: kind, Detail: detail}
}

// WrapChannel wraps err with the affected output channel's name.
func WrapChannel(err error, kind Kind, op string, channel string) *CrashError {
	return &CrashError{Op: op, Err: err, Kind: kind, Channel: channel}
}

// IsKind reports whether err is a CrashError of the given kind.
func IsKind(err error, kind Kind) bool {
	var cerr *CrashError
	if errors.As(err, &cerr) {
		return cerr.Kind == kind
	}
	return false
}

// Re-exported standard library helpers for convenience, matching the
// shape callers already expect from the stdlib errors package.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
)
