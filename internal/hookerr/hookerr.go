// Package hookerr defines the two fatal error kinds reported by the build hook.
package hookerr

import (
	"errors"
	"fmt"
)

// Kind classifies a hook failure.
type Kind int

const (
	// Config is malformed or contradictory input the user must fix.
	Config Kind = iota + 1
	// Build is an inconsistency detected in the native build's output.
	Build
)

func (k Kind) String() string {
	switch k {
	case Config:
		return "configuration error"
	case Build:
		return "build error"
	default:
		return fmt.Sprintf("hookerr.Kind(%d)", int(k))
	}
}

// Error is a hook failure of a given Kind.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Configf returns a Config error with a formatted message.
func Configf(format string, args ...any) error {
	return &Error{Kind: Config, Msg: fmt.Sprintf(format, args...)}
}

// Buildf returns a Build error with a formatted message.
func Buildf(format string, args ...any) error {
	return &Error{Kind: Build, Msg: fmt.Sprintf(format, args...)}
}

// WrapConfig returns a Config error with msg that wraps err.
func WrapConfig(err error, msg string) error {
	return &Error{Kind: Config, Msg: msg, Err: err}
}

// WrapBuild returns a Build error with msg that wraps err.
func WrapBuild(err error, msg string) error {
	return &Error{Kind: Build, Msg: msg, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// IsConfig reports whether err is a Config error.
func IsConfig(err error) bool { return KindOf(err) == Config }

// IsBuild reports whether err is a Build error.
func IsBuild(err error) bool { return KindOf(err) == Build }
