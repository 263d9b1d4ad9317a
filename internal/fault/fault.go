// Package fault classifies errors as fatal or recoverable so that only the
// top-level command decides whether the process exits.
package fault

import (
	"errors"
	"fmt"
)

// Kind tells callers whether an error may be aggregated and reported
// (Recoverable) or must abort the enclosing command (Fatal).
type Kind int

const (
	// Fatal errors terminate the command with a non-zero exit code.
	Fatal Kind = iota
	// Recoverable errors are captured and reported by an aggregate.
	Recoverable
)

func (k Kind) String() string {
	switch k {
	case Fatal:
		return "fatal"
	case Recoverable:
		return "recoverable"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error attaches a Kind to an underlying error.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// NewFatal marks err as fatal. A nil err stays nil.
func NewFatal(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: Fatal, Err: err}
}

// NewRecoverable marks err as recoverable. A nil err stays nil.
func NewRecoverable(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: Recoverable, Err: err}
}

// Fatalf formats a message and marks it fatal.
func Fatalf(format string, args ...any) error {
	return NewFatal(fmt.Errorf(format, args...))
}

// KindOf reports the kind of the outermost classified error in err's chain.
// Unclassified errors are fatal: an error nobody chose to recover from must
// not be swallowed.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Fatal
}

// IsFatal reports whether err is non-nil and fatal.
func IsFatal(err error) bool {
	return err != nil && KindOf(err) == Fatal
}
