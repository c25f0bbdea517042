// Package failure classifies why a probe or stage failed.
package failure

import (
	"errors"
	"fmt"

	"github.com/Jython1415/mathnasium-session-notes/internal/browser"
)

// Kind is the class of a failure.
type Kind string

const (
	KindConfig     Kind = "config"
	KindNavigation Kind = "navigation"
	KindTimeout    Kind = "timeout"
	KindAssertion  Kind = "assertion"
	KindValidation Kind = "validation"
	KindInternal   Kind = "internal"
)

// Error attaches a Kind to an error.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New wraps err with kind. A nil err yields nil.
func New(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

// Newf formats a message and wraps it with kind.
func Newf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Classify returns the Kind of err. Timeouts win over any attached kind;
// unclassified errors are internal.
func Classify(err error) Kind {
	if err == nil {
		return ""
	}
	if browser.IsTimeout(err) {
		return KindTimeout
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindInternal
}
