// Package errs classifies scenario failures.
package errs

import (
	"context"
	"errors"
	"fmt"
)

// Kind is a failure category.
type Kind string

const (
	// NotReady means the condition has not converged yet. Pollers retry it.
	NotReady Kind = "not_ready"
	// PolicyExhausted means a poller ran out of attempts or time.
	PolicyExhausted Kind = "policy_exhausted"
	// Infrastructure covers session, navigation and connection failures.
	Infrastructure Kind = "infrastructure"
	// Assertion means a value was observed but it was wrong.
	Assertion Kind = "assertion"
)

// Error is a classified failure.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a classified error with message.
func New(kind Kind, op, message string) error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap creates a classified error with message and cause.
func Wrap(kind Kind, op, message string, cause error) error {
	return &Error{Kind: kind, Op: op, Message: message, Err: cause}
}

// Assertf builds an Assertion error.
func Assertf(op, format string, args ...any) error {
	return &Error{Kind: Assertion, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Infra wraps cause as an Infrastructure failure.
func Infra(op string, cause error) error {
	return &Error{Kind: Infrastructure, Op: op, Err: cause}
}

// KindOf returns the failure kind, defaulting to Infrastructure for
// unclassified errors. Context cancellation and deadlines count as
// Infrastructure too.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var classified *Error
	if errors.As(err, &classified) && classified.Kind != "" {
		return classified.Kind
	}
	return Infrastructure
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Fatal reports whether err must abort the scenario. Infrastructure
// failures are fatal even in best-effort phases.
func Fatal(err error, bestEffort bool) bool {
	if err == nil {
		return false
	}
	if KindOf(err) == Infrastructure {
		return true
	}
	return !bestEffort
}

// Timeout reports whether err came from a context deadline.
func Timeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
