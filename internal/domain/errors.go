package domain

import (
	"errors"
	"fmt"
)

// Taxonomy sentinels. Match with errors.Is.
var (
	ErrConfiguration            = errors.New("configuration_error")
	ErrEmptyInput               = errors.New("empty_input")
	ErrInsufficientParticipants = errors.New("insufficient_participants")
	ErrIntegrity                = errors.New("integrity_error")
	ErrNavigation               = errors.New("navigation_error")
)

var taxonomy = []error{
	ErrConfiguration,
	ErrEmptyInput,
	ErrInsufficientParticipants,
	ErrIntegrity,
	ErrNavigation,
}

// Error carries a taxonomy kind and a human-readable reason.
type Error struct {
	Kind   error
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Is(target error) bool { return target == e.Kind }

func (e *Error) Unwrap() error { return e.Err }

// Errorf builds an *Error of the given kind.
func Errorf(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// Wrap attaches kind and reason to an underlying error.
func Wrap(kind error, err error, reason string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Reason: reason, Err: err}
}

// KindName returns the taxonomy label of err, or "internal_error".
func KindName(err error) string {
	for _, k := range taxonomy {
		if errors.Is(err, k) {
			return k.Error()
		}
	}
	return "internal_error"
}

// Reason returns the human-readable part of a taxonomy error.
func Reason(err error) string {
	var de *Error
	if errors.As(err, &de) {
		if de.Err != nil {
			return fmt.Sprintf("%s: %v", de.Reason, de.Err)
		}
		return de.Reason
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// Retryable reports whether retrying the same request could succeed.
// Only navigation failures qualify.
func Retryable(err error) bool {
	return errors.Is(err, ErrNavigation)
}
