package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDocumentNotFound    = errors.New("document not found")
	ErrCaseNotFound        = errors.New("case not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrConflict            = errors.New("conflicting state")
	ErrTemporary           = errors.New("temporary failure")
	ErrUpstreamUnavailable = errors.New("AI service unreachable")
)

// Error tags a cause with one of the kinds above and the failing operation.
type Error struct {
	Kind error
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: operation, Err: err}
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// Reason is the cause text of the outermost typed error, suitable for
// validation responses.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Err.Error()
	}
	return err.Error()
}
