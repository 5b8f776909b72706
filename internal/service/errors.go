package service

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a rejected operation.
type ErrorKind string

const (
	KindNotFound     ErrorKind = "not_found"
	KindInvalidState ErrorKind = "invalid_state"
	KindGated        ErrorKind = "gated"
	KindEmptyContent ErrorKind = "empty_content"
	KindMissingField ErrorKind = "missing_field"
	KindForbidden    ErrorKind = "forbidden"
)

// Error is a typed rejection. A rejected operation leaves no state change.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrGated) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrInvalidState = &Error{Kind: KindInvalidState}
	ErrGated        = &Error{Kind: KindGated}
	ErrEmptyContent = &Error{Kind: KindEmptyContent}
	ErrMissingField = &Error{Kind: KindMissingField}
	ErrForbidden    = &Error{Kind: KindForbidden}
)

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of a typed error, or "" for anything else.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
