package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies every failure the service can surface. Handlers and
// job records only ever expose these kinds plus a human-readable cause.
type ErrorKind string

const (
	ErrUnreachable            ErrorKind = "unreachable"
	ErrUnsupportedVersion     ErrorKind = "unsupported_version"
	ErrAuthRejected           ErrorKind = "auth_rejected"
	ErrIntegrityMismatch      ErrorKind = "integrity_mismatch"
	ErrTimeout                ErrorKind = "timeout"
	ErrAlreadyRunning         ErrorKind = "already_running"
	ErrInvalidSettings        ErrorKind = "invalid_settings"
	ErrUnvalidatedCredentials ErrorKind = "unvalidated_credentials"
	ErrNotSupported           ErrorKind = "not_supported"
	ErrBackendUnavailable     ErrorKind = "backend_unavailable"
	ErrNotFound               ErrorKind = "not_found"
)

// Error pairs an ErrorKind with a message safe to show to callers.
// Credentials must never appear in Message.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds a typed error with a plain message.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WrapError builds a typed error keeping the underlying cause.
func WrapError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Errorf builds a typed error with a formatted message.
func Errorf(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the ErrorKind from err, or "" when err carries none.
func KindOf(err error) ErrorKind {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
