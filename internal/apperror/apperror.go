// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package apperror defines the error kinds returned by the identity services
// and their mapping onto HTTP status codes.
package apperror

import (
	"errors"
	"net/http"
)

// Kind is a stable, machine-readable error category.
type Kind string

const (
	KindInvalidInput       Kind = "invalid_input"
	KindDuplicateIdentity  Kind = "duplicate_identity"
	KindInvalidCredentials Kind = "invalid_credentials"
	KindUnauthenticated    Kind = "unauthenticated"
	KindForbidden          Kind = "forbidden"
	KindTokenNotFound      Kind = "token_not_found"
	KindTokenExpired       Kind = "token_expired"
	KindTokenTypeMismatch  Kind = "token_type_mismatch"
	KindTokenInvalid       Kind = "token_invalid"
	KindSessionInvalid     Kind = "session_invalid"
	KindNotFound           Kind = "not_found"
	KindInternal           Kind = "internal"
)

// HTTPStatus maps the kind onto a response status.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindInvalidInput, KindTokenNotFound, KindTokenExpired, KindTokenTypeMismatch:
		return http.StatusBadRequest
	case KindDuplicateIdentity:
		return http.StatusConflict
	case KindInvalidCredentials, KindUnauthenticated, KindTokenInvalid, KindSessionInvalid:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified error with a human message safe to show callers.
type Error struct {
	Kind    Kind
	Message string
	Details []string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by kind.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WithDetails creates an error carrying a list of individual problems.
func WithDetails(kind Kind, message string, details []string) *Error {
	return &Error{Kind: kind, Message: message, Details: details}
}

// Wrap creates an error of the given kind around an underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Internal wraps an unexpected failure. The message is only logged.
func Internal(message string, cause error) *Error {
	return Wrap(KindInternal, message, cause)
}

// KindOf returns the kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Sentinels for errors.Is comparisons.
var (
	ErrInvalidInput       = New(KindInvalidInput, "invalid input")
	ErrDuplicateIdentity  = New(KindDuplicateIdentity, "username or email already in use")
	ErrInvalidCredentials = New(KindInvalidCredentials, "invalid username or password")
	ErrUnauthenticated    = New(KindUnauthenticated, "authentication required")
	ErrForbidden          = New(KindForbidden, "insufficient permissions")
	ErrTokenNotFound      = New(KindTokenNotFound, "token not found")
	ErrTokenExpired       = New(KindTokenExpired, "token expired")
	ErrTokenTypeMismatch  = New(KindTokenTypeMismatch, "token type mismatch")
	ErrTokenInvalid       = New(KindTokenInvalid, "token invalid")
	ErrSessionInvalid     = New(KindSessionInvalid, "session invalid or expired")
	ErrNotFound           = New(KindNotFound, "not found")
)
