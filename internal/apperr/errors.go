// Package apperr defines the error taxonomy shared by every layer of the
// cache: validation and policy rejections, misses, and internal failures.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an application error for HTTP mapping.
type Kind int

const (
	KindBadRequest Kind = iota
	KindNotFound
	KindInternal
)

// Error is the error type surfaced by handlers, the cache facade, the policy
// engine, and the upstream client. Internal errors keep their cause for logs
// but expose a fixed public message so backend details never leak to clients.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		if e.Message != "" {
			return fmt.Sprintf("%s: %v", e.Message, e.Err)
		}
		return e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// PublicMessage is the string placed in the {"error": ...} response body.
func (e *Error) PublicMessage() string {
	if e.Kind == KindInternal {
		return "internal error"
	}
	return e.Message
}

// BadRequest builds a 400-class error (validation or policy rejection).
func BadRequest(format string, args ...any) *Error {
	return &Error{Kind: KindBadRequest, Message: fmt.Sprintf(format, args...)}
}

// NotFound builds a 404-class error.
func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

// Internal wraps an unexpected failure (backend, upstream, serialization).
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Err: err}
}

// Internalf wraps a formatted unexpected failure, preserving %w chains.
func Internalf(format string, args ...any) *Error {
	return &Error{Kind: KindInternal, Err: fmt.Errorf(format, args...)}
}

// HTTPStatus maps any error to its response status code. Errors that are not
// an *Error are treated as internal.
func HTTPStatus(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) {
		switch appErr.Kind {
		case KindBadRequest:
			return http.StatusBadRequest
		case KindNotFound:
			return http.StatusNotFound
		}
	}
	return http.StatusInternalServerError
}

// As extracts the *Error from a chain, wrapping foreign errors as internal.
func As(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal(err)
}
