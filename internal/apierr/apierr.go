// Package apierr defines the semantic error taxonomy shared by the
// gateway and registry HTTP surfaces, and maps each kind to its HTTP
// status code.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind names a semantic error category (spec §7). Kinds are not Go
// types; they are carried on a single Error value so callers can
// wrap/unwrap with the standard errors package.
type Kind string

const (
	InvalidArgument   Kind = "invalid_argument"
	PermissionDenied  Kind = "permission_denied"
	NotFound          Kind = "not_found"
	Unimplemented     Kind = "unimplemented"
	Upstream          Kind = "upstream"
	Integrity         Kind = "integrity"
	TransientConflict Kind = "transient_conflict"
	Internal          Kind = "internal"
)

// statusFor maps each Kind to its HTTP status code.
var statusFor = map[Kind]int{
	InvalidArgument:   http.StatusBadRequest,
	PermissionDenied:  http.StatusForbidden,
	NotFound:          http.StatusNotFound,
	Unimplemented:     http.StatusNotImplemented,
	Upstream:          http.StatusBadGateway,
	Integrity:         http.StatusConflict,
	TransientConflict: http.StatusConflict,
	Internal:          http.StatusInternalServerError,
}

// Error is a semantic, HTTP-mappable error. Message is always safe to
// surface to a caller; it never carries key material or a stack trace.
type Error struct {
	Kind           Kind
	Message        string
	UpstreamStatus int // only meaningful when Kind == Upstream
	cause          error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause, if any, to errors.Is/As.
func (e *Error) Unwrap() error {
	return e.cause
}

// New builds an *Error with no wrapped cause.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error that carries cause for logging/unwrapping,
// while keeping Message safe for external exposure.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), cause: cause}
}

// UpstreamError builds an Upstream-kind error carrying the upstream's
// actual HTTP status code for reporting.
func UpstreamError(status int, format string, args ...interface{}) *Error {
	return &Error{Kind: Upstream, Message: fmt.Sprintf(format, args...), UpstreamStatus: status}
}

// HTTPStatus returns the HTTP status code for err, defaulting to 500
// for any error that is not an *Error.
func HTTPStatus(err error) int {
	var e *Error
	if errors.As(err, &e) {
		if e.Kind == Upstream && e.UpstreamStatus != 0 {
			return e.UpstreamStatus
		}
		if status, ok := statusFor[e.Kind]; ok {
			return status
		}
	}
	return http.StatusInternalServerError
}

// KindOf returns the Kind carried by err, or Internal if err is not an
// *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}
