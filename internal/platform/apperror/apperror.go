// Package apperror defines the error taxonomy shared by all domain
// services: Unauthenticated, Forbidden, NotFound, Conflict, Invalid,
// RateLimited, and Internal. Services return *Error values; handlers
// convert them to HTTP
// responses with HTTPError. Internal errors never expose the underlying
// storage failure to the caller.
package apperror

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Kind classifies an error into the closed taxonomy.
type Kind int

const (
	Unauthenticated Kind = iota
	Forbidden
	NotFound
	Conflict
	Invalid
	RateLimited
	Internal
)

func (k Kind) String() string {
	switch k {
	case Unauthenticated:
		return "unauthenticated"
	case Forbidden:
		return "forbidden"
	case NotFound:
		return "not_found"
	case Conflict:
		return "conflict"
	case Invalid:
		return "invalid"
	case RateLimited:
		return "rate_limited"
	default:
		return "internal"
	}
}

// Error is a classified error. CurrentState is populated for Conflict
// errors so callers can decide whether to retry.
type Error struct {
	Kind         Kind
	Message      string
	CurrentState string
	cause        error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates an error of the given kind.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Internal error around a storage or infrastructure
// failure. The cause is preserved for logging but never serialized.
func Wrap(cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: Internal, Message: fmt.Sprintf(format, args...), cause: cause}
}

// ConflictState creates a Conflict error that names the current state of
// the contested resource.
func ConflictState(state, format string, args ...interface{}) *Error {
	return &Error{Kind: Conflict, Message: fmt.Sprintf(format, args...), CurrentState: state}
}

// KindOf returns the kind of err, or Internal for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// HTTPError converts err to an echo HTTP error. Forbidden and
// Unauthenticated use fixed access-denied messaging so responses do not
// reveal whether the target resource exists. Internal errors surface a
// generic message; the cause stays server-side.
func HTTPError(err error) *echo.HTTPError {
	var e *Error
	if !errors.As(err, &e) {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}

	switch e.Kind {
	case Unauthenticated:
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	case Forbidden:
		return echo.NewHTTPError(http.StatusForbidden, "access denied")
	case NotFound:
		return echo.NewHTTPError(http.StatusNotFound, e.Message)
	case Conflict:
		msg := e.Message
		if e.CurrentState != "" {
			msg = fmt.Sprintf("%s (current state: %s)", e.Message, e.CurrentState)
		}
		return echo.NewHTTPError(http.StatusConflict, msg)
	case Invalid:
		return echo.NewHTTPError(http.StatusBadRequest, e.Message)
	case RateLimited:
		return echo.NewHTTPError(http.StatusTooManyRequests, e.Message)
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}
}
