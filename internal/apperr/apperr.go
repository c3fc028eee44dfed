// Package apperr is the error shape that crosses layer boundaries.
//
// Every failure at the data-access boundary is turned into an *Error that
// carries three things:
//
//	Message — the fixed, user-facing text of the operation
//	          ("Failed to fetch events"). Error() returns only this.
//	Kind    — a coarse classification callers can branch on (not found,
//	          invalid, conflict, unavailable, ...).
//	Err     — the original cause, reachable through errors.Is / errors.As.
//
// Screens render Message. Logs record Err. Retry decisions look at Kind.
package apperr

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"
	"net/http"
	"strings"
)

// Kind classifies an error.
type Kind int

const (
	Internal Kind = iota
	NotFound
	Invalid
	Conflict
	Permission
	Unauthenticated
	Unavailable
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case Invalid:
		return "invalid"
	case Conflict:
		return "conflict"
	case Permission:
		return "permission"
	case Unauthenticated:
		return "unauthenticated"
	case Unavailable:
		return "unavailable"
	}
	return "internal"
}

// HTTPStatus maps a kind to the status code a screen responds with.
func (k Kind) HTTPStatus() int {
	switch k {
	case NotFound:
		return http.StatusNotFound
	case Invalid:
		return http.StatusBadRequest
	case Conflict:
		return http.StatusConflict
	case Permission:
		return http.StatusForbidden
	case Unauthenticated:
		return http.StatusUnauthorized
	case Unavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// Error is a classified, user-presentable error with its cause attached.
type Error struct {
	Op      string
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

// New builds an error with no underlying cause, e.g. a validation failure.
func New(op string, kind Kind, msg string) *Error {
	return &Error{Op: op, Kind: kind, Message: msg}
}

// Wrap attaches the fixed message msg to cause and classifies it.
// If cause is already an *Error its kind is kept.
func Wrap(op, msg string, cause error) *Error {
	return &Error{Op: op, Kind: Classify(cause), Message: msg, Err: cause}
}

// WrapKind is Wrap with an explicit kind.
func WrapKind(op string, kind Kind, msg string, cause error) *Error {
	return &Error{Op: op, Kind: kind, Message: msg, Err: cause}
}

// Classify guesses a Kind from a raw backend error.
func Classify(err error) Kind {
	if err == nil {
		return Internal
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	if errors.Is(err, sql.ErrNoRows) {
		return NotFound
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) ||
		errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return Unavailable
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return Unavailable
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE"):
		return Conflict
	case strings.Contains(msg, "database is locked"), strings.Contains(msg, "SQLITE_BUSY"):
		return Unavailable
	}
	return Internal
}

// KindOf returns the kind of err, or Internal if err is not an *Error.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return Internal
}

// Is reports whether err is an *Error of kind k.
func Is(err error, k Kind) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Kind == k
}

// Retryable reports whether repeating the operation could succeed.
// Only transport-level failures qualify; validation, permission and
// not-found errors never do.
func Retryable(err error) bool {
	return Is(err, Unavailable)
}

// Message returns the user-facing text of err.
func Message(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Message
	}
	return "Something went wrong. Please try again."
}
