package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies failures that cross the gateway's service boundary.
type Kind int

const (
	// KindInternal covers transport failures, timeouts, malformed replies and
	// unmapped downstream failures.
	KindInternal Kind = iota
	// KindInvalidInput indicates caller supplied arguments were rejected.
	KindInvalidInput
	// KindNotFound indicates the referenced resource does not exist.
	KindNotFound
	// KindUnauthorized indicates no acting identity was supplied.
	KindUnauthorized
	// KindForbidden indicates the acting identity does not own the resource.
	KindForbidden
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindNotFound:
		return "not_found"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	default:
		return "internal"
	}
}

// Sentinels usable with errors.Is.
var (
	ErrInternal     = errors.New("internal error")
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

// Error is the typed error returned by the RPC client, the domain gateway
// services and the upload coordinator.
type Error struct {
	Kind    Kind
	Op      string
	Code    int
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.sentinel().Error()
	}
	if e.Op != "" {
		msg = fmt.Sprintf("%s: %s", e.Op, msg)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the kind sentinel so callers can write errors.Is(err, apperr.ErrNotFound).
func (e *Error) Is(target error) bool {
	return target == e.sentinel()
}

func (e *Error) sentinel() error {
	switch e.Kind {
	case KindInvalidInput:
		return ErrInvalidInput
	case KindNotFound:
		return ErrNotFound
	case KindUnauthorized:
		return ErrUnauthorized
	case KindForbidden:
		return ErrForbidden
	default:
		return ErrInternal
	}
}

// New constructs an Error of the given kind.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Code: codeFor(kind), Message: message}
}

// InvalidInput is a shortcut for New(KindInvalidInput, ...).
func InvalidInput(op, message string) *Error { return New(KindInvalidInput, op, message) }

// NotFound is a shortcut for New(KindNotFound, ...).
func NotFound(op, message string) *Error { return New(KindNotFound, op, message) }

// Unauthorized is a shortcut for New(KindUnauthorized, ...).
func Unauthorized(op, message string) *Error { return New(KindUnauthorized, op, message) }

// Forbidden is a shortcut for New(KindForbidden, ...).
func Forbidden(op, message string) *Error { return New(KindForbidden, op, message) }

// Internal wraps cause (which may be nil) as an internal failure.
func Internal(op, message string, cause error) *Error {
	e := New(KindInternal, op, message)
	e.Err = cause
	return e
}

// FromCode reconstructs a typed error from a downstream ErrorInfo code.
// 400 is invalid input, 401 and 404 both mean the resource (or credential
// pair) was not found, everything else is internal.
func FromCode(op string, code int, message string) *Error {
	var kind Kind
	switch code {
	case http.StatusBadRequest:
		kind = KindInvalidInput
	case http.StatusUnauthorized, http.StatusNotFound:
		kind = KindNotFound
	default:
		kind = KindInternal
	}
	return &Error{Kind: kind, Op: op, Code: code, Message: message}
}

// KindOf reports the kind of err. Errors outside the taxonomy are internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Message returns the caller-facing message carried by err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return "internal server error"
}

// Code maps err to the wire code carried in a failure envelope.
func Code(err error) int {
	return codeFor(KindOf(err))
}

// HTTPStatus maps err to the status code the HTTP layer should answer with.
func HTTPStatus(err error) int {
	return codeFor(KindOf(err))
}

func codeFor(kind Kind) int {
	switch kind {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
