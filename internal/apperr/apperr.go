package apperr

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// Kind is the closed set of failure categories the API distinguishes.
// Handlers and the store layer decide behavior (retry, stale fallback,
// HTTP status) by kind, never by matching error strings.
type Kind int

const (
	// Unauthenticated: no resolvable user on the request.
	Unauthenticated Kind = iota + 1
	// Unauthorized: resolved user does not own the target resource.
	Unauthorized
	// NotFound: target habit/checkin absent.
	NotFound
	// Validation: malformed period/frequency/name/date input.
	Validation
	// TransientStore: timeout, busy/locked database, dropped connection.
	// Retryable once and eligible for the progress cache's stale fallback.
	TransientStore
	// PermanentStore: constraint violation or unexpected row shape.
	// Logged with context, surfaced to the user as a generic failure.
	PermanentStore
)

func (k Kind) String() string {
	switch k {
	case Unauthenticated:
		return "unauthenticated"
	case Unauthorized:
		return "unauthorized"
	case NotFound:
		return "not_found"
	case Validation:
		return "validation"
	case TransientStore:
		return "transient_store"
	case PermanentStore:
		return "permanent_store"
	default:
		return "unknown"
	}
}

// Error is a kinded error with an optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the kind from err, or 0 if err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// IsTransient reports whether err should be retried / is stale-fallback
// eligible.
func IsTransient(err error) bool {
	return KindOf(err) == TransientStore
}

// HTTPStatus maps a kind to the status code the central Fiber error
// handler responds with.
func HTTPStatus(kind Kind) int {
	switch kind {
	case Unauthenticated:
		return fiber.StatusUnauthorized
	case Unauthorized:
		return fiber.StatusForbidden
	case NotFound:
		return fiber.StatusNotFound
	case Validation:
		return fiber.StatusBadRequest
	case TransientStore:
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// PublicMessage is what the end user sees. Store failures never leak
// internal detail.
func PublicMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return "operation failed"
	}
	switch e.Kind {
	case TransientStore, PermanentStore:
		return "operation failed"
	default:
		return e.Message
	}
}
