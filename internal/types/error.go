package types

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// Error kinds surfaced by the graph core. Callers branch on these rather
// than on message text.
const (
	KindValidation    = "validation"
	KindNotFound      = "not_found"
	KindConflict      = "conflict"
	KindStorage       = "storage"
	KindAuthorization = "authorization"
)

// GraphError is the error type raised by the graph core and its HTTP surface.
type GraphError struct {
	Status  int    `json:"status"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *GraphError) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Err.Error())
	}
	return e.Kind
}

func (e *GraphError) Unwrap() error { return e.Err }

// Validationf builds a rejected-write error: malformed spec, missing
// idempotency key, create without type, unknown edge type.
func Validationf(format string, args ...interface{}) *GraphError {
	return &GraphError{Status: fiber.StatusBadRequest, Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFoundf builds an error for updates or edges referencing assets that do
// not exist or are soft-deleted.
func NotFoundf(format string, args ...interface{}) *GraphError {
	return &GraphError{Status: fiber.StatusNotFound, Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Conflictf builds the error for an idempotency key replayed with a payload
// different from the one originally recorded.
func Conflictf(format string, args ...interface{}) *GraphError {
	return &GraphError{Status: fiber.StatusConflict, Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// Storage wraps a backing-store failure. Always safe to retry with the same
// idempotency key: either nothing committed or everything did.
func Storage(err error) *GraphError {
	return &GraphError{Status: fiber.StatusInternalServerError, Kind: KindStorage, Message: "storage failure", Err: err}
}

// Forbidden builds an authorization failure for the HTTP surface.
func Forbidden(message string) *GraphError {
	return &GraphError{Status: fiber.StatusForbidden, Kind: KindAuthorization, Message: message}
}

// KindOf reports the kind of err, or "" if err is not a GraphError.
func KindOf(err error) string {
	var ge *GraphError
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return ""
}

// IsKind reports whether err is a GraphError of the given kind.
func IsKind(err error, kind string) bool {
	return KindOf(err) == kind
}
