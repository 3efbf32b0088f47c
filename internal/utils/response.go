package utils

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/fieldline/fieldgraph/internal/types"
)

// SuccessResponse sends a standard success response
func SuccessResponse(c *fiber.Ctx, data interface{}, status int) error {
	return c.Status(status).JSON(data)
}

// ErrorResponse sends a standard error envelope
func ErrorResponse(c *fiber.Ctx, message string, status int, errorType string) error {
	return c.Status(status).JSON(fiber.Map{
		"status":    status,
		"message":   message,
		"ok":        false,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"url":       c.OriginalURL(),
		"type":      errorType,
	})
}

// GraphErrorResponse maps a service error onto the error envelope. Errors
// outside the graph taxonomy are reported as storage failures without
// leaking the underlying driver message.
func GraphErrorResponse(c *fiber.Ctx, err error) error {
	var ge *types.GraphError
	if errors.As(err, &ge) {
		msg := ge.Message
		if ge.Kind == types.KindStorage {
			msg = "storage failure"
		}
		return ErrorResponse(c, msg, ge.Status, ge.Kind)
	}
	return ErrorResponse(c, "storage failure", fiber.StatusInternalServerError, types.KindStorage)
}

// MutationSuccessResponse sends a success response for mutations (POST/DELETE)
func MutationSuccessResponse(c *fiber.Ctx, id string, version uint64, created bool) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message":   "Success",
		"ok":        true,
		"id":        id,
		"version":   version,
		"created":   created,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// DeletionSuccessResponse sends a success response for delete operations
func DeletionSuccessResponse(c *fiber.Ctx, affectedRows int64) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message":      "Success",
		"ok":           true,
		"affectedRows": affectedRows,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	})
}

// ErrorResponseStruct defines the schema for error responses
type ErrorResponseStruct struct {
	Status    int    `json:"status"`
	Message   string `json:"message"`
	Ok        bool   `json:"ok"`
	Timestamp string `json:"timestamp"`
	URL       string `json:"url"`
	Type      string `json:"type,omitempty"`
}

// MutationResponseStruct defines the schema for mutation success responses
type MutationResponseStruct struct {
	Message   string `json:"message"`
	Ok        bool   `json:"ok"`
	ID        string `json:"id"`
	Version   uint64 `json:"version"`
	Created   bool   `json:"created"`
	Timestamp string `json:"timestamp"`
}

// DeletionResponseStruct defines the schema for delete success responses
type DeletionResponseStruct struct {
	Message      string `json:"message"`
	Ok           bool   `json:"ok"`
	AffectedRows int64  `json:"affectedRows"`
	Timestamp    string `json:"timestamp"`
}
