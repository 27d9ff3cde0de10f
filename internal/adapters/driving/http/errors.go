// Package http provides the REST API adapter for umlgen, built on fiber.
// Generations run as background jobs; clients poll for progress and fetch
// artifacts once a run has finished.
package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/custodia-labs/umlgen/internal/core/domain"
	"github.com/custodia-labs/umlgen/internal/logger"
)

// ErrMissingJobService is returned when the job service is not provided.
var ErrMissingJobService = errors.New("http: job service is required")

// Error is the JSON body of every failed request.
type Error struct {
	Code    int    `json:"code"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"error"`
}

// Error implements the error interface.
func (e Error) Error() string {
	return e.Message
}

// NewError creates an API error with an explicit status code.
func NewError(code int, msg string) Error {
	return Error{Code: code, Message: msg}
}

// ErrBadRequest is returned for bodies that cannot be decoded.
func ErrBadRequest() Error {
	return Error{
		Code:    fiber.StatusBadRequest,
		Kind:    "invalid_input",
		Message: "invalid JSON request",
	}
}

// ErrorHandler converts handler errors into JSON responses.
// Domain errors are mapped to a status code by their kind.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var apiErr Error
	if !errors.As(err, &apiErr) {
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			apiErr = NewError(fiberErr.Code, fiberErr.Message)
		} else {
			kind := domain.ErrorKind(err)
			apiErr = Error{Code: StatusFor(kind), Kind: kind, Message: err.Error()}
		}
	}

	if apiErr.Code >= fiber.StatusInternalServerError {
		logger.Error("%s %s failed with code %d: %s", c.Method(), c.Path(), apiErr.Code, apiErr.Message)
	} else {
		logger.Debug("%s %s failed with code %d: %s", c.Method(), c.Path(), apiErr.Code, apiErr.Message)
	}
	return c.Status(apiErr.Code).JSON(apiErr)
}

// StatusFor returns the HTTP status for an error kind from domain.ErrorKind.
func StatusFor(kind string) int {
	switch kind {
	case "invalid_input":
		return fiber.StatusBadRequest
	case "authentication":
		return fiber.StatusUnauthorized
	case "not_found":
		return fiber.StatusNotFound
	case "cancelled":
		return fiber.StatusConflict
	case "provider", "completion", "retrieval", "render_failure", "render_syntax":
		return fiber.StatusBadGateway
	case "render_unavailable":
		return fiber.StatusServiceUnavailable
	case "timeout":
		return fiber.StatusGatewayTimeout
	default:
		return fiber.StatusInternalServerError
	}
}
