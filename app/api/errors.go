package api

import (
	"errors"
	"fmt"
	"log/slog"

	"docqa/types"

	"github.com/gofiber/fiber/v2"
)

func ErrorHandler(c *fiber.Ctx, err error) error {
	var valErr ValidationError
	if errors.As(err, &valErr) {
		return c.Status(valErr.Status).JSON(valErr)
	}

	var apiErr Error
	if !errors.As(err, &apiErr) {
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			apiErr = NewError(fiberErr.Code, fiberErr.Message)
		} else {
			apiErr = FromError(err)
		}
	}

	slog.Error("request failed", "method", c.Method(), "path", c.Path(), "code", apiErr.Code, "error", err)
	return c.Status(apiErr.Code).JSON(apiErr)
}

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"error"`
}

type ValidationError struct {
	Status int               `json:"status"`
	Errors map[string]string `json:"errors"`
}

func (e ValidationError) Error() string {
	return "validation failed"
}

func NewValidationError(errors map[string]string) ValidationError {
	return ValidationError{
		Status: fiber.StatusUnprocessableEntity,
		Errors: errors,
	}
}

// Error implements the Error interface
func (e Error) Error() string {
	return e.Message
}

func NewError(code int, err string) Error {
	return Error{
		Code:    code,
		Message: err,
	}
}

// StatusFor maps domain errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, types.ErrUnsupportedType):
		return fiber.StatusUnsupportedMediaType
	case errors.Is(err, types.ErrFileTooLarge):
		return fiber.StatusRequestEntityTooLarge
	case errors.Is(err, types.ErrEmptyFile):
		return fiber.StatusBadRequest
	case errors.Is(err, types.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, types.ErrOCRUnavailable), errors.Is(err, types.ErrExtractionFailed):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, types.ErrLLMUnavailable), errors.Is(err, types.ErrEmbeddingUnavailable):
		return fiber.StatusBadGateway
	}
	return fiber.StatusInternalServerError
}

// FromError converts err into an API error. Internal failures are not
// described to the client.
func FromError(err error) Error {
	code := StatusFor(err)
	if code == fiber.StatusInternalServerError {
		return NewError(code, "internal server error")
	}
	return NewError(code, err.Error())
}

func ErrBadRequest() Error {
	return Error{
		Code:    fiber.StatusBadRequest,
		Message: "invalid JSON request",
	}
}

func ErrNoFiles() Error {
	return Error{
		Code:    fiber.StatusBadRequest,
		Message: "no files uploaded",
	}
}

func ErrNotFound[T any](arg T, resource string) Error {
	return Error{
		Code:    fiber.StatusNotFound,
		Message: fmt.Sprintf("%s with %v not found", resource, arg),
	}
}
