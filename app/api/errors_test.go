package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"

	"docqa/types"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusFor(t *testing.T) {
	cases := map[error]int{
		types.ErrUnsupportedType:                       fiber.StatusUnsupportedMediaType,
		fmt.Errorf("a.doc: %w", types.ErrFileTooLarge): fiber.StatusRequestEntityTooLarge,
		types.ErrEmptyFile:                             fiber.StatusBadRequest,
		types.ErrNotFound:                              fiber.StatusNotFound,
		types.ErrOCRUnavailable:                        fiber.StatusUnprocessableEntity,
		types.ErrExtractionFailed:                      fiber.StatusUnprocessableEntity,
		types.ErrLLMUnavailable:                        fiber.StatusBadGateway,
		types.ErrEmbeddingUnavailable:                  fiber.StatusBadGateway,
		errors.New("disk on fire"):                     fiber.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, StatusFor(err), err.Error())
	}
}

func TestFromErrorHidesInternalFailures(t *testing.T) {
	apiErr := FromError(errors.New("pq: password authentication failed"))
	assert.Equal(t, fiber.StatusInternalServerError, apiErr.Code)
	assert.Equal(t, "internal server error", apiErr.Message)

	apiErr = FromError(fmt.Errorf("notes.docx: %w", types.ErrUnsupportedType))
	assert.Equal(t, fiber.StatusUnsupportedMediaType, apiErr.Code)
	assert.Contains(t, apiErr.Message, "notes.docx")
}

func TestErrorHandler(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Get("/validation", func(c *fiber.Ctx) error {
		return NewValidationError(map[string]string{"query": "must not be empty"})
	})
	app.Get("/missing", func(c *fiber.Ctx) error {
		return ErrNotFound("abc", "document")
	})
	app.Get("/fiber", func(c *fiber.Ctx) error {
		return fiber.ErrMethodNotAllowed
	})
	app.Get("/domain", func(c *fiber.Ctx) error {
		return fmt.Errorf("ocr: %w", types.ErrOCRUnavailable)
	})

	t.Run("validation", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest("GET", "/validation", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)

		var body ValidationError
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "must not be empty", body.Errors["query"])
	})

	for path, want := range map[string]int{
		"/missing": fiber.StatusNotFound,
		"/fiber":   fiber.StatusMethodNotAllowed,
		"/domain":  fiber.StatusUnprocessableEntity,
	} {
		t.Run(path, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest("GET", path, nil))
			require.NoError(t, err)
			assert.Equal(t, want, resp.StatusCode)

			var body Error
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, want, body.Code)
			assert.NotEmpty(t, body.Message)
		})
	}
}
