package config

import (
	"errors"
	"fmt"
	"strings"

	"docqa/types"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is returned by Validate when one or more fields are invalid.
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Error())
	}
	return "invalid config: " + strings.Join(msgs, "; ")
}

func (c *Config) Validate() error {
	var errs ValidationErrors

	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return err
		}
		for _, e := range fieldErrs {
			errs = append(errs, ValidationError{
				Field:   fieldPath(e.Namespace()),
				Message: fmt.Sprintf("failed on '%s' tag", e.Tag()),
			})
		}
	}

	if c.Chunking.ChunkOverlap >= c.Chunking.ChunkSize {
		errs = append(errs, ValidationError{
			Field:   "chunking.chunk_overlap",
			Message: "chunk_overlap must be less than chunk_size",
		})
	}

	if c.Store.Backend == StoreBolt && c.Store.BoltPath == "" {
		errs = append(errs, ValidationError{
			Field:   "store.bolt_path",
			Message: "bolt_path is required for the bolt backend",
		})
	}

	if c.OCR.Backend == OCROllama && (c.OCR.URL == "" || c.OCR.Model == "") {
		errs = append(errs, ValidationError{
			Field:   "ocr.url",
			Message: "url and model are required for the ollama OCR backend",
		})
	}

	if c.LLM.Provider != ProviderOllama && c.LLM.APIKey == "" {
		errs = append(errs, ValidationError{
			Field:   "llm.api_key",
			Message: types.ErrMissingAPIKey.Error(),
		})
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

// RequireAPIKey reports ErrMissingAPIKey when a hosted provider has no key.
func (c *Config) RequireAPIKey() error {
	if c.LLM.Provider != ProviderOllama && c.LLM.APIKey == "" {
		return fmt.Errorf("%s provider: %w", c.LLM.Provider, types.ErrMissingAPIKey)
	}
	return nil
}

// fieldPath turns "Config.LLM.AnswerWorkers" into "llm.answerworkers".
func fieldPath(ns string) string {
	ns = strings.TrimPrefix(ns, "Config.")
	return strings.ToLower(ns)
}
