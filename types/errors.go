package types

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrFileTooLarge    = errors.New("file exceeds maximum upload size")
	ErrEmptyFile       = errors.New("file is empty")

	// ErrExtractionFailed covers files whose content could not be turned into text.
	ErrExtractionFailed = errors.New("text extraction failed")
	ErrOCRUnavailable   = errors.New("OCR engine is not configured")

	ErrLLMUnavailable       = errors.New("LLM provider unavailable")
	ErrEmbeddingUnavailable = errors.New("embedding provider unavailable")
	ErrMissingAPIKey        = errors.New("LLM API key is not set")
)
