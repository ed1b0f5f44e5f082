package model

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"docqa/config"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

const ocrPrompt = `You are an OCR engine. Transcribe all text visible in the image exactly as written.
Keep the reading order and separate paragraphs with a blank line.
Do not describe the image, do not add explanations or markdown.
If the image contains no text, return an empty response.`

const (
	visionTimeout = 2 * time.Minute
	visionBackoff = 300 * time.Millisecond
)

// TextRecognizer extracts the text shown in an image.
type TextRecognizer interface {
	Recognize(ctx context.Context, img []byte, mimeType string) (string, error)
}

// NewTextRecognizer picks the OCR backend. It returns nil when OCR is disabled.
func NewTextRecognizer(cfg *config.Config, llm llms.Model, logger *slog.Logger) (TextRecognizer, error) {
	switch cfg.OCR.Backend {
	case config.OCRNone:
		return nil, nil
	case config.OCRLLM:
		if llm == nil {
			return nil, fmt.Errorf("ocr backend %q needs an llm", cfg.OCR.Backend)
		}
		return NewVisionRecognizer(llm, cfg.OCR.MaxSide, cfg.OCR.MaxAttempts, logger), nil
	case config.OCROllama:
		vision, err := NewOllamaVision(cfg.OCR.URL, cfg.OCR.Model)
		if err != nil {
			return nil, err
		}
		logger.Info("ocr ready", "backend", cfg.OCR.Backend, "model", cfg.OCR.Model)
		return NewVisionRecognizer(vision, cfg.OCR.MaxSide, cfg.OCR.MaxAttempts, logger), nil
	default:
		return nil, fmt.Errorf("unknown ocr backend %q", cfg.OCR.Backend)
	}
}

// NewOllamaVision returns a LLaVA-style model served by Ollama. Failures are
// reported as types.ErrLLMUnavailable.
func NewOllamaVision(serverAddr, model string) (*LimitedModel, error) {
	opts := []ollama.Option{
		ollama.WithModel(model),
		ollama.WithHTTPClient(&http.Client{Timeout: visionTimeout}),
	}
	if serverAddr != "" {
		opts = append(opts, ollama.WithServerURL(serverURL(serverAddr)))
	}
	m, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ocr model: %w", err)
	}
	return NewLimitedModel(m, 0, 0), nil
}

// VisionRecognizer sends the image to a multimodal chat model.
type VisionRecognizer struct {
	llm         llms.Model
	maxSide     int
	maxAttempts int
	backoff     time.Duration
	logger      *slog.Logger
}

var _ TextRecognizer = (*VisionRecognizer)(nil)

func NewVisionRecognizer(llm llms.Model, maxSide, maxAttempts int, logger *slog.Logger) *VisionRecognizer {
	return &VisionRecognizer{
		llm:         llm,
		maxSide:     maxSide,
		maxAttempts: max(maxAttempts, 1),
		backoff:     visionBackoff,
		logger:      logger,
	}
}

// Recognize retries failed or empty transcriptions with a linear backoff. An
// image that stays empty yields "".
func (r *VisionRecognizer) Recognize(ctx context.Context, img []byte, mimeType string) (string, error) {
	data, mimeType, err := PrepareImage(img, mimeType, r.maxSide)
	if err != nil {
		return "", err
	}

	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		text, err := r.transcribe(ctx, data, mimeType)
		if err == nil && text != "" {
			return text, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		lastErr = err
		r.logger.Warn("ocr attempt failed", "attempt", attempt, "empty", err == nil, "err", err)

		if attempt == r.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(time.Duration(attempt) * r.backoff):
		}
	}

	if lastErr == nil {
		return "", nil
	}
	return "", fmt.Errorf("ocr failed after %d attempts: %w", r.maxAttempts, lastErr)
}

func (r *VisionRecognizer) transcribe(ctx context.Context, data []byte, mimeType string) (string, error) {
	content := []llms.MessageContent{
		{
			Role: llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{
				llms.BinaryPart(mimeType, data),
				llms.TextPart(ocrPrompt),
			},
		},
	}
	resp, err := r.llm.GenerateContent(ctx, content, llms.WithTemperature(0))
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(resp.Choices[0].Content), nil
}
