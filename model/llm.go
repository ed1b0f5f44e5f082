package model

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"docqa/config"
	"docqa/types"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/time/rate"
)

// NewLLM builds the chat model for the configured provider, wrapped with the
// rate limiter and per-call timeout.
func NewLLM(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*LimitedModel, error) {
	if err := cfg.RequireAPIKey(); err != nil {
		return nil, err
	}

	var (
		llm llms.Model
		err error
	)
	switch cfg.LLM.Provider {
	case config.ProviderGoogleAI:
		llm, err = googleai.New(ctx,
			googleai.WithAPIKey(cfg.LLM.APIKey),
			googleai.WithDefaultModel(cfg.LLM.Model),
			googleai.WithDefaultEmbeddingModel(cfg.LLM.EmbeddingModel),
		)
	case config.ProviderOpenAI:
		opts := []openai.Option{
			openai.WithToken(cfg.LLM.APIKey),
			openai.WithModel(cfg.LLM.Model),
		}
		if cfg.LLM.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.LLM.BaseURL))
		}
		llm, err = openai.New(opts...)
	case config.ProviderOllama:
		opts := []ollama.Option{ollama.WithModel(cfg.LLM.Model)}
		if cfg.LLM.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(serverURL(cfg.LLM.BaseURL)))
		}
		llm, err = ollama.New(opts...)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}

	logger.Info("llm ready", "provider", cfg.LLM.Provider, "model", cfg.LLM.Model)
	return NewLimitedModel(llm, cfg.LLM.RateLimit, cfg.LLM.Timeout), nil
}

// LimitedModel throttles calls to the wrapped model and reports every
// provider failure as types.ErrLLMUnavailable.
type LimitedModel struct {
	model   llms.Model
	limiter *rate.Limiter
	timeout time.Duration
}

var _ llms.Model = (*LimitedModel)(nil)

// NewLimitedModel wraps m. A non-positive rps disables throttling and a zero
// timeout leaves the caller's deadline in charge.
func NewLimitedModel(m llms.Model, rps float64, timeout time.Duration) *LimitedModel {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &LimitedModel{
		model:   m,
		limiter: rate.NewLimiter(limit, 1),
		timeout: timeout,
	}
}

func (m *LimitedModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	if err := m.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	resp, err := m.model.GenerateContent(ctx, messages, options...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrLLMUnavailable, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty response", types.ErrLLMUnavailable)
	}
	return resp, nil
}

// Call is kept for the llms.Model interface.
func (m *LimitedModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}
