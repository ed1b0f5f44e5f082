package model

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/url"

	"docqa/config"
	"docqa/types"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

const embedBatchSize = 32

// Embedder turns text into vectors. Document and query embeddings may use
// different task types on some providers.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// NormalizedEmbedder returns unit-length vectors so cosine similarity and the
// store's distance operators agree.
type NormalizedEmbedder struct {
	embedder Embedder
}

var _ Embedder = (*NormalizedEmbedder)(nil)

func NewNormalizedEmbedder(e Embedder) *NormalizedEmbedder {
	return &NormalizedEmbedder{embedder: e}
}

// NewEmbedder builds the embedding client for the configured provider.
func NewEmbedder(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*NormalizedEmbedder, error) {
	var (
		client embeddings.EmbedderClient
		err    error
	)
	switch cfg.LLM.Provider {
	case config.ProviderGoogleAI:
		client, err = googleai.New(ctx,
			googleai.WithAPIKey(cfg.LLM.APIKey),
			googleai.WithDefaultEmbeddingModel(cfg.LLM.EmbeddingModel),
		)
	case config.ProviderOpenAI:
		opts := []openai.Option{
			openai.WithToken(cfg.LLM.APIKey),
			openai.WithEmbeddingModel(cfg.LLM.EmbeddingModel),
		}
		if cfg.LLM.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.LLM.BaseURL))
		}
		client, err = openai.New(opts...)
	case config.ProviderOllama:
		opts := []ollama.Option{ollama.WithModel(cfg.LLM.EmbeddingModel)}
		if u := firstNonEmpty(cfg.LLM.EmbeddingURL, cfg.LLM.BaseURL); u != "" {
			opts = append(opts, ollama.WithServerURL(serverURL(u)))
		}
		client, err = ollama.New(opts...)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.LLM.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	emb, err := embeddings.NewEmbedder(client, embeddings.WithBatchSize(embedBatchSize))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	logger.Info("embedder ready", "provider", cfg.LLM.Provider, "model", cfg.LLM.EmbeddingModel)
	return NewNormalizedEmbedder(emb), nil
}

func (e *NormalizedEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vecs, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrEmbeddingUnavailable, err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", types.ErrEmbeddingUnavailable, len(vecs), len(texts))
	}
	for i := range vecs {
		vecs[i] = Normalize(vecs[i])
	}
	return vecs, nil
}

func (e *NormalizedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrEmbeddingUnavailable, err)
	}
	return Normalize(vec), nil
}

// Normalize scales vec to unit length in place. A zero vector is returned as is.
func Normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return vec
	}
	for i, x := range vec {
		vec[i] = float32(float64(x) / norm)
	}
	return vec
}

// serverURL trims an endpoint such as http://host:11434/api/embeddings down to
// the server root the ollama client expects.
func serverURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return raw
	}
	return u.Scheme + "://" + u.Host
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
