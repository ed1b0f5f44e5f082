package api

import (
	"docqa/config"

	"github.com/gofiber/fiber/v2"
)

// ConfigHandler exposes the settings a client needs before uploading or
// querying. Secrets are never included.
type ConfigHandler struct {
	cfg *config.Config
}

func NewConfigHandler(cfg *config.Config) *ConfigHandler {
	return &ConfigHandler{cfg: cfg}
}

type uploadSettings struct {
	MaxFileSize       int64    `json:"max_file_size"`
	AllowedExtensions []string `json:"allowed_extensions"`
}

type chunkingSettings struct {
	ChunkSize          int `json:"chunk_size"`
	ChunkOverlap       int `json:"chunk_overlap"`
	MinParagraphLength int `json:"min_paragraph_length"`
}

type retrievalSettings struct {
	NResults          int     `json:"n_results"`
	MinScore          float64 `json:"min_score"`
	ChunksPerDocument int     `json:"chunks_per_document"`
}

type publicConfig struct {
	Upload    uploadSettings    `json:"upload"`
	Chunking  chunkingSettings  `json:"chunking"`
	Retrieval retrievalSettings `json:"retrieval"`
	Provider  string            `json:"llm_provider"`
	Model     string            `json:"llm_model"`
	OCR       bool              `json:"ocr_enabled"`
}

func (h *ConfigHandler) HandleGetConfig(c *fiber.Ctx) error {
	cfg := h.cfg
	return c.JSON(publicConfig{
		Upload: uploadSettings{
			MaxFileSize:       cfg.Upload.MaxFileSize,
			AllowedExtensions: cfg.Upload.AllowedExtensions,
		},
		Chunking: chunkingSettings{
			ChunkSize:          cfg.Chunking.ChunkSize,
			ChunkOverlap:       cfg.Chunking.ChunkOverlap,
			MinParagraphLength: cfg.Chunking.MinParagraphLength,
		},
		Retrieval: retrievalSettings{
			NResults:          cfg.Retrieval.NResults,
			MinScore:          cfg.Retrieval.MinScore,
			ChunksPerDocument: cfg.Retrieval.ChunksPerDocument,
		},
		Provider: cfg.LLM.Provider,
		Model:    cfg.LLM.Model,
		OCR:      cfg.OCR.Backend != config.OCRNone,
	})
}
