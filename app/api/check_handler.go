package api

import (
	"context"
	"time"

	"docqa/config"

	"github.com/gofiber/fiber/v2"
)

// DocumentCounter reports how many documents are indexed.
type DocumentCounter interface {
	CountDocuments(ctx context.Context) (int, error)
}

type CheckHandler struct {
	cfg     *config.Config
	counter DocumentCounter
	started time.Time
}

func NewCheckHandler(cfg *config.Config, counter DocumentCounter) *CheckHandler {
	return &CheckHandler{cfg: cfg, counter: counter, started: time.Now()}
}

func (h *CheckHandler) HandleHealthy(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"result": "ok"})
}

func (h *CheckHandler) HandleWelcome(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"message": "Document research and theme identification API",
		"ui":      "/ui",
		"health":  "/health",
	})
}

// HandleHealth reports the service status together with the settings that
// shape answers.
func (h *CheckHandler) HandleHealth(c *fiber.Ctx) error {
	status := "healthy"
	count, err := h.counter.CountDocuments(c.UserContext())
	if err != nil {
		status = "degraded"
	}

	return c.JSON(fiber.Map{
		"status":          status,
		"uptime":          time.Since(h.started).Round(time.Second).String(),
		"total_documents": count,
		"store":           h.cfg.Store.Backend,
		"llm_provider":    h.cfg.LLM.Provider,
		"llm_model":       h.cfg.LLM.Model,
		"embedding_model": h.cfg.LLM.EmbeddingModel,
		"ocr":             h.cfg.OCR.Backend,
		"chunk_size":      h.cfg.Chunking.ChunkSize,
		"chunk_overlap":   h.cfg.Chunking.ChunkOverlap,
		"n_results":       h.cfg.Retrieval.NResults,
	})
}
