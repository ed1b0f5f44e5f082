package api

import (
	"context"
	"time"

	"docqa/app/agent"
	"docqa/types"

	"github.com/gofiber/fiber/v2"
)

const defaultHistoryLimit = 50

// QueryHistory lists past queries, newest first.
type QueryHistory interface {
	ListQueries(ctx context.Context, limit int) ([]types.QueryRecord, error)
}

type RequestHandler struct {
	service *agent.Service
	history QueryHistory
}

func NewRequestHandler(service *agent.Service, history QueryHistory) *RequestHandler {
	return &RequestHandler{
		service: service,
		history: history,
	}
}

// HandleQuery answers a question across all indexed documents.
func (h *RequestHandler) HandleQuery(c *fiber.Ctx) error {
	var params types.ChatQuery
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}

	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}

	rec, err := h.service.Query(c.UserContext(), params.Query)
	if err != nil {
		return err
	}

	return c.JSON(types.ChatResponse{
		Query:             rec.Query,
		Timestamp:         rec.Timestamp,
		Answers:           rec.Answers,
		Themes:            rec.Themes,
		TotalDocsSearched: rec.TotalDocsSearched,
	})
}

func (h *RequestHandler) HandleHistory(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultHistoryLimit)
	if limit <= 0 {
		return NewValidationError(map[string]string{"limit": "must be positive"})
	}

	records, err := h.history.ListQueries(c.UserContext(), limit)
	if err != nil {
		return err
	}
	if records == nil {
		records = []types.QueryRecord{}
	}
	return c.JSON(fiber.Map{"queries": records, "total": len(records)})
}

// HandleSearch returns raw similarity hits without calling the language model.
func (h *RequestHandler) HandleSearch(c *fiber.Ctx) error {
	var params types.SearchQuery
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}

	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}

	start := time.Now()
	chunks, err := h.service.Search(c.UserContext(), params.Query, params.NResults)
	if err != nil {
		return err
	}

	results := make([]types.SearchResult, len(chunks))
	for i, ch := range chunks {
		results[i] = types.SearchResult{
			Text: ch.Content,
			Metadata: types.SearchMetadata{
				DocID:     ch.DocID,
				Filename:  ch.Filename,
				Page:      ch.Page,
				Paragraph: ch.Paragraph,
				ChunkID:   ch.ID.String(),
			},
			Score: ch.Score,
		}
	}

	c.Set("X-Search-Duration", time.Since(start).String())
	return c.JSON(types.SearchResponse{Results: results, Total: len(results)})
}
