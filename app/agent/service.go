package agent

import (
	"context"
	"log/slog"
	"time"

	"docqa/model"
	"docqa/types"

	"github.com/google/uuid"
)

const noDocumentsSynthesis = "No relevant documents found."

// QueryStore is the part of store.DBStorer the query flow needs.
type QueryStore interface {
	Search(ctx context.Context, vec []float32, n int) ([]types.Chunk, error)
	SaveQuery(ctx context.Context, q types.QueryRecord) error
}

// Service runs a question through retrieval, per-document answering and
// theme identification, and keeps the result in the query history.
type Service struct {
	agent    *Agent
	store    QueryStore
	embedder model.Embedder
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(agent *Agent, store QueryStore, embedder model.Embedder, logger *slog.Logger) *Service {
	return &Service{
		agent:    agent,
		store:    store,
		embedder: embedder,
		logger:   logger,
		now:      time.Now,
	}
}

// Search embeds text and returns the n most similar chunks.
func (s *Service) Search(ctx context.Context, text string, n int) ([]types.Chunk, error) {
	vec, err := s.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	return s.store.Search(ctx, vec, n)
}

func (s *Service) retrieve(ctx context.Context, text string) ([]types.Chunk, error) {
	chunks, err := s.Search(ctx, text, s.agent.cfg.NResults)
	if err != nil {
		return nil, err
	}
	kept := chunks[:0]
	for _, c := range chunks {
		if c.Score >= s.agent.cfg.MinScore {
			kept = append(kept, c)
		}
	}
	return kept, nil
}

// Query answers text from the indexed documents.
func (s *Service) Query(ctx context.Context, text string) (*types.QueryRecord, error) {
	start := time.Now()

	chunks, err := s.retrieve(ctx, text)
	if err != nil {
		return nil, err
	}

	rec := types.QueryRecord{
		ID:        uuid.New(),
		Query:     text,
		Timestamp: s.now().UTC(),
		ChunkIDs:  make([]uuid.UUID, len(chunks)),
		Answers:   []types.Answer{},
	}
	for i, c := range chunks {
		rec.ChunkIDs[i] = c.ID
	}

	if len(chunks) == 0 {
		rec.Themes = types.ThemeAnalysis{Themes: []types.Theme{}, Synthesis: noDocumentsSynthesis}
	} else {
		rec.TotalDocsSearched = len(groupByDocument(chunks))
		rec.Answers = s.agent.Answers(ctx, text, chunks)
		rec.Themes = s.agent.Themes(ctx, text, rec.Answers)
	}

	if err := s.store.SaveQuery(ctx, rec); err != nil {
		s.logger.Error("save query history", "query_id", rec.ID, "err", err)
	}

	s.logger.Info("query answered",
		"query_id", rec.ID,
		"chunks", len(chunks),
		"documents", rec.TotalDocsSearched,
		"answers", len(rec.Answers),
		"themes", len(rec.Themes.Themes),
		"took", time.Since(start),
	)
	return &rec, nil
}
