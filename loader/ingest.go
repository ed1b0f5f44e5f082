package loader

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"docqa/model"
	"docqa/store"
	"docqa/types"

	"github.com/google/uuid"
)

const embedBatch = 64

// Ingestor runs an upload through validation, extraction, splitting and
// embedding, and stores the result.
type Ingestor struct {
	store     store.DBStorer
	embedder  model.Embedder
	extractor *Extractor
	splitter  *Splitter
	limits    Limits
	uploadDir string
	logger    *slog.Logger
	now       func() time.Time
}

type IngestorConfig struct {
	Limits    Limits
	UploadDir string
}

func NewIngestor(cfg IngestorConfig, s store.DBStorer, e model.Embedder, x *Extractor, sp *Splitter, logger *slog.Logger) *Ingestor {
	return &Ingestor{
		store:     s,
		embedder:  e,
		extractor: x,
		splitter:  sp,
		limits:    cfg.Limits,
		uploadDir: cfg.UploadDir,
		logger:    logger,
		now:       time.Now,
	}
}

// Limits returns the upload limits the ingestor enforces.
func (in *Ingestor) Limits() Limits {
	return in.limits
}

// Ingest stores a new document built from data and returns it without its
// chunk embeddings.
func (in *Ingestor) Ingest(ctx context.Context, name string, data []byte) (*types.Document, error) {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	start := in.now()

	ft, err := in.limits.ValidateFile(name, int64(len(data)))
	if err != nil {
		return nil, err
	}
	mimeType, err := SniffContent(ft, data)
	if err != nil {
		return nil, err
	}

	text, pages, err := in.extractor.Extract(ctx, ft, mimeType, data)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", name, err)
	}
	pieces := in.splitter.Split(text)

	vectors, err := in.embed(ctx, pieces)
	if err != nil {
		return nil, fmt.Errorf("embed %s: %w", name, err)
	}

	id, err := in.store.NextDocumentID(ctx)
	if err != nil {
		return nil, err
	}

	doc := &types.Document{
		ID:         id,
		Filename:   name,
		Type:       ft,
		Size:       int64(len(data)),
		UploadedAt: in.now().UTC(),
		Text:       text,
		PageCount:  pages,
		Chunks:     make([]types.Chunk, 0, len(pieces)),
	}
	for i, p := range pieces {
		doc.Chunks = append(doc.Chunks, types.Chunk{
			ID:        uuid.New(),
			DocID:     id,
			Filename:  name,
			Page:      p.Page,
			Paragraph: p.Paragraph,
			Position:  i,
			Content:   p.Text,
			Embedding: vectors[i],
		})
	}

	if err := in.store.SaveDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("save %s: %w", name, err)
	}

	if err := in.saveOriginal(doc, data); err != nil {
		if derr := in.store.DeleteDocument(ctx, doc.ID); derr != nil {
			in.logger.Error("rollback of document failed", "doc_id", doc.ID, "err", derr)
		}
		return nil, err
	}

	in.logger.Info("document ingested",
		"doc_id", doc.ID,
		"filename", name,
		"type", ft,
		"pages", pages,
		"chunks", len(doc.Chunks),
		"took", time.Since(start),
	)

	for i := range doc.Chunks {
		doc.Chunks[i].Embedding = nil
	}
	return doc, nil
}

func (in *Ingestor) embed(ctx context.Context, pieces []Piece) ([][]float32, error) {
	vectors := make([][]float32, 0, len(pieces))
	for start := 0; start < len(pieces); start += embedBatch {
		end := min(start+embedBatch, len(pieces))
		texts := make([]string, 0, end-start)
		for _, p := range pieces[start:end] {
			texts = append(texts, p.Text)
		}
		batch, err := in.embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return nil, err
		}
		if len(batch) != len(texts) {
			return nil, fmt.Errorf("%w: got %d vectors for %d texts", types.ErrEmbeddingUnavailable, len(batch), len(texts))
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

// OriginalPath is where the uploaded bytes of a document are kept.
func (in *Ingestor) OriginalPath(doc *types.Document) string {
	return filepath.Join(in.uploadDir, fmt.Sprintf("%s.%s", doc.ID, doc.Type))
}

func (in *Ingestor) saveOriginal(doc *types.Document, data []byte) error {
	if in.uploadDir == "" {
		return nil
	}
	if err := os.MkdirAll(in.uploadDir, 0o755); err != nil {
		return fmt.Errorf("create upload dir: %w", err)
	}
	if err := os.WriteFile(in.OriginalPath(doc), data, 0o644); err != nil {
		return fmt.Errorf("save original of %s: %w", doc.ID, err)
	}
	return nil
}

// Remove deletes a document, its chunks and its stored original.
func (in *Ingestor) Remove(ctx context.Context, id string) error {
	doc, err := in.store.GetDocumentByID(ctx, id)
	if err != nil {
		return err
	}
	if err := in.store.DeleteDocument(ctx, id); err != nil {
		return err
	}
	if in.uploadDir != "" {
		if err := os.Remove(in.OriginalPath(doc)); err != nil && !os.IsNotExist(err) {
			in.logger.Warn("original file not removed", "doc_id", id, "err", err)
		}
	}
	in.logger.Info("document deleted", "doc_id", id)
	return nil
}
