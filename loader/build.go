package loader

import (
	"log/slog"

	"docqa/config"
	"docqa/model"
	"docqa/store"
)

// NewFromConfig assembles the ingestion pipeline from configuration. ocr may
// be nil, in which case images are rejected.
func NewFromConfig(cfg *config.Config, s store.DBStorer, e model.Embedder, ocr model.TextRecognizer, logger *slog.Logger) *Ingestor {
	return NewIngestor(
		IngestorConfig{
			Limits: Limits{
				MaxFileSize:       cfg.Upload.MaxFileSize,
				AllowedExtensions: cfg.Upload.AllowedExtensions,
			},
			UploadDir: cfg.Upload.Dir,
		},
		s,
		e,
		NewExtractor(ocr, logger),
		NewSplitter(cfg.Chunking.ChunkSize, cfg.Chunking.ChunkOverlap, cfg.Chunking.MinParagraphLength),
		logger,
	)
}
