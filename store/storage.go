package store

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"strings"

	"docqa/types"
)

type DBStorer interface {
	// NextDocumentID allocates the next sequential DOCnnn identifier.
	NextDocumentID(context.Context) (string, error)
	// SaveDocument stores the document together with doc.Chunks atomically.
	SaveDocument(context.Context, *types.Document) error
	GetDocumentByID(context.Context, string) (*types.Document, error)
	ListDocuments(context.Context) ([]types.Document, error)
	CountDocuments(context.Context) (int, error)
	DeleteDocument(context.Context, string) error
	Search(context.Context, []float32, int) ([]types.Chunk, error)
	SaveQuery(context.Context, types.QueryRecord) error
	ListQueries(context.Context, int) ([]types.QueryRecord, error)
	Close() error
}

func FormatDocumentID(seq uint64) string {
	return fmt.Sprintf("DOC%03d", seq)
}

// CosineSimilarity returns 0 when either vector is empty or the lengths differ.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// compareChunks orders search hits by score, then by their place in the corpus.
func compareChunks(a, b types.Chunk) int {
	if a.Score != b.Score {
		if a.Score > b.Score {
			return -1
		}
		return 1
	}
	return cmp.Or(
		cmp.Compare(a.DocID, b.DocID),
		cmp.Compare(a.Page, b.Page),
		cmp.Compare(a.Paragraph, b.Paragraph),
		cmp.Compare(a.Position, b.Position),
	)
}

// SortChunks sorts search hits into their stable ranking order.
func SortChunks(chunks []types.Chunk) {
	slices.SortStableFunc(chunks, compareChunks)
}

func compareDocuments(a, b types.Document) int {
	return cmp.Or(
		a.UploadedAt.Compare(b.UploadedAt),
		cmp.Compare(len(a.ID), len(b.ID)),
		cmp.Compare(a.ID, b.ID),
	)
}

// sanitizeUTF8 drops invalid byte sequences and NUL characters, which
// Postgres text columns reject.
func sanitizeUTF8(s string) string {
	s = strings.ToValidUTF8(s, "")
	return strings.ReplaceAll(s, "\x00", "")
}
