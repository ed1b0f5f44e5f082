package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"docqa/types"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	s, err := NewBoltStore(filepath.Join(t.TempDir(), "store", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testDocument(t *testing.T, s DBStorer, name string, vecs ...[]float32) *types.Document {
	t.Helper()
	ctx := context.Background()

	id, err := s.NextDocumentID(ctx)
	require.NoError(t, err)

	doc := &types.Document{
		ID:         id,
		Filename:   name,
		Type:       types.FileText,
		Size:       100,
		UploadedAt: time.Now().UTC(),
		PageCount:  1,
	}
	for i, v := range vecs {
		doc.Chunks = append(doc.Chunks, types.Chunk{
			ID:        uuid.New(),
			DocID:     id,
			Filename:  name,
			Page:      1,
			Paragraph: i + 1,
			Position:  i,
			Content:   name + " paragraph",
			Embedding: v,
		})
	}
	require.NoError(t, s.SaveDocument(ctx, doc))
	return doc
}

func TestNextDocumentID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.NextDocumentID(ctx)
	require.NoError(t, err)
	second, err := s.NextDocumentID(ctx)
	require.NoError(t, err)

	assert.Equal(t, "DOC001", first)
	assert.Equal(t, "DOC002", second)
	assert.Equal(t, "DOC1000", FormatDocumentID(1000))
}

func TestSaveAndGetDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := testDocument(t, s, "a.txt", []float32{1, 0}, []float32{0, 1})
	assert.Equal(t, 2, doc.ChunkCount)

	got, err := s.GetDocumentByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "a.txt", got.Filename)
	assert.Equal(t, 2, got.ChunkCount)

	n, err := s.CountDocuments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.GetDocumentByID(ctx, "DOC999")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestSearchOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := testDocument(t, s, "a.txt", []float32{0, 1}, []float32{1, 0})
	b := testDocument(t, s, "b.txt", []float32{1, 0})
	testDocument(t, s, "c.txt", []float32{0.6, 0.8})

	hits, err := s.Search(ctx, []float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 4)

	// equal scores fall back to document id, then page/paragraph
	assert.Equal(t, a.ID, hits[0].DocID)
	assert.Equal(t, 2, hits[0].Paragraph)
	assert.Equal(t, b.ID, hits[1].DocID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
	assert.InDelta(t, 0.6, hits[2].Score, 1e-6)
	assert.Nil(t, hits[0].Embedding)

	again, err := s.Search(ctx, []float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Equal(t, hits, again)

	top, err := s.Search(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	assert.Equal(t, hits[:2], top)
}

func TestDeleteDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := testDocument(t, s, "a.txt", []float32{1, 0})
	b := testDocument(t, s, "b.txt", []float32{1, 0})

	require.NoError(t, s.DeleteDocument(ctx, a.ID))
	assert.ErrorIs(t, s.DeleteDocument(ctx, a.ID), types.ErrNotFound)

	hits, err := s.Search(ctx, []float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, b.ID, hits[0].DocID)

	docs, err := s.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, b.ID, docs[0].ID)
}

func TestQueryHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, q := range []string{"first", "second", "third"} {
		require.NoError(t, s.SaveQuery(ctx, types.QueryRecord{
			ID:        uuid.New(),
			Query:     q,
			Timestamp: time.Now().UTC(),
			Answers:   []types.Answer{{DocID: "DOC001", Page: 1, Paragraph: 2}},
		}))
	}

	got, err := s.ListQueries(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "third", got[0].Query)
	assert.Equal(t, "second", got[1].Query)
	assert.Equal(t, []types.Citation{{DocID: "DOC001", Page: 1, Paragraph: 2}}, got[0].Citations())
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 1}, []float32{2, 2}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Equal(t, 0.0, CosineSimilarity([]float32{1}, []float32{1, 0}))
	assert.Equal(t, 0.0, CosineSimilarity(nil, nil))
}
