package agent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"docqa/model"
	"docqa/model/modeltest"
	"docqa/store"
	"docqa/types"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() Config {
	return Config{NResults: 20, ChunksPerDocument: 3, Workers: 4}
}

func chunk(docID string, page, para int, text string) types.Chunk {
	return types.Chunk{ID: uuid.New(), DocID: docID, Filename: strings.ToLower(docID) + ".txt", Page: page, Paragraph: para, Content: text}
}

func TestAnswersKeepRetrievalOrder(t *testing.T) {
	llm := &modeltest.FakeLLM{Respond: func(prompt string) (string, error) {
		switch {
		case strings.Contains(prompt, "broken"):
			return "", errors.New("model exploded")
		case strings.Contains(prompt, "nothing here"):
			return "No relevant information found.", nil
		}
		_, content, _ := strings.Cut(prompt, "Content:\n")
		first, _, _ := strings.Cut(content, "\n")
		return "answer from " + first, nil
	}}
	a := New(llm, nil, testConfig(), discardLogger())

	chunks := []types.Chunk{
		chunk("DOC003", 2, 4, "gamma one"),
		chunk("DOC001", 1, 1, "alpha one"),
		chunk("DOC003", 5, 1, "gamma two"),
		chunk("DOC004", 1, 1, "broken"),
		chunk("DOC002", 3, 2, "beta one"),
		chunk("DOC005", 1, 1, "nothing here"),
	}

	answers := a.Answers(context.Background(), "question", chunks)
	require.Len(t, answers, 3)

	assert.Equal(t, "DOC003", answers[0].DocID)
	assert.Equal(t, "answer from gamma one", answers[0].Answer)
	assert.Equal(t, "Page 2, Para 4", answers[0].Citation)
	assert.Equal(t, "doc003.txt", answers[0].Filename)
	assert.Equal(t, "DOC001", answers[1].DocID)
	assert.Equal(t, "DOC002", answers[2].DocID)
	assert.Equal(t, 3, answers[2].Page)
	assert.Equal(t, 2, answers[2].Paragraph)
}

func TestAnswersUseTopChunksOnly(t *testing.T) {
	llm := modeltest.NewFakeLLM("fine")
	cfg := testConfig()
	cfg.ChunksPerDocument = 2
	a := New(llm, nil, cfg, discardLogger())

	chunks := []types.Chunk{
		chunk("DOC001", 1, 1, "first part"),
		chunk("DOC001", 1, 2, "second part"),
		chunk("DOC001", 1, 3, "third part"),
	}
	a.Answers(context.Background(), "question", chunks)

	prompts := llm.Prompts()
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "first part\nsecond part")
	assert.NotContains(t, prompts[0], "third part")
	assert.Contains(t, prompts[0], `answer: "question"`)
}

func TestAnswersTrimContextToTokenBudget(t *testing.T) {
	llm := modeltest.NewFakeLLM("fine")
	cfg := testConfig()
	cfg.MaxContextTokens = 3
	a := New(llm, model.NewTokenCounter(), cfg, discardLogger())

	a.Answers(context.Background(), "question", []types.Chunk{
		chunk("DOC001", 1, 1, "one two three four five"),
	})

	prompts := llm.Prompts()
	require.Len(t, prompts, 1)
	_, content, _ := strings.Cut(prompts[0], "Content:\n")
	content, _, _ = strings.Cut(content, "\n")
	assert.Equal(t, "one two three", content)
}

func TestParseThemes(t *testing.T) {
	answers := []types.Answer{
		{DocID: "DOC001", Answer: "a"},
		{DocID: "DOC002", Answer: "b"},
		{DocID: "DOC010", Answer: "c"},
	}

	t.Run("plain format", func(t *testing.T) {
		reply := "THEME 1: Growth\nDocuments: DOC001, DOC010\nSummary: Revenue went up.\n\n" +
			"THEME 2: Governance\nDocuments: DOC002\nSummary: New policies.\n\n" +
			"OVERALL SYNTHESIS:\nThe company grew and reorganised."

		got := ParseThemes(reply, answers)
		require.Len(t, got.Themes, 2)
		assert.Equal(t, types.Theme{
			Name:                "Growth",
			Summary:             "Revenue went up.",
			SupportingDocuments: []string{"DOC001", "DOC010"},
			DocumentCount:       2,
		}, got.Themes[0])
		assert.Equal(t, []string{"DOC002"}, got.Themes[1].SupportingDocuments)
		assert.Equal(t, "The company grew and reorganised.", got.Synthesis)
	})

	t.Run("markdown and multi-line summary", func(t *testing.T) {
		reply := "## **THEME 1: Cost control**\n**Documents:** [DOC002]\n**Summary:** Spending fell\nacross all units.\n\n**Overall Synthesis:** Costs are down."

		got := ParseThemes(reply, answers)
		require.Len(t, got.Themes, 1)
		assert.Equal(t, "Cost control", got.Themes[0].Name)
		assert.Equal(t, "Spending fell\nacross all units.", got.Themes[0].Summary)
		assert.Equal(t, []string{"DOC002"}, got.Themes[0].SupportingDocuments)
		assert.Equal(t, "Costs are down.", got.Synthesis)
	})

	t.Run("ids are matched exactly", func(t *testing.T) {
		got := ParseThemes("THEME 1: X\nDocuments: DOC01, DOC100\nSummary: s", answers)
		require.Len(t, got.Themes, 1)
		assert.Empty(t, got.Themes[0].SupportingDocuments)
		assert.Zero(t, got.Themes[0].DocumentCount)
	})

	t.Run("unparseable reply", func(t *testing.T) {
		got := ParseThemes("  The documents broadly agree.  ", answers)
		require.Len(t, got.Themes, 1)
		assert.Equal(t, "General Analysis", got.Themes[0].Name)
		assert.Equal(t, "The documents broadly agree.", got.Themes[0].Summary)
		assert.Equal(t, []string{"DOC001", "DOC002", "DOC010"}, got.Themes[0].SupportingDocuments)
		assert.Equal(t, 3, got.Themes[0].DocumentCount)
		assert.Equal(t, "The documents broadly agree.", got.Synthesis)
	})
}

func TestThemesWithoutAnswers(t *testing.T) {
	llm := modeltest.NewFakeLLM("unused")
	a := New(llm, nil, testConfig(), discardLogger())

	got := a.Themes(context.Background(), "q", nil)
	assert.Empty(t, got.Themes)
	assert.Equal(t, "No relevant information found.", got.Synthesis)
	assert.Empty(t, llm.Prompts())
}

func TestThemesModelFailure(t *testing.T) {
	llm := &modeltest.FakeLLM{Respond: func(string) (string, error) {
		return "", types.ErrLLMUnavailable
	}}
	a := New(llm, nil, testConfig(), discardLogger())

	got := a.Themes(context.Background(), "q", []types.Answer{{DocID: "DOC001", Answer: "x"}})
	require.Len(t, got.Themes, 1)
	assert.Equal(t, "General Analysis", got.Themes[0].Name)
	assert.Equal(t, "Error analyzing themes", got.Themes[0].Summary)
	assert.Empty(t, got.Themes[0].SupportingDocuments)
}

const themeReply = `**THEME 1: Financial growth**
Documents: DOC001
Summary: Revenue increased
over the year.

OVERALL SYNTHESIS:
The company grew.`

func scriptedLLM() *modeltest.FakeLLM {
	return &modeltest.FakeLLM{Respond: func(prompt string) (string, error) {
		switch {
		case strings.HasPrefix(prompt, "Analyze these document answers"):
			return themeReply, nil
		case strings.Contains(prompt, "twelve percent"):
			return "Revenue grew by twelve percent.", nil
		default:
			return "No relevant information found", nil
		}
	}}
}

type serviceEnv struct {
	svc   *Service
	store *store.BoltStore
	llm   *modeltest.FakeLLM
}

func newServiceEnv(t *testing.T) *serviceEnv {
	t.Helper()
	s, err := store.NewBoltStore(filepath.Join(t.TempDir(), "docs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	llm := scriptedLLM()
	emb := modeltest.NewFakeEmbedder()
	svc := NewService(New(llm, nil, testConfig(), discardLogger()), s, emb, discardLogger())
	return &serviceEnv{svc: svc, store: s, llm: llm}
}

func (e *serviceEnv) addDocument(t *testing.T, filename string, paragraphs ...string) string {
	t.Helper()
	ctx := context.Background()
	id, err := e.store.NextDocumentID(ctx)
	require.NoError(t, err)

	vecs, err := modeltest.NewFakeEmbedder().EmbedDocuments(ctx, paragraphs)
	require.NoError(t, err)

	doc := &types.Document{ID: id, Filename: filename, Type: types.FileText, PageCount: 1}
	for i, p := range paragraphs {
		doc.Chunks = append(doc.Chunks, types.Chunk{
			ID: uuid.New(), DocID: id, Filename: filename,
			Page: 1, Paragraph: i + 1, Position: i,
			Content: p, Embedding: vecs[i],
		})
	}
	require.NoError(t, e.store.SaveDocument(ctx, doc))
	return id
}

func TestQueryEmptyCorpus(t *testing.T) {
	env := newServiceEnv(t)

	rec, err := env.svc.Query(context.Background(), "What changed?")
	require.NoError(t, err)
	assert.Empty(t, rec.Answers)
	assert.Empty(t, rec.Citations())
	assert.Empty(t, rec.Themes.Themes)
	assert.Equal(t, "No relevant documents found.", rec.Themes.Synthesis)
	assert.Zero(t, rec.TotalDocsSearched)
	assert.Empty(t, env.llm.Prompts())
}

func TestQueryCitesDocuments(t *testing.T) {
	env := newServiceEnv(t)
	ctx := context.Background()
	first := env.addDocument(t, "annual.txt",
		"The board met four times during the year to review strategy.",
		"Revenue grew by twelve percent over the previous fiscal year.",
	)
	env.addDocument(t, "policy.txt", "The sustainability policy covers suppliers and logistics.")

	rec, err := env.svc.Query(ctx, "How much did revenue grow over the fiscal year?")
	require.NoError(t, err)

	assert.Equal(t, 2, rec.TotalDocsSearched)
	assert.Len(t, rec.ChunkIDs, 3)
	require.Len(t, rec.Answers, 1)
	ans := rec.Answers[0]
	assert.Equal(t, first, ans.DocID)
	assert.Equal(t, "annual.txt", ans.Filename)
	assert.Equal(t, "Page 1, Para 2", ans.Citation)
	assert.Equal(t, []types.Citation{{DocID: first, Page: 1, Paragraph: 2}}, rec.Citations())

	require.Len(t, rec.Themes.Themes, 1)
	assert.Equal(t, "Financial growth", rec.Themes.Themes[0].Name)
	assert.Equal(t, []string{first}, rec.Themes.Themes[0].SupportingDocuments)
	assert.Equal(t, "The company grew.", rec.Themes.Synthesis)

	history, err := env.store.ListQueries(ctx, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, rec.ID, history[0].ID)
	assert.Equal(t, rec.Answers, history[0].Answers)
}

func TestQueryMinScore(t *testing.T) {
	env := newServiceEnv(t)
	env.svc.agent.cfg.MinScore = 0.99
	env.addDocument(t, "policy.txt", "The sustainability policy covers suppliers and logistics.")

	rec, err := env.svc.Query(context.Background(), "revenue")
	require.NoError(t, err)
	assert.Zero(t, rec.TotalDocsSearched)
	assert.Equal(t, "No relevant documents found.", rec.Themes.Synthesis)
}

func TestQueryEmbeddingFailure(t *testing.T) {
	env := newServiceEnv(t)
	env.svc.embedder = &modeltest.FakeEmbedder{Err: types.ErrEmbeddingUnavailable}

	_, err := env.svc.Query(context.Background(), "anything")
	assert.ErrorIs(t, err, types.ErrEmbeddingUnavailable)
}

func TestSearchIsDeterministic(t *testing.T) {
	env := newServiceEnv(t)
	env.addDocument(t, "a.txt", "apples and pears", "pears and plums", "plums and apples")
	env.addDocument(t, "b.txt", "apples and pears", "grapes")

	first, err := env.svc.Search(context.Background(), "apples pears", 5)
	require.NoError(t, err)
	require.Len(t, first, 5)
	for i := 0; i < 5; i++ {
		again, err := env.svc.Search(context.Background(), "apples pears", 5)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	// identical text ties on score and falls back to document order
	assert.Equal(t, "DOC001", first[0].DocID)
	assert.Equal(t, "DOC002", first[1].DocID)
}
