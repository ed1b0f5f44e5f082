package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"docqa/config"
	"docqa/model"
	"docqa/types"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/prompts"
	"golang.org/x/sync/errgroup"
)

const noInformation = "no relevant information"

const answerTemplate = `Based on this document content, answer: "{{.query}}"

Content:
{{.content}}

Instructions:
1. Provide a direct, specific answer if the information is available
2. If no relevant information is found, respond with "No relevant information found"
3. Keep the answer concise and factual
4. Focus on the most relevant information

Answer:`

type Config struct {
	NResults          int
	MinScore          float64
	ChunksPerDocument int
	// MaxContextTokens caps the per-document context; 0 disables the cap.
	MaxContextTokens int
	Workers          int
	Temperature      float64
	MaxTokens        int
}

func ConfigFrom(cfg *config.Config) Config {
	return Config{
		NResults:          cfg.Retrieval.NResults,
		MinScore:          cfg.Retrieval.MinScore,
		ChunksPerDocument: cfg.Retrieval.ChunksPerDocument,
		MaxContextTokens:  cfg.Retrieval.MaxContextTokens,
		Workers:           cfg.LLM.AnswerWorkers,
		Temperature:       cfg.LLM.Temperature,
		MaxTokens:         cfg.LLM.MaxTokens,
	}
}

// Agent turns retrieved chunks into per-document answers and cross-document
// themes.
type Agent struct {
	llm    llms.Model
	tokens *model.TokenCounter
	cfg    Config
	logger *slog.Logger

	answerPrompt prompts.PromptTemplate
	themePrompt  prompts.PromptTemplate
}

func New(llm llms.Model, tokens *model.TokenCounter, cfg Config, logger *slog.Logger) *Agent {
	if cfg.ChunksPerDocument <= 0 {
		cfg.ChunksPerDocument = 3
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Agent{
		llm:          llm,
		tokens:       tokens,
		cfg:          cfg,
		logger:       logger,
		answerPrompt: prompts.NewPromptTemplate(answerTemplate, []string{"query", "content"}),
		themePrompt:  prompts.NewPromptTemplate(themeTemplate, []string{"query", "answers"}),
	}
}

func (a *Agent) callOptions() []llms.CallOption {
	opts := []llms.CallOption{llms.WithTemperature(a.cfg.Temperature)}
	if a.cfg.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(a.cfg.MaxTokens))
	}
	return opts
}

func (a *Agent) generate(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	defer func() {
		a.logger.Debug("llm call finished", "took", time.Since(start))
	}()

	out, err := llms.GenerateFromSinglePrompt(ctx, a.llm, prompt, a.callOptions()...)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// groupByDocument splits search hits per document, keeping retrieval order
// both across and within documents.
func groupByDocument(chunks []types.Chunk) [][]types.Chunk {
	index := make(map[string]int)
	var groups [][]types.Chunk
	for _, c := range chunks {
		i, ok := index[c.DocID]
		if !ok {
			i = len(groups)
			index[c.DocID] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], c)
	}
	return groups
}

// Answers asks the model once per document found in chunks. Documents whose
// answer is empty or says nothing relevant are left out, as are documents
// whose call failed.
func (a *Agent) Answers(ctx context.Context, query string, chunks []types.Chunk) []types.Answer {
	groups := groupByDocument(chunks)
	results := make([]*types.Answer, len(groups))

	var g errgroup.Group
	g.SetLimit(a.cfg.Workers)
	for i, group := range groups {
		g.Go(func() error {
			ans, err := a.answerDocument(ctx, query, group)
			if err != nil {
				a.logger.Error("answer extraction failed", "doc_id", group[0].DocID, "err", err)
				return nil
			}
			results[i] = ans
			return nil
		})
	}
	g.Wait()

	answers := make([]types.Answer, 0, len(results))
	for _, ans := range results {
		if ans != nil {
			answers = append(answers, *ans)
		}
	}
	return answers
}

func (a *Agent) answerDocument(ctx context.Context, query string, chunks []types.Chunk) (*types.Answer, error) {
	top := chunks[:min(len(chunks), a.cfg.ChunksPerDocument)]
	texts := make([]string, len(top))
	for i, c := range top {
		texts[i] = c.Content
	}
	content := a.fitContext(strings.Join(texts, "\n"))

	prompt, err := a.answerPrompt.Format(map[string]any{"query": query, "content": content})
	if err != nil {
		return nil, fmt.Errorf("format answer prompt: %w", err)
	}

	text, err := a.generate(ctx, prompt)
	if err != nil {
		return nil, err
	}
	if text == "" || strings.Contains(strings.ToLower(text), noInformation) {
		a.logger.Debug("no answer in document", "doc_id", top[0].DocID)
		return nil, nil
	}

	best := top[0]
	return &types.Answer{
		DocID:     best.DocID,
		Filename:  best.Filename,
		Answer:    text,
		Citation:  best.Citation().String(),
		Page:      best.Page,
		Paragraph: best.Paragraph,
	}, nil
}

func (a *Agent) fitContext(content string) string {
	if a.cfg.MaxContextTokens <= 0 || a.tokens == nil {
		return content
	}
	trimmed, err := a.tokens.Truncate(content, a.cfg.MaxContextTokens)
	if err != nil {
		a.logger.Warn("token counting unavailable, context not trimmed", "err", err)
		return content
	}
	return trimmed
}
