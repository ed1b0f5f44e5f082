// Package modeltest provides deterministic stand-ins for the model adapters.
package modeltest

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
	"unicode"

	"docqa/model"

	"github.com/tmc/langchaingo/llms"
)

const DefaultDim = 64

// FakeEmbedder hashes words into a fixed number of buckets, so texts sharing
// vocabulary end up close in cosine space.
type FakeEmbedder struct {
	Dim int
	Err error
}

var _ model.Embedder = (*FakeEmbedder)(nil)

func NewFakeEmbedder() *FakeEmbedder {
	return &FakeEmbedder{Dim: DefaultDim}
}

func (e *FakeEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	if e.Err != nil {
		return nil, e.Err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *FakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if e.Err != nil {
		return nil, e.Err
	}
	return e.vector(text), nil
}

func (e *FakeEmbedder) vector(text string) []float32 {
	dim := e.Dim
	if dim <= 0 {
		dim = DefaultDim
	}
	vec := make([]float32, dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		h.Write([]byte(w))
		vec[h.Sum32()%uint32(dim)]++
	}
	return model.Normalize(vec)
}

// FakeLLM answers every prompt through Respond and records what it was asked.
type FakeLLM struct {
	Respond func(prompt string) (string, error)

	mu      sync.Mutex
	prompts []string
}

var _ llms.Model = (*FakeLLM)(nil)

// NewFakeLLM returns a model that always replies with answer.
func NewFakeLLM(answer string) *FakeLLM {
	return &FakeLLM{Respond: func(string) (string, error) { return answer, nil }}
}

func (f *FakeLLM) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	var b strings.Builder
	for _, m := range messages {
		for _, p := range m.Parts {
			if tc, ok := p.(llms.TextContent); ok {
				b.WriteString(tc.Text)
			}
		}
	}
	prompt := b.String()

	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()

	text, err := f.Respond(prompt)
	if err != nil {
		return nil, err
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: text}},
	}, nil
}

func (f *FakeLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

// Prompts returns the prompts received so far.
func (f *FakeLLM) Prompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

// FakeRecognizer returns Text for every image.
type FakeRecognizer struct {
	Text string
	Err  error
}

var _ model.TextRecognizer = (*FakeRecognizer)(nil)

func (r *FakeRecognizer) Recognize(context.Context, []byte, string) (string, error) {
	return r.Text, r.Err
}
