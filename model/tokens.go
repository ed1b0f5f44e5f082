package model

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

const tokenizerModel = "gpt-3.5-turbo"

// TokenCounter measures and trims prompt text with a tiktoken encoding. The
// encoding is loaded on first use from the ranks bundled with the binary.
type TokenCounter struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
	err  error
}

func NewTokenCounter() *TokenCounter {
	return &TokenCounter{}
}

func (t *TokenCounter) load() error {
	t.once.Do(func() {
		tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
		t.enc, t.err = tiktoken.EncodingForModel(tokenizerModel)
	})
	return t.err
}

func (t *TokenCounter) Count(text string) (int, error) {
	if err := t.load(); err != nil {
		return 0, err
	}
	return len(t.enc.Encode(text, nil, nil)), nil
}

// Truncate returns the longest prefix of text that fits in limit tokens.
func (t *TokenCounter) Truncate(text string, limit int) (string, error) {
	if err := t.load(); err != nil {
		return "", err
	}
	tokens := t.enc.Encode(text, nil, nil)
	if len(tokens) <= limit {
		return text, nil
	}
	return t.enc.Decode(tokens[:limit]), nil
}
