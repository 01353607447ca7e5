package usage

import (
	"context"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter counts tokens for a given model's tokenizer.
type TokenCounter interface {
	Count(ctx context.Context, model, text string) (int, error)
}

// TiktokenCounter counts with the model's own encoding, falling back to
// cl100k_base when the model is unknown and to a character heuristic when
// tiktoken is unavailable entirely.
type TiktokenCounter struct {
	mu        sync.Mutex
	encodings map[string]*tiktoken.Tiktoken
}

// NewTiktokenCounter builds a counter with a per-model encoding cache.
func NewTiktokenCounter() *TiktokenCounter {
	return &TiktokenCounter{encodings: map[string]*tiktoken.Tiktoken{}}
}

func (c *TiktokenCounter) encodingFor(model string) *tiktoken.Tiktoken {
	c.mu.Lock()
	defer c.mu.Unlock()
	if enc, ok := c.encodings[model]; ok {
		return enc
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			enc = nil
		}
	}
	c.encodings[model] = enc
	return enc
}

// Count implements TokenCounter.
func (c *TiktokenCounter) Count(_ context.Context, model, text string) (int, error) {
	if enc := c.encodingFor(model); enc != nil {
		return len(enc.Encode(text, nil, nil)), nil
	}
	return EstimateFast(text), nil
}

// EstimateFast returns a heuristic token estimate: max(runes/4, word count).
func EstimateFast(text string) int {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0
	}
	runes := len([]rune(trimmed))
	words := len(strings.Fields(trimmed))
	estimate := runes / 4
	if estimate < words {
		estimate = words
	}
	if estimate == 0 {
		estimate = 1
	}
	return estimate
}

// HeuristicCounter counts with EstimateFast regardless of model. It backs the
// Gemini provider, whose real tokenizer lives behind a remote endpoint this
// service does not call on the costing path.
type HeuristicCounter struct{}

// Count implements TokenCounter.
func (HeuristicCounter) Count(_ context.Context, _ string, text string) (int, error) {
	return EstimateFast(text), nil
}
