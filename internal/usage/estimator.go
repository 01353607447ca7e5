package usage

import (
	"context"
	"fmt"
	"time"

	"aide/internal/logging"
)

// Provider identifies the pricing and tokenization scheme for a model.
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderGemini Provider = "gemini"
)

// Record is one estimated usage entry for a completed exchange.
type Record struct {
	UserID       string    `json:"user_id,omitempty"`
	AssistantID  string    `json:"assistant_id,omitempty"`
	ThreadID     string    `json:"thread_id,omitempty"`
	Model        string    `json:"model"`
	Provider     Provider  `json:"provider"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	TotalTokens  int       `json:"total_tokens"`
	Cost         float64   `json:"cost"`
	CreatedAt    time.Time `json:"created_at"`
}

// Estimator derives token counts and cost from arbitrary prompt and reply
// payloads. Structured payloads are flattened to their leaf values before
// counting, so the estimate tracks content rather than encoding overhead.
type Estimator struct {
	openai    TokenCounter
	gemini    TokenCounter
	overrides map[string]ModelPrice
	logger    logging.Logger
}

// EstimatorConfig configures an Estimator. Zero-value fields get defaults.
type EstimatorConfig struct {
	// PriceOverrides replaces the built-in price for the named models.
	// Prices use the same unit convention as the built-in table.
	PriceOverrides map[string]ModelPrice
	Logger         logging.Logger
}

// NewEstimator builds an Estimator with tiktoken counting for OpenAI models
// and heuristic counting for Gemini models.
func NewEstimator(cfg EstimatorConfig) *Estimator {
	return &Estimator{
		openai:    NewTiktokenCounter(),
		gemini:    HeuristicCounter{},
		overrides: cfg.PriceOverrides,
		logger:    logging.OrNop(cfg.Logger),
	}
}

func (e *Estimator) counterFor(provider Provider) TokenCounter {
	if provider == ProviderGemini {
		return e.gemini
	}
	return e.openai
}

// Estimate flattens input and output, counts tokens with the provider's
// tokenizer, and prices the exchange. OpenAI prices are quoted per 1000
// tokens; Gemini prices are quoted per token.
func (e *Estimator) Estimate(ctx context.Context, input, output any, model string, provider Provider) (Record, error) {
	inText := Flatten(input)
	outText := Flatten(output)

	counter := e.counterFor(provider)
	inTokens, err := counter.Count(ctx, model, inText)
	if err != nil {
		return Record{}, fmt.Errorf("count input tokens: %w", err)
	}
	outTokens, err := counter.Count(ctx, model, outText)
	if err != nil {
		return Record{}, fmt.Errorf("count output tokens: %w", err)
	}

	price := e.PriceFor(model)
	var cost float64
	switch provider {
	case ProviderGemini:
		cost = float64(inTokens)*price.Input + float64(outTokens)*price.Output
	default:
		cost = (float64(inTokens)*price.Input + float64(outTokens)*price.Output) / 1000
	}

	rec := Record{
		Model:        model,
		Provider:     provider,
		InputTokens:  inTokens,
		OutputTokens: outTokens,
		TotalTokens:  inTokens + outTokens,
		Cost:         cost,
		CreatedAt:    time.Now().UTC(),
	}
	e.logger.Debug("usage estimate model=%s in=%d out=%d cost=%.6f", model, inTokens, outTokens, cost)
	return rec, nil
}
