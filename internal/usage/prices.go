package usage

// ModelPrice holds the input/output token prices for one model. OpenAI prices
// are quoted per thousand tokens, Gemini prices per token; Estimate normalizes
// both to the same final cost unit.
type ModelPrice struct {
	Input  float64
	Output float64
}

// defaultPrice applies to model identifiers missing from the table.
var defaultPrice = ModelPrice{Input: 0.01, Output: 0.01}

// tokenPrices is the built-in per-model price table.
var tokenPrices = map[string]ModelPrice{
	"gpt-4-1106-preview": {Input: 0.01, Output: 0.03},
	"gpt-4":              {Input: 0.03, Output: 0.06},
	"gpt-4-32k":          {Input: 0.06, Output: 0.12},
	"gpt-4o":             {Input: 0.005, Output: 0.015},
	"gpt-4o-mini":        {Input: 0.00015, Output: 0.0006},
	"gpt-3.5-turbo":      {Input: 0.0005, Output: 0.0015},
	"gpt-3.5-turbo-16k":  {Input: 0.003, Output: 0.004},
	"o3-mini":            {Input: 0.0011, Output: 0.0044},
	"gemini-1.5-pro":     {Input: 0.00000125, Output: 0.000005},
	"gemini-1.5-flash":   {Input: 0.000000075, Output: 0.0000003},
}

// PriceFor returns the price pair for the model, falling back to the default
// pair for unknown identifiers.
func (e *Estimator) PriceFor(model string) ModelPrice {
	if price, ok := e.overrides[model]; ok {
		return price
	}
	if price, ok := tokenPrices[model]; ok {
		return price
	}
	return defaultPrice
}
