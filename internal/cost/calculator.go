// Package cost estimates what provider calls spend.
package cost

import "sync"

// Rates holds per-provider pricing in USD.
type Rates struct {
	Anthropic  map[string]ModelRate `yaml:"anthropic" mapstructure:"anthropic"`
	Perplexity PerplexityRate       `yaml:"perplexity" mapstructure:"perplexity"`
}

// ModelRate holds per-model token pricing (per million tokens).
type ModelRate struct {
	Input         float64 `yaml:"input" mapstructure:"input"`
	Output        float64 `yaml:"output" mapstructure:"output"`
	CacheWriteMul float64 `yaml:"cache_write_mul" mapstructure:"cache_write_mul"`
	CacheReadMul  float64 `yaml:"cache_read_mul" mapstructure:"cache_read_mul"`
}

// PerplexityRate prices a Perplexity request: a flat request fee that
// depends on the search context size, plus tokens.
type PerplexityRate struct {
	PerQuery      float64 `yaml:"per_query" mapstructure:"per_query"`
	PerDeepQuery  float64 `yaml:"per_deep_query" mapstructure:"per_deep_query"`
	InputPerMTok  float64 `yaml:"input_per_mtok" mapstructure:"input_per_mtok"`
	OutputPerMTok float64 `yaml:"output_per_mtok" mapstructure:"output_per_mtok"`
}

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Claude computes the cost of one Anthropic message. Unknown models cost 0.
func (c *Calculator) Claude(model string, input, output, cacheWrite, cacheRead int64) float64 {
	rate, ok := c.rates.Anthropic[model]
	if !ok {
		return 0
	}
	inCost := (float64(input) / 1e6) * rate.Input
	outCost := (float64(output) / 1e6) * rate.Output
	cwCost := (float64(cacheWrite) / 1e6) * rate.Input * rate.CacheWriteMul
	crCost := (float64(cacheRead) / 1e6) * rate.Input * rate.CacheReadMul
	return inCost + outCost + cwCost + crCost
}

// Perplexity computes the cost of one chat completion.
func (c *Calculator) Perplexity(deep bool, promptTokens, completionTokens int) float64 {
	r := c.rates.Perplexity
	fee := r.PerQuery
	if deep {
		fee = r.PerDeepQuery
	}
	return fee +
		(float64(promptTokens)/1e6)*r.InputPerMTok +
		(float64(completionTokens)/1e6)*r.OutputPerMTok
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		Anthropic: map[string]ModelRate{
			"claude-haiku-4-5-20251001": {
				Input: 1.00, Output: 5.00,
				CacheWriteMul: 1.25, CacheReadMul: 0.1,
			},
			"claude-sonnet-4-5-20250929": {
				Input: 3.00, Output: 15.00,
				CacheWriteMul: 1.25, CacheReadMul: 0.1,
			},
		},
		Perplexity: PerplexityRate{
			PerQuery:      0.008,
			PerDeepQuery:  0.012,
			InputPerMTok:  1.00,
			OutputPerMTok: 1.00,
		},
	}
}

// Meter accumulates spend per provider. It is safe for concurrent use.
type Meter struct {
	calc *Calculator

	mu     sync.Mutex
	totals map[string]float64
	calls  map[string]int
}

// NewMeter creates a Meter pricing calls with calc.
func NewMeter(calc *Calculator) *Meter {
	return &Meter{calc: calc, totals: make(map[string]float64), calls: make(map[string]int)}
}

// Calculator returns the meter's pricing.
func (m *Meter) Calculator() *Calculator { return m.calc }

// Add records one call of provider costing usd.
func (m *Meter) Add(provider string, usd float64) {
	m.mu.Lock()
	m.totals[provider] += usd
	m.calls[provider]++
	m.mu.Unlock()
}

// Total returns the spend across providers.
func (m *Meter) Total() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sum float64
	for _, v := range m.totals {
		sum += v
	}
	return sum
}

// Calls returns the number of calls recorded for provider.
func (m *Meter) Calls(provider string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[provider]
}
