// Package cost tracks and calculates API usage costs across providers.
package cost

// Rates holds per-provider pricing configuration.
type Rates struct {
	Anthropic map[string]ModelRate `yaml:"anthropic" mapstructure:"anthropic"`
	Gemini    map[string]ModelRate `yaml:"gemini" mapstructure:"gemini"`
	SerpAPI   SerpAPIRate          `yaml:"serpapi" mapstructure:"serpapi"`
}

// ModelRate holds per-model token pricing (per million tokens).
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
	CacheWriteMul float64 `yaml:"cache_write_mul" mapstructure:"cache_write_mul"`
	CacheReadMul  float64 `yaml:"cache_read_mul" mapstructure:"cache_read_mul"`
}

// SerpAPIRate holds per-query SerpAPI pricing, used when search.provider is
// "serpapi" instead of the free-tier Google Custom Search path.
type SerpAPIRate struct {
	PerQuery float64 `yaml:"per_query" mapstructure:"per_query"`
}

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Anthropic computes the cost for an Anthropic Messages API call.
func (c *Calculator) Anthropic(model string, input, output, cacheWrite, cacheRead int) float64 {
	return modelCost(c.rates.Anthropic, model, input, output, cacheWrite, cacheRead)
}

// Gemini computes the cost for a Gemini generateContent call.
func (c *Calculator) Gemini(model string, input, output int) float64 {
	return modelCost(c.rates.Gemini, model, input, output, 0, 0)
}

func modelCost(table map[string]ModelRate, model string, input, output, cacheWrite, cacheRead int) float64 {
	rate, ok := table[model]
	if !ok {
		return 0
	}

	inCost := (float64(input) / 1e6) * rate.Input
	outCost := (float64(output) / 1e6) * rate.Output
	cwCost := (float64(cacheWrite) / 1e6) * rate.Input * rate.CacheWriteMul
	crCost := (float64(cacheRead) / 1e6) * rate.Input * rate.CacheReadMul

	return inCost + outCost + cwCost + crCost
}

// SerpAPIQuery returns the flat cost per SerpAPI query.
func (c *Calculator) SerpAPIQuery() float64 {
	return c.rates.SerpAPI.PerQuery
}

// RatesFromConfig converts config pricing into cost rates, falling back
// to DefaultRates() for any zero-value fields.
func RatesFromConfig(cfg PricingConfig) Rates {
	defaults := DefaultRates()

	rates := Rates{
		Anthropic: make(map[string]ModelRate, len(defaults.Anthropic)),
		Gemini:    make(map[string]ModelRate, len(defaults.Gemini)),
		SerpAPI:   defaults.SerpAPI,
	}

	for k, v := range defaults.Anthropic {
		rates.Anthropic[k] = v
	}
	for k, v := range defaults.Gemini {
		rates.Gemini[k] = v
	}

	overrideTable(rates.Anthropic, cfg.Anthropic)
	overrideTable(rates.Gemini, cfg.Gemini)

	if cfg.SerpAPI.PerQuery > 0 {
		rates.SerpAPI.PerQuery = cfg.SerpAPI.PerQuery
	}

	return rates
}

func overrideTable(table map[string]ModelRate, overrides map[string]ModelPricing) {
	for model, mp := range overrides {
		r := table[model]
		if mp.Input > 0 {
			r.Input = mp.Input
		}
		if mp.Output > 0 {
			r.Output = mp.Output
		}
		table[model] = r
	}
}

// PricingConfig mirrors config.PricingConfig to avoid an import cycle.
// Used by RatesFromConfig to convert config types into cost types.
type PricingConfig struct {
	Anthropic map[string]ModelPricing
	Gemini    map[string]ModelPricing
	SerpAPI   SerpAPIPricing
}

// ModelPricing mirrors config.ModelPricing.
type ModelPricing struct {
	Input  float64
	Output float64
}

// SerpAPIPricing mirrors config.SerpAPIPricing.
type SerpAPIPricing struct {
	PerQuery float64
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		Anthropic: map[string]ModelRate{
			"claude-haiku-4-5": {
				Input: 0.80, Output: 4.00,
				CacheWriteMul: 1.25, CacheReadMul: 0.1,
			},
			"claude-sonnet-4-5": {
				Input: 3.00, Output: 15.00,
				CacheWriteMul: 1.25, CacheReadMul: 0.1,
			},
		},
		Gemini: map[string]ModelRate{
			"gemini-2.5-flash": {Input: 0.30, Output: 2.50},
			"gemini-2.5-pro":   {Input: 1.25, Output: 10.00},
		},
		SerpAPI: SerpAPIRate{PerQuery: 0.015},
	}
}
