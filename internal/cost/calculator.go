package cost

import "github.com/meridian-gems/gemscan/internal/config"

// Calculator computes USD cost for vision API usage from configured rates.
type Calculator struct {
	rates config.PricingConfig
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates config.PricingConfig) *Calculator {
	return &Calculator{rates: rates}
}

// Vision computes the cost of one vision call. Unknown models cost 0.
func (c *Calculator) Vision(model string, input, output, cacheWrite, cacheRead int64) float64 {
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

// DefaultRates returns the default pricing rates.
func DefaultRates() config.PricingConfig {
	return config.PricingConfig{
		Anthropic: map[string]config.ModelPricing{
			"claude-sonnet-4-5-20250929": {
				Input: 3.00, Output: 15.00,
				CacheWriteMul: 1.25, CacheReadMul: 0.1,
			},
			"claude-haiku-4-5-20251001": {
				Input: 0.80, Output: 4.00,
				CacheWriteMul: 1.25, CacheReadMul: 0.1,
			},
		},
	}
}
