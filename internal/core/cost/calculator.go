// Package cost is the Cost Calculator: it turns token counts into a
// fixed-point USD amount, rounding half-up to six decimals so budget
// arithmetic never drifts.
package cost

import (
	"math/big"

	"github.com/amerfu/pllm-gateway/internal/models"
	"go.uber.org/zap"
)

const mtok = 1_000_000

// Result is a calculated cost together with the provenance of the
// pricing used, recorded on the UsageRecord for audit.
type Result struct {
	TotalMicros   models.Micros
	PricingSource string // "known" or "estimated"
}

type Calculator struct {
	logger *zap.Logger
}

func NewCalculator(logger *zap.Logger) *Calculator {
	return &Calculator{logger: logger}
}

// Calculate prices a request's token usage. Regular input tokens exclude
// cache-creation and cache-read tokens, since providers report "input"
// as the grand total including both.
func (c *Calculator) Calculate(provider, model string, inputTokens, outputTokens, cacheCreationTokens, cacheReadTokens int64) Result {
	regularInput := inputTokens - cacheCreationTokens - cacheReadTokens
	if regularInput < 0 {
		regularInput = 0
	}

	pricing, known := Lookup(provider, model)
	if !known {
		c.logger.Warn("pricing_missing: using conservative default rate",
			zap.String("provider", provider), zap.String("model", model))
		pricing = defaultUnknownPricing
		total := perMillion(regularInput+cacheCreationTokens+cacheReadTokens, pricing.InputPerMTok) +
			perMillion(outputTokens, pricing.OutputPerMTok)
		return Result{TotalMicros: total, PricingSource: "estimated"}
	}

	total := perMillion(regularInput, pricing.InputPerMTok) +
		perMillion(outputTokens, pricing.OutputPerMTok) +
		perMillion(cacheCreationTokens, pricing.CacheCreatePerMTok) +
		perMillion(cacheReadTokens, pricing.CacheReadPerMTok)

	return Result{TotalMicros: total, PricingSource: "known"}
}

// perMillion computes tokens/1_000_000 * pricePerMTok exactly using
// rational arithmetic, then rounds half-up to the nearest Micros unit
// (six decimal places of USD).
func perMillion(tokens int64, pricePerMTok models.Micros) models.Micros {
	if tokens == 0 || pricePerMTok == 0 {
		return 0
	}
	num := new(big.Int).Mul(big.NewInt(tokens), big.NewInt(int64(pricePerMTok)))
	rat := new(big.Rat).SetFrac(num, big.NewInt(mtok))
	return models.Micros(roundHalfUp(rat))
}

func roundHalfUp(r *big.Rat) int64 {
	neg := r.Sign() < 0
	if neg {
		r = new(big.Rat).Neg(r)
	}
	half := big.NewRat(1, 2)
	floor := new(big.Int).Quo(r.Num(), r.Denom())
	frac := new(big.Rat).Sub(r, new(big.Rat).SetInt(floor))
	if frac.Cmp(half) >= 0 {
		floor.Add(floor, big.NewInt(1))
	}
	result := floor.Int64()
	if neg {
		result = -result
	}
	return result
}
