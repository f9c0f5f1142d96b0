package cost

import (
	"strings"

	"github.com/amerfu/pllm-gateway/internal/models"
)

// Pricing is a model's per-million-token rate card, expressed in Micros
// so the pricing table itself never touches a float.
type Pricing struct {
	InputPerMTok        models.Micros
	OutputPerMTok       models.Micros
	CacheCreatePerMTok  models.Micros
	CacheReadPerMTok    models.Micros
}

// defaultUnknownPricing is the conservative estimate applied to any
// (provider, model) pair the table doesn't recognize: $3/MTok input,
// $15/MTok output, no cache discount.
var defaultUnknownPricing = Pricing{
	InputPerMTok:  models.MicrosFromUSD(3.00),
	OutputPerMTok: models.MicrosFromUSD(15.00),
}

// table is a static seed of known provider/model pricing. Register adds
// or overrides entries in the same table the hot path reads.
var table = map[string]Pricing{
	"anthropic:claude-opus-4": {
		InputPerMTok: models.MicrosFromUSD(15.00), OutputPerMTok: models.MicrosFromUSD(75.00),
		CacheCreatePerMTok: models.MicrosFromUSD(18.75), CacheReadPerMTok: models.MicrosFromUSD(1.50),
	},
	"anthropic:claude-sonnet-4": {
		InputPerMTok: models.MicrosFromUSD(3.00), OutputPerMTok: models.MicrosFromUSD(15.00),
		CacheCreatePerMTok: models.MicrosFromUSD(3.75), CacheReadPerMTok: models.MicrosFromUSD(0.30),
	},
	"anthropic:claude-haiku": {
		InputPerMTok: models.MicrosFromUSD(0.80), OutputPerMTok: models.MicrosFromUSD(4.00),
		CacheCreatePerMTok: models.MicrosFromUSD(1.00), CacheReadPerMTok: models.MicrosFromUSD(0.08),
	},
	"openai:gpt-4o": {
		InputPerMTok: models.MicrosFromUSD(2.50), OutputPerMTok: models.MicrosFromUSD(10.00),
		CacheReadPerMTok: models.MicrosFromUSD(1.25),
	},
	"openai:gpt-4o-mini": {
		InputPerMTok: models.MicrosFromUSD(0.15), OutputPerMTok: models.MicrosFromUSD(0.60),
		CacheReadPerMTok: models.MicrosFromUSD(0.075),
	},
	"google:gemini-1.5-pro": {
		InputPerMTok: models.MicrosFromUSD(1.25), OutputPerMTok: models.MicrosFromUSD(5.00),
	},
	"google:gemini-1.5-flash": {
		InputPerMTok: models.MicrosFromUSD(0.075), OutputPerMTok: models.MicrosFromUSD(0.30),
	},
}

// Lookup returns a model's pricing and whether it was found. It tries the
// exact (provider, model) key first, then falls back to an entry of any
// provider with the same model name.
func Lookup(provider, model string) (Pricing, bool) {
	p, ok := table[provider+":"+model]
	if ok {
		return p, true
	}
	for key, pricing := range table {
		if strings.HasSuffix(key, ":"+model) {
			return pricing, true
		}
	}
	return Pricing{}, false
}

// Register adds or overrides a model's pricing in the table Lookup reads.
func Register(provider, model string, p Pricing) {
	table[provider+":"+model] = p
}

// PriceBook implements budget.PricingLookup and routing.PricingLookup
// for cheapest-target comparisons: it resolves a bare model name against
// every registered provider.
type PriceBook struct{}

func (PriceBook) EstimatedCostPerMillionInput(model string) float64 {
	for key, p := range table {
		if strings.HasSuffix(key, ":"+model) {
			return p.InputPerMTok.USD()
		}
	}
	return defaultUnknownPricing.InputPerMTok.USD()
}
