package cost

import (
	"testing"

	"github.com/amerfu/pllm-gateway/internal/models"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestCalculateKnownModel(t *testing.T) {
	c := NewCalculator(zap.NewNop())
	result := c.Calculate("anthropic", "claude-sonnet-4", 1_000_000, 1_000_000, 0, 0)

	assert.Equal(t, "known", result.PricingSource)
	assert.Equal(t, models.MicrosFromUSD(3.00+15.00), result.TotalMicros)
}

func TestCalculateExcludesCacheTokensFromRegularInput(t *testing.T) {
	c := NewCalculator(zap.NewNop())
	// input_tokens is the grand total including cache creation/read per
	// provider semantics; regular input must net those out.
	result := c.Calculate("anthropic", "claude-sonnet-4", 1_000_000, 0, 400_000, 200_000)

	regularInput := int64(400_000)
	expectedInput := models.Micros(int64(float64(regularInput) / 1_000_000 * 3.00 * 1_000_000))
	expectedCacheCreate := models.Micros(int64(float64(400_000) / 1_000_000 * 3.75 * 1_000_000))
	expectedCacheRead := models.Micros(int64(float64(200_000) / 1_000_000 * 0.30 * 1_000_000))
	assert.Equal(t, expectedInput+expectedCacheCreate+expectedCacheRead, result.TotalMicros)
}

func TestCalculateUnknownModelUsesConservativeDefault(t *testing.T) {
	c := NewCalculator(zap.NewNop())
	result := c.Calculate("mystery", "model-x", 1_000_000, 1_000_000, 0, 0)

	assert.Equal(t, "estimated", result.PricingSource)
	assert.Equal(t, models.MicrosFromUSD(3.00+15.00), result.TotalMicros)
}

func TestCalculateSingleTokenIsExactToSixDecimals(t *testing.T) {
	c := NewCalculator(zap.NewNop())
	// 1 token at $3/MTok = 0.000003 USD, already exact to six decimals.
	result := c.Calculate("anthropic", "claude-sonnet-4", 1, 0, 0, 0)
	assert.Equal(t, models.Micros(3), result.TotalMicros)
}

func TestCalculateZeroTokensIsZeroCost(t *testing.T) {
	c := NewCalculator(zap.NewNop())
	result := c.Calculate("anthropic", "claude-sonnet-4", 0, 0, 0, 0)
	assert.Equal(t, models.Micros(0), result.TotalMicros)
}
