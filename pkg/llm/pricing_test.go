package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCostUSDKnownModel(t *testing.T) {
	// 1M input + 1M output tokens of gemini-2.5-flash.
	got := CostUSD("gemini-2.5-flash", 1_000_000, 1_000_000)
	assert.InDelta(t, 0.30+2.50, got, 1e-9)
}

func TestCostUSDPrefixMatchesDatedRevision(t *testing.T) {
	exact := CostUSD("claude-sonnet-4", 10_000, 1_000)
	dated := CostUSD("claude-sonnet-4-5-20250929", 10_000, 1_000)
	assert.InDelta(t, exact, dated, 1e-12)
}

func TestCostUSDUnknownModelUsesConservativeDefault(t *testing.T) {
	got := CostUSD("mystery-model-9", 1_000_000, 1_000_000)
	assert.InDelta(t, defaultRate.InputPerMTok+defaultRate.OutputPerMTok, got, 1e-9)
}

func TestCostUSDZeroTokens(t *testing.T) {
	assert.Zero(t, CostUSD("gemini-2.5-flash", 0, 0))
}
