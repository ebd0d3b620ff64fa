package llm

// modelRate holds per-million-token pricing in USD.
type modelRate struct {
	InputPerMTok  float64
	OutputPerMTok float64
}

// defaultRate is a conservative fallback for models missing from the table,
// so unknown models over-count rather than under-count spend.
var defaultRate = modelRate{InputPerMTok: 5.0, OutputPerMTok: 25.0}

// modelRates is the per-model cost table. Prefix matching lets dated model
// revisions (e.g. "-20250514") share their family's rate.
var modelRates = map[string]modelRate{
	"gemini-2.5-flash":      {InputPerMTok: 0.30, OutputPerMTok: 2.50},
	"gemini-2.5-flash-lite": {InputPerMTok: 0.10, OutputPerMTok: 0.40},
	"gemini-2.5-pro":        {InputPerMTok: 1.25, OutputPerMTok: 10.00},
	"gemini-2.0-flash":      {InputPerMTok: 0.10, OutputPerMTok: 0.40},
	"claude-sonnet-4":       {InputPerMTok: 3.00, OutputPerMTok: 15.00},
	"claude-opus-4":         {InputPerMTok: 15.00, OutputPerMTok: 75.00},
	"claude-3-5-haiku":      {InputPerMTok: 0.80, OutputPerMTok: 4.00},
}

// CostUSD computes the dollar cost of one call from token counts.
func CostUSD(model string, inputTokens, outputTokens int) float64 {
	rate := rateFor(model)
	return (float64(inputTokens)*rate.InputPerMTok + float64(outputTokens)*rate.OutputPerMTok) / 1e6
}

func rateFor(model string) modelRate {
	if r, ok := modelRates[model]; ok {
		return r
	}
	// Longest-prefix match over the table.
	best := ""
	for name := range modelRates {
		if len(name) > len(best) && len(model) >= len(name) && model[:len(name)] == name {
			best = name
		}
	}
	if best != "" {
		return modelRates[best]
	}
	return defaultRate
}
