package prompt

import (
	"fmt"
	"strings"
)

// enrichmentFieldOrder is the emission order requested from the model:
// style first for fast visual feedback.
var enrichmentFieldOrder = []string{
	"styleProfile", "grapeComposition", "drinkWindow", "criticScores",
	"tastingNotes", "foodPairings", "overview",
}

// EnrichmentFields returns the schema's top-level section names in order.
func EnrichmentFields() []string {
	out := make([]string, len(enrichmentFieldOrder))
	copy(out, enrichmentFieldOrder)
	return out
}

// EnrichmentSchema is the JSON schema for the seven enrichment sections.
func EnrichmentSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"styleProfile": map[string]any{
				"type":     "object",
				"nullable": true,
				"properties": map[string]any{
					"body":      map[string]any{"type": "string"},
					"tannin":    map[string]any{"type": "string"},
					"acidity":   map[string]any{"type": "string"},
					"sweetness": map[string]any{"type": "string"},
				},
			},
			"grapeComposition": map[string]any{
				"type":     "array",
				"nullable": true,
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"grape":      map[string]any{"type": "string"},
						"percentage": map[string]any{"type": "number"},
					},
				},
			},
			"drinkWindow": map[string]any{
				"type":     "object",
				"nullable": true,
				"properties": map[string]any{
					"start": map[string]any{"type": "integer"},
					"end":   map[string]any{"type": "integer"},
					"peak":  map[string]any{"type": "integer"},
				},
			},
			"tastingNotes": map[string]any{
				"type":     "object",
				"nullable": true,
				"properties": map[string]any{
					"nose":   map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"palate": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"finish": map[string]any{"type": "string"},
				},
			},
			"criticScores": map[string]any{
				"type":     "array",
				"nullable": true,
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"critic":  map[string]any{"type": "string"},
						"score":   map[string]any{"type": "number"},
						"vintage": map[string]any{"type": "string"},
					},
				},
			},
			"foodPairings": map[string]any{
				"type":     "array",
				"nullable": true,
				"items":    map[string]any{"type": "string"},
			},
			"overview": map[string]any{"type": "string", "nullable": true},
		},
		"propertyOrdering": enrichmentFieldOrder,
	}
}

// Enrichment builds the enrichment prompt for a confirmed wine. The route
// for this task enables web-search grounding.
func Enrichment(producer, wineName, vintage, wineType, region string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Provide sommelier notes for this wine:\n\nProducer: %s\nWine: %s\n", producer, wineName)
	if vintage != "" {
		fmt.Fprintf(&b, "Vintage: %s\n", vintage)
	}
	if wineType != "" {
		fmt.Fprintf(&b, "Type: %s\n", wineType)
	}
	if region != "" {
		fmt.Fprintf(&b, "Region: %s\n", region)
	}
	b.WriteString(`
Use web search to verify facts where possible. Fill only sections you have
real information for; null the rest. Grape percentages should sum to 100.
Critic scores are on a 0-100 scale. Drink window years must satisfy
start <= peak <= end.`)
	return b.String()
}

// ClarifyMatch asks which of the options a free-text user answer refers to.
func ClarifyMatch(kind, identified string, options []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `The user was asked to disambiguate a wine %s. We identified %q.
They could choose between:
`, kind, identified)
	for i, opt := range options {
		fmt.Fprintf(&b, "%d. %s\n", i+1, opt)
	}
	b.WriteString(`
Which option does the identified value correspond to? Respond with a single
JSON object and nothing else:
{"match": <option text or null>, "confidence": 0-100}`)
	return b.String()
}
