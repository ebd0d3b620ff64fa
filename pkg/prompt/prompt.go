// Package prompt is the single source of truth for model prompts and the
// response schemas that constrain streaming output. Prompt text and schema
// must stay shape-compatible: the field detector emits exactly the schema's
// top-level properties.
package prompt

import (
	"fmt"
	"strings"

	"github.com/cellarist/sommelier/pkg/models"
)

// identificationFieldOrder is the emission order requested from the model.
// Confidence last, so the client can render fields before deciding on an
// action.
var identificationFieldOrder = []string{
	"producer", "wineName", "vintage", "region", "country", "wineType", "grapes", "confidence",
}

// IdentificationFields returns the schema's top-level field names in order.
func IdentificationFields() []string {
	out := make([]string, len(identificationFieldOrder))
	copy(out, identificationFieldOrder)
	return out
}

// IdentificationSchema is the JSON schema for identification responses.
func IdentificationSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"producer": map[string]any{"type": "string", "nullable": true},
			"wineName": map[string]any{"type": "string", "nullable": true},
			"vintage":  map[string]any{"type": "string", "nullable": true},
			"region":   map[string]any{"type": "string", "nullable": true},
			"country":  map[string]any{"type": "string", "nullable": true},
			"wineType": map[string]any{
				"type":     "string",
				"nullable": true,
				"enum":     []string{"Red", "White", "Rosé", "Sparkling", "Dessert", "Fortified"},
			},
			"grapes": map[string]any{
				"type":     "array",
				"nullable": true,
				"items":    map[string]any{"type": "string"},
			},
			"confidence": map[string]any{"type": "integer"},
		},
		"required":         []string{"confidence"},
		"propertyOrdering": identificationFieldOrder,
	}
}

// Tier1Stream is the compact streaming prompt. The response schema carries
// the structure, so the prompt stays minimal to cut time to first byte.
func Tier1Stream(text string) string {
	return fmt.Sprintf(`Identify this wine: %q

Fill every field you can recognize, null for the rest. Vintage is a year or "NV".
Confidence (0-100) must reflect how sure you are this is a real, specific wine,
not how many fields you filled.`, text)
}

// Tier1Full is the buffered fallback prompt, carrying the structure inline
// for models called without a response schema.
func Tier1Full(text string) string {
	return fmt.Sprintf(`You are a wine identification expert. Identify the wine described below.

Input: %q

Respond with a single JSON object and nothing else:
{"producer": string|null, "wineName": string|null, "vintage": string|null,
 "region": string|null, "country": string|null,
 "wineType": "Red"|"White"|"Rosé"|"Sparkling"|"Dessert"|"Fortified"|null,
 "grapes": [string]|null, "confidence": 0-100}

Vintage is a four-digit year or "NV" for non-vintage. Confidence must reflect
recognition of a real wine that exists, not plausibility of the filled fields.`, text)
}

// Tier15 is the deeper-reasoning prompt; the task route enables web-search
// grounding so the model can verify against real sources.
func Tier15(text, priorContext string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `You are a wine identification expert with web search available.
Identify the wine described below. Verify producer and wine name against real
sources before answering; do not invent wines.

Input: %q
`, text)
	if priorContext != "" {
		b.WriteString("\n")
		b.WriteString(priorContext)
		b.WriteString("\n")
	}
	b.WriteString(`
Respond with a single JSON object and nothing else:
{"producer": string|null, "wineName": string|null, "vintage": string|null,
 "region": string|null, "country": string|null,
 "wineType": "Red"|"White"|"Rosé"|"Sparkling"|"Dessert"|"Fortified"|null,
 "grapes": [string]|null, "confidence": 0-100}`)
	return b.String()
}

// Detailed is the tier 2/3 prompt with prior context from earlier tiers.
func Detailed(text, priorContext string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `You are a master sommelier. Carefully identify the wine described below.

Input: %q
`, text)
	if priorContext != "" {
		b.WriteString("\n")
		b.WriteString(priorContext)
		b.WriteString("\n")
	}
	b.WriteString(`
Consider appellation rules, producer portfolios, and label conventions.
Respond with a single JSON object and nothing else:
{"producer": string|null, "wineName": string|null, "vintage": string|null,
 "region": string|null, "country": string|null,
 "wineType": "Red"|"White"|"Rosé"|"Sparkling"|"Dessert"|"Fortified"|null,
 "grapes": [string]|null, "confidence": 0-100}`)
	return b.String()
}

// Vision is the Tier 1 label prompt. Framing it as transcription keeps the
// model anchored to what is actually printed on the label.
func Vision(supplementaryText string) string {
	var b strings.Builder
	b.WriteString(`Read the text on this wine label. Transcribe what is printed, then identify
the wine from the transcription. Prefer what the label says over what you
expect; null any field the label does not support.`)
	if supplementaryText != "" {
		fmt.Fprintf(&b, "\n\nThe user adds: %q", supplementaryText)
	}
	b.WriteString(`

Respond with a single JSON object and nothing else:
{"producer": string|null, "wineName": string|null, "vintage": string|null,
 "region": string|null, "country": string|null,
 "wineType": "Red"|"White"|"Rosé"|"Sparkling"|"Dessert"|"Fortified"|null,
 "grapes": [string]|null, "confidence": 0-100}`)
	return b.String()
}

// VisionVerify is the user-triggered re-examination prompt with web search.
func VisionVerify(priorContext, supplementaryText string) string {
	var b strings.Builder
	b.WriteString(`Re-examine this wine label carefully. Use web search to verify the producer
and wine against real sources. Read every piece of printed text, including
small print on the edges.`)
	if supplementaryText != "" {
		fmt.Fprintf(&b, "\n\nThe user adds: %q", supplementaryText)
	}
	if priorContext != "" {
		b.WriteString("\n\n")
		b.WriteString(priorContext)
	}
	b.WriteString(`

Respond with a single JSON object and nothing else:
{"producer": string|null, "wineName": string|null, "vintage": string|null,
 "region": string|null, "country": string|null,
 "wineType": "Red"|"White"|"Rosé"|"Sparkling"|"Dessert"|"Fortified"|null,
 "grapes": [string]|null, "confidence": 0-100}`)
	return b.String()
}

// PriorContext renders the previous tier's result, user-locked fields, and
// structured constraints for the next tier.
func PriorContext(prior *models.Identification, locked map[string]string, cons *models.Constraints) string {
	if prior == nil && len(locked) == 0 && cons == nil {
		return ""
	}
	var b strings.Builder
	if prior != nil {
		fmt.Fprintf(&b,
			"Previous attempt: Producer=%s, Wine=%s, Region=%s (confidence: %d%%). "+
				"Analyze more carefully and look for details missed.",
			orUnknown(prior.Producer), orUnknown(prior.WineName), orUnknown(prior.Region),
			prior.Confidence)
	}
	if len(locked) > 0 {
		b.WriteString("\nThe user confirmed these values; keep them unchanged:")
		for _, field := range identificationFieldOrder {
			if v, ok := locked[field]; ok {
				fmt.Fprintf(&b, " %s=%q", field, v)
			}
		}
	}
	if cons != nil {
		if cons.Country != "" {
			fmt.Fprintf(&b, "\nCountry must be: %s", cons.Country)
		}
		if cons.VintageFrom > 0 || cons.VintageTo > 0 {
			fmt.Fprintf(&b, "\nVintage range: %d-%d", cons.VintageFrom, cons.VintageTo)
		}
	}
	return b.String()
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
