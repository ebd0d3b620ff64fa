package prompt

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cellarist/sommelier/pkg/models"
)

// The schema's top-level properties, the ordering hint, and the wire shape of
// the result struct must agree, or field detection silently degrades.
func TestIdentificationSchemaMatchesFieldOrder(t *testing.T) {
	schema := IdentificationSchema()
	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)

	order := IdentificationFields()
	require.Len(t, props, len(order))
	for _, field := range order {
		assert.Contains(t, props, field)
	}
	assert.Equal(t, order, schema["propertyOrdering"])
}

func TestIdentificationSchemaMatchesResultShape(t *testing.T) {
	payload, err := json.Marshal(models.Identification{
		Producer:   "Penfolds",
		WineName:   "Grange",
		Vintage:    "2016",
		Region:     "South Australia",
		Country:    "Australia",
		WineType:   models.WineTypeRed,
		Grapes:     []string{"Shiraz"},
		Confidence: 95,
	})
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(payload, &raw))

	props := IdentificationSchema()["properties"].(map[string]any)
	for key := range raw {
		assert.Contains(t, props, key, "result field %q missing from schema", key)
	}
}

func TestEnrichmentSchemaMatchesFieldOrder(t *testing.T) {
	schema := EnrichmentSchema()
	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)

	order := EnrichmentFields()
	require.Len(t, props, len(order))
	for _, field := range order {
		assert.Contains(t, props, field)
	}
	assert.Equal(t, "styleProfile", order[0])
}

func TestPriorContextRendersTemplate(t *testing.T) {
	ctx := PriorContext(&models.Identification{
		Producer:   "Penfolds",
		WineName:   "Grange",
		Region:     "South Australia",
		Confidence: 62,
	}, nil, nil)

	assert.Contains(t, ctx, "Previous attempt: Producer=Penfolds, Wine=Grange, Region=South Australia (confidence: 62%)")
	assert.Contains(t, ctx, "Analyze more carefully")
}

func TestPriorContextUnknownFields(t *testing.T) {
	ctx := PriorContext(&models.Identification{Confidence: 30}, nil, nil)
	assert.Contains(t, ctx, "Producer=unknown")
	assert.Contains(t, ctx, "Wine=unknown")
}

func TestPriorContextLockedFieldsAndConstraints(t *testing.T) {
	ctx := PriorContext(nil,
		map[string]string{"producer": "Vega Sicilia", "vintage": "2010"},
		&models.Constraints{Country: "Spain", VintageFrom: 2010, VintageTo: 2019})

	assert.Contains(t, ctx, `producer="Vega Sicilia"`)
	assert.Contains(t, ctx, `vintage="2010"`)
	assert.Contains(t, ctx, "Country must be: Spain")
	assert.Contains(t, ctx, "Vintage range: 2010-2019")
}

func TestPriorContextEmpty(t *testing.T) {
	assert.Empty(t, PriorContext(nil, nil, nil))
}

func TestTier1StreamStaysCompact(t *testing.T) {
	compact := Tier1Stream("Opus One 2018")
	full := Tier1Full("Opus One 2018")
	assert.Less(t, len(compact), len(full))
	assert.Contains(t, compact, "Opus One 2018")
}

func TestVisionPromptAnchorsToLabel(t *testing.T) {
	p := Vision("")
	assert.Contains(t, p, "Read the text on this wine label")

	withNote := Vision("bought in Burgundy")
	assert.Contains(t, withNote, "bought in Burgundy")
}

func TestClarifyMatchListsOptions(t *testing.T) {
	p := ClarifyMatch("region", "Pauillac", []string{"Bordeaux", "Burgundy"})
	assert.Contains(t, p, "1. Bordeaux")
	assert.Contains(t, p, "2. Burgundy")
	assert.Contains(t, p, `"Pauillac"`)
}
