package identify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cellarist/sommelier/pkg/models"
)

func TestParseConstraintsCountry(t *testing.T) {
	cons := ParseConstraints("The country must be: France, not Italy")
	require.NotNil(t, cons)
	assert.Equal(t, "France", cons.Country)
}

func TestParseConstraintsMultiWordCountry(t *testing.T) {
	cons := ParseConstraints("country is New Zealand")
	require.NotNil(t, cons)
	assert.Equal(t, "New Zealand", cons.Country)
}

func TestParseConstraintsVintageRange(t *testing.T) {
	for _, text := range []string{
		"Vintage range: 2010-2019",
		"vintage between 2010 and 2019",
		"vintage 2010 to 2019",
	} {
		cons := ParseConstraints(text)
		require.NotNil(t, cons, text)
		assert.Equal(t, 2010, cons.VintageFrom, text)
		assert.Equal(t, 2019, cons.VintageTo, text)
	}
}

func TestParseConstraintsSingleVintage(t *testing.T) {
	cons := ParseConstraints("the vintage is 2015")
	require.NotNil(t, cons)
	assert.Equal(t, 2015, cons.VintageFrom)
	assert.Equal(t, 2015, cons.VintageTo)
}

func TestParseConstraintsCombined(t *testing.T) {
	cons := ParseConstraints("Country must be Spain and vintage range 2015-2018")
	require.NotNil(t, cons)
	assert.Equal(t, "Spain", cons.Country)
	assert.Equal(t, 2015, cons.VintageFrom)
}

func TestParseConstraintsNothingRecognized(t *testing.T) {
	assert.Nil(t, ParseConstraints("it was delicious"))
	assert.Nil(t, ParseConstraints(""))
}

func TestDiffFieldsDeterministicOrder(t *testing.T) {
	old := &models.Identification{Producer: "Penfolds", Confidence: 60}
	refreshed := &models.Identification{
		Producer: "Penfolds", WineName: "Grange", Vintage: "2016",
		Region: "South Australia", Confidence: 85,
	}

	changes := diffFields(old, refreshed)
	var fields []string
	for _, c := range changes {
		fields = append(fields, c.Field)
	}
	assert.Equal(t, []string{"wineName", "vintage", "region"}, fields)
}

func TestDiffFieldsNoChanges(t *testing.T) {
	r := &models.Identification{Producer: "P", WineName: "W", Confidence: 50}
	same := *r
	same.Confidence = 90
	assert.Empty(t, diffFields(r, &same))
}
