package identify

import (
	"encoding/json"
	"reflect"

	"github.com/cellarist/sommelier/pkg/models"
	"github.com/cellarist/sommelier/pkg/prompt"
)

// fieldChange is one top-level field that changed between tiers.
type fieldChange struct {
	Field string
	Value any
}

// diffFields returns the fields whose values differ between two results, in
// schema order for deterministic emission. Confidence is excluded; the
// caller emits it separately, always last.
func diffFields(old, new *models.Identification) []fieldChange {
	oldMap := resultMap(old)
	newMap := resultMap(new)

	var changes []fieldChange
	for _, field := range prompt.IdentificationFields() {
		if field == "confidence" {
			continue
		}
		ov, nv := oldMap[field], newMap[field]
		if !reflect.DeepEqual(ov, nv) {
			changes = append(changes, fieldChange{Field: field, Value: nv})
		}
	}
	return changes
}

func resultMap(r *models.Identification) map[string]any {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}
