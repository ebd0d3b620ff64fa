package identify

import (
	"encoding/json"
	"fmt"

	"github.com/cellarist/sommelier/pkg/llm"
	"github.com/cellarist/sommelier/pkg/models"
)

// parsePayload parses accumulated model text into a field map, tolerating
// code fences and near-valid JSON.
func parsePayload(content string) (map[string]any, error) {
	d := llm.NewFieldDetector(nil)
	d.Feed(content)
	fields, ok := d.TryParseComplete()
	if !ok {
		return nil, fmt.Errorf("content is not a JSON object")
	}
	return fields, nil
}

// parseIdentification parses model output into an identification result.
// Confidence is clamped to [0,100].
func parseIdentification(content string) (*models.Identification, error) {
	fields, err := parsePayload(content)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize fields: %w", err)
	}
	var result models.Identification
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("fields do not form an identification: %w", err)
	}

	if result.Confidence < 0 {
		result.Confidence = 0
	}
	if result.Confidence > 100 {
		result.Confidence = 100
	}
	return &result, nil
}

func intField(fields map[string]any, key string) int {
	switch v := fields[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}
