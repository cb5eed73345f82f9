package llm

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/navaneethakrishnanms/paper-ai-evaluation/internal/models"
)

// ValidateJSONAgainstSchema validates "data" against "schemaMap".
func ValidateJSONAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}

// ParseRawGrade validates a grading payload against the raw grade schema and
// decodes it. Payloads that fail validation are rejected before any
// aggregation arithmetic runs.
func ParseRawGrade(data []byte) (*models.RawGrade, error) {
	if err := ValidateJSONAgainstSchema(BuildRawGradeJSONSchema(), data); err != nil {
		return nil, err
	}
	var raw models.RawGrade
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode raw grade: %w", err)
	}
	return &raw, nil
}
