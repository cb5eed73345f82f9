package llm

// BuildRawGradeJSONSchema returns a JSON-Schema (draft 2020-12 subset) as a
// generic map describing the grading service's per-question output. It is
// used locally to validate payloads before aggregation.
func BuildRawGradeJSONSchema() map[string]any {
	questionProps := map[string]any{
		"question_id":   map[string]any{"type": "string", "minLength": 1},
		"awarded_marks": map[string]any{"type": "number", "minimum": 0.0},
		"max_marks":     map[string]any{"type": "number", "exclusiveMinimum": 0.0},
		"remarks":       map[string]any{"type": "string"},
	}

	sectionSchema := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"questions": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"properties":           questionProps,
					"required":             []string{"question_id", "awarded_marks", "max_marks"},
				},
			},
		},
		"required": []string{"questions"},
	}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"sections": map[string]any{
				"type":                 "object",
				"minProperties":        1,
				"additionalProperties": sectionSchema,
			},
			"verdict": map[string]any{
				"type": "string",
				"enum": []string{"PASS", "FAIL"},
			},
		},
		"required": []string{"sections"},
	}
}
