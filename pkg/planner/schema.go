package planner

// planSchema is the JSON Schema every plan document must satisfy before it
// is decoded. Validation failures report the first offending key instead of
// substituting defaults.
const planSchema = `{
	"type": "object",
	"required": ["concept", "diagram_type", "components", "relationships", "success_criteria", "key_insights"],
	"properties": {
		"concept": {"type": "string", "minLength": 1},
		"diagram_type": {"type": "string", "enum": ["flowchart", "mindmap", "sequence", "hierarchy"]},
		"components": {
			"type": "array",
			"items": {"type": "string", "minLength": 1},
			"minItems": 1
		},
		"relationships": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["from", "to"],
				"properties": {
					"from": {"type": "string", "minLength": 1},
					"to": {"type": "string", "minLength": 1},
					"label": {"type": "string"}
				}
			}
		},
		"success_criteria": {"type": "array", "items": {"type": "string"}},
		"key_insights": {"type": "array", "items": {"type": "string"}}
	}
}`
