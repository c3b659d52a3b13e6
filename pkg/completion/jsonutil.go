package completion

import (
	"regexp"
	"strings"
)

// Patterns for pulling a JSON document out of a completion response.
var (
	// jsonBlockPattern matches JSON inside markdown code fences: ```json { ... } ```
	jsonBlockPattern = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(\\{.*\\})\\s*```")
	// jsonObjectPattern matches any JSON object as a greedy fallback.
	jsonObjectPattern = regexp.MustCompile(`(?s)\{[\s\S]*\}`)
	// trailingCommaPattern matches trailing commas before ] or }.
	trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)
)

// ExtractJSON extracts a JSON object from a completion response. Models
// routinely wrap their output in markdown code fences or leave trailing
// commas behind; both are stripped. Returns "" when no object is found.
func ExtractJSON(content string) string {
	raw := ""
	if matches := jsonBlockPattern.FindStringSubmatch(content); len(matches) > 1 {
		raw = matches[1]
	} else if match := jsonObjectPattern.FindString(content); match != "" {
		raw = match
	}
	if raw == "" {
		return ""
	}

	raw = trailingCommaPattern.ReplaceAllString(raw, "$1")

	return strings.TrimSpace(raw)
}
