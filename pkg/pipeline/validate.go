package pipeline

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/language"

	"github.com/visualearn/visualearn/pkg/models"
)

// maxTextLength bounds the concept text accepted for a run.
const maxTextLength = 1000

// ValidateRequest normalizes raw input into a ConceptRequest or rejects it.
// It is pure and synchronous; a rejection happens before any external call.
func ValidateRequest(text, lang, educationLevel string) (models.ConceptRequest, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return models.ConceptRequest{}, NewError(KindInputInvalid, "text cannot be empty", nil)
	}

	if utf8.RuneCountInString(trimmed) > maxTextLength {
		return models.ConceptRequest{}, NewError(KindInputInvalid,
			fmt.Sprintf("text exceeds maximum length of %d characters", maxTextLength), nil)
	}

	normalized := "en"

	if strings.TrimSpace(lang) != "" {
		tag, err := language.Parse(strings.TrimSpace(lang))
		if err != nil {
			return models.ConceptRequest{}, NewError(KindInputInvalid,
				fmt.Sprintf("unrecognized language tag %q", lang), err)
		}

		normalized = tag.String()
	}

	return models.ConceptRequest{
		Text:           trimmed,
		Language:       normalized,
		EducationLevel: strings.TrimSpace(educationLevel),
	}, nil
}
