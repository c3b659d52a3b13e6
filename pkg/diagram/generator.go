// Package diagram provides the generation adapter: one Generator interface
// with two interchangeable transports to the diagram-authoring service.
package diagram

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/visualearn/visualearn/pkg/models"
)

// Generator produces and refines diagram markup. Callers stay oblivious to
// which transport backs it; both enforce the same timeout and the same
// well-formedness check before accepting content.
type Generator interface {
	// Generate creates version 0 of the diagram from a plan.
	Generate(ctx context.Context, plan *models.Plan) (*models.DiagramDocument, error)

	// Refine produces the next document version from the prior one and
	// review feedback.
	Refine(ctx context.Context, doc *models.DiagramDocument, feedback string) (*models.DiagramDocument, error)
}

// CheckWellFormed verifies that content is structurally valid diagram
// markup: parseable XML rooted at a recognized element with at least one
// cell. Non-empty is not enough.
func CheckWellFormed(content string) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("diagram markup is empty")
	}

	decoder := xml.NewDecoder(strings.NewReader(content))

	var root string
	cells := 0

	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("diagram markup is not valid XML: %w", err)
		}

		start, ok := token.(xml.StartElement)
		if !ok {
			continue
		}

		if root == "" {
			root = start.Name.Local
		}
		if start.Name.Local == "mxCell" {
			cells++
		}
	}

	switch root {
	case "mxfile", "mxGraphModel":
	case "":
		return fmt.Errorf("diagram markup has no root element")
	default:
		return fmt.Errorf("unexpected diagram root element %q", root)
	}

	if cells == 0 {
		return fmt.Errorf("diagram markup contains no cells")
	}

	return nil
}

// newDocument wraps accepted markup in a versioned document.
func newDocument(version int, content string) (*models.DiagramDocument, error) {
	if err := CheckWellFormed(content); err != nil {
		return nil, err
	}

	return &models.DiagramDocument{
		Version:   version,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// generationPrompt builds the authoring-service instruction from a plan.
func generationPrompt(plan *models.Plan) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Create a COMPLETE educational diagram with ALL components and relationships for:\n\n")
	fmt.Fprintf(&b, "**Concept**: %s\n", plan.Concept)
	fmt.Fprintf(&b, "**Diagram Type**: %s\n\n", plan.DiagramType)

	fmt.Fprintf(&b, "**MUST INCLUDE All These Components** (%d total):\n", len(plan.Components))
	for _, c := range plan.Components {
		fmt.Fprintf(&b, "  - %s\n", c)
	}

	fmt.Fprintf(&b, "\n**MUST INCLUDE All These Relationships** (%d total):\n", len(plan.Relationships))
	for _, r := range plan.Relationships {
		fmt.Fprintf(&b, "  - %s -> %s: %s\n", r.From, r.To, r.Label)
	}

	if len(plan.KeyInsights) > 0 {
		b.WriteString("\n**Key Teaching Points**:\n")
		for _, insight := range plan.KeyInsights {
			fmt.Fprintf(&b, "  - %s\n", insight)
		}
	}

	if len(plan.SuccessCriteria) > 0 {
		b.WriteString("\n**Success Criteria**:\n")
		for _, criterion := range plan.SuccessCriteria {
			fmt.Fprintf(&b, "  - %s\n", criterion)
		}
	}

	fmt.Fprintf(&b, "\nUse clear, readable labels and return complete draw.io XML with proper structure.")

	return b.String()
}
