// Package review implements the review stage: scoring a diagram version
// against its plan via the completion service.
package review

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/visualearn/visualearn/pkg/completion"
	"github.com/visualearn/visualearn/pkg/models"
)

// markupPreviewLimit bounds how much markup is embedded in the review prompt.
const markupPreviewLimit = 4000

const promptTemplate = `You are an expert educational diagram reviewer. Assess the provided diagram XML against the planning specifications.

Planning Specifications:
- Concept: %s
- Diagram Type: %s
- Components Required: %s
- Education Level: %s

Diagram XML:
%s

Task: Review this diagram and provide:
1. A quality score 0-100 based on completeness, clarity, educational value, accuracy, and relationships
2. The concrete issues you found
3. Specific, actionable refinement instructions if the score is below 90

Respond ONLY with valid JSON in this exact structure (no markdown, no code blocks):
{
    "score": 0,
    "issues": ["issue1", "issue2"],
    "refinement_instructions": ["instruction1", "instruction2"]
}`

// Reviewer scores diagram documents. A malformed verdict is an error; a
// low-but-well-formed score is not.
type Reviewer struct {
	client    completion.Completer
	timeout   time.Duration
	highScore int
	logger    *slog.Logger
}

// New creates a reviewer bounded by the given per-call timeout. Scores at or
// above highScore approve the document.
func New(client completion.Completer, timeout time.Duration, highScore int, logger *slog.Logger) *Reviewer {
	return &Reviewer{
		client:    client,
		timeout:   timeout,
		highScore: highScore,
		logger:    logger,
	}
}

type verdictPayload struct {
	Score                  *int     `json:"score"`
	Issues                 []string `json:"issues"`
	RefinementInstructions []string `json:"refinement_instructions"`
}

// Review scores one document version against its plan.
func (r *Reviewer) Review(ctx context.Context, doc *models.DiagramDocument, plan *models.Plan, iteration int) (*models.ReviewVerdict, error) {
	if strings.TrimSpace(doc.Content) == "" {
		return nil, fmt.Errorf("diagram markup cannot be empty")
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	resp, err := r.client.Complete(ctx, completion.Request{
		Messages: []completion.Message{
			{Role: "user", Content: r.buildPrompt(doc, plan)},
		},
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("review timed out after %s: %w", r.timeout, err)
		}

		return nil, fmt.Errorf("review request failed: %w", err)
	}

	raw := completion.ExtractJSON(resp.Content)
	if raw == "" {
		return nil, fmt.Errorf("review response contains no JSON document")
	}

	var payload verdictPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("malformed review verdict: %w", err)
	}

	if payload.Score == nil {
		return nil, fmt.Errorf("review verdict is missing a score")
	}

	score := *payload.Score
	if score < 0 || score > 100 {
		return nil, fmt.Errorf("review score %d is outside 0-100", score)
	}

	verdict := &models.ReviewVerdict{
		Iteration:              iteration,
		Score:                  score,
		Approved:               score >= r.highScore,
		Issues:                 payload.Issues,
		RefinementInstructions: payload.RefinementInstructions,
	}

	r.logger.Info("review completed",
		"iteration", iteration,
		"score", verdict.Score,
		"approved", verdict.Approved)

	return verdict, nil
}

func (r *Reviewer) buildPrompt(doc *models.DiagramDocument, plan *models.Plan) string {
	markup := doc.Content
	if len(markup) > markupPreviewLimit {
		markup = markup[:markupPreviewLimit] + "..."
	}

	level := plan.EducationLevel
	if level == "" {
		level = "general audience"
	}

	return fmt.Sprintf(promptTemplate,
		plan.Concept,
		plan.DiagramType,
		strings.Join(plan.Components, ", "),
		level,
		markup,
	)
}
