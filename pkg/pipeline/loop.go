package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/visualearn/visualearn/pkg/models"
)

// Quality-gate constants for the refinement loop.
const (
	// MaxIterations bounds the number of review/refine round-trips.
	MaxIterations = 3

	// HighScore approves a document immediately (inclusive).
	HighScore = 90

	// MinAcceptableScore is informational only; it never gates acceptance
	// on the final iteration.
	MinAcceptableScore = 70
)

// LoopPhase tags the refinement loop state.
type LoopPhase string

const (
	PhaseIterating           LoopPhase = "iterating"
	PhaseApproved            LoopPhase = "approved"
	PhaseAcceptedWithWarning LoopPhase = "accepted_with_warning"
	PhaseFailed              LoopPhase = "failed"
)

// LoopState is the explicit state of the refinement loop, threaded through
// the orchestrator rather than recovered from ambient counters.
type LoopState struct {
	Phase     LoopPhase
	Iteration int
}

// LoopResult is the terminal outcome of one refinement loop run.
type LoopResult struct {
	// Document is the accepted document version.
	Document *models.DiagramDocument

	// Documents retains every version for diagnostics, oldest first.
	Documents []*models.DiagramDocument

	// Verdicts is the full ordered review history.
	Verdicts []*models.ReviewVerdict

	State LoopState
}

// FinalScore returns the last verdict's score.
func (r *LoopResult) FinalScore() int {
	if len(r.Verdicts) == 0 {
		return 0
	}

	return r.Verdicts[len(r.Verdicts)-1].Score
}

// Approved reports whether the loop ended in approval.
func (r *LoopResult) Approved() bool {
	return r.State.Phase == PhaseApproved
}

// LoopController drives the bounded generate/review cycle to a terminal
// state. It never hard-fails on a low-but-well-formed score: exhausting the
// iteration budget yields AcceptedWithWarning, a success. Every error inside
// the loop (a timeout, a malformed verdict, a malformed refined document)
// goes straight to Failed.
type LoopController struct {
	generator Generator
	reviewer  Reviewer
	logger    *slog.Logger
}

// NewLoopController creates the refinement loop controller.
func NewLoopController(generator Generator, reviewer Reviewer, logger *slog.Logger) *LoopController {
	return &LoopController{
		generator: generator,
		reviewer:  reviewer,
		logger:    logger,
	}
}

// Run iterates review and refinement on doc until a terminal state.
func (l *LoopController) Run(ctx context.Context, plan *models.Plan, doc *models.DiagramDocument) (*LoopResult, error) {
	result := &LoopResult{
		Document:  doc,
		Documents: []*models.DiagramDocument{doc},
		State:     LoopState{Phase: PhaseIterating, Iteration: 1},
	}

	for k := 1; k <= MaxIterations; k++ {
		result.State = LoopState{Phase: PhaseIterating, Iteration: k}

		verdict, err := l.reviewer.Review(ctx, result.Document, plan, k)
		if err != nil {
			result.State = LoopState{Phase: PhaseFailed, Iteration: k}
			return result, NewError(KindReviewFailed, "diagram review failed", fmt.Errorf("iteration %d: %w", k, err))
		}

		result.Verdicts = append(result.Verdicts, verdict)

		if verdict.Score >= HighScore {
			result.State = LoopState{Phase: PhaseApproved, Iteration: k}
			l.logger.Info("diagram approved", "iteration", k, "score", verdict.Score)

			return result, nil
		}

		if k == MaxIterations {
			break
		}

		feedback := joinInstructions(verdict)

		refined, err := l.generator.Refine(ctx, result.Document, feedback)
		if err != nil {
			result.State = LoopState{Phase: PhaseFailed, Iteration: k}
			return result, NewError(KindGenerationFailed, "diagram refinement failed", fmt.Errorf("iteration %d: %w", k, err))
		}

		result.Document = refined
		result.Documents = append(result.Documents, refined)

		l.logger.Info("diagram refined", "iteration", k, "score", verdict.Score, "version", refined.Version)
	}

	// Iteration budget exhausted below the approval threshold: keep the
	// last document and report the run as successful but unapproved.
	result.State = LoopState{Phase: PhaseAcceptedWithWarning, Iteration: MaxIterations}

	l.logger.Warn("iteration budget exhausted, accepting diagram with warning",
		"score", result.FinalScore(),
		"min_acceptable", MinAcceptableScore)

	return result, nil
}

func joinInstructions(verdict *models.ReviewVerdict) string {
	feedback := ""
	for i, instruction := range verdict.RefinementInstructions {
		if i > 0 {
			feedback += " "
		}

		feedback += instruction
	}

	if feedback == "" {
		feedback = "Improve completeness and clarity of the diagram."
	}

	return feedback
}
