package pipeline_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visualearn/visualearn/pkg/models"
	"github.com/visualearn/visualearn/pkg/pipeline"
)

type fakeGenerator struct {
	generateCalls int
	refineCalls   int
	generateErr   error
	refineErr     error
}

func (g *fakeGenerator) Generate(_ context.Context, _ *models.Plan) (*models.DiagramDocument, error) {
	g.generateCalls++
	if g.generateErr != nil {
		return nil, g.generateErr
	}

	return &models.DiagramDocument{Version: 0, Content: "<mxfile><mxCell/></mxfile>", CreatedAt: time.Now()}, nil
}

func (g *fakeGenerator) Refine(_ context.Context, doc *models.DiagramDocument, _ string) (*models.DiagramDocument, error) {
	g.refineCalls++
	if g.refineErr != nil {
		return nil, g.refineErr
	}

	return &models.DiagramDocument{Version: doc.Version + 1, Content: doc.Content, CreatedAt: time.Now()}, nil
}

type fakeReviewer struct {
	scores []int
	calls  int
	err    error
}

func (r *fakeReviewer) Review(_ context.Context, _ *models.DiagramDocument, _ *models.Plan, iteration int) (*models.ReviewVerdict, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}

	score := r.scores[r.calls-1]

	return &models.ReviewVerdict{
		Iteration:              iteration,
		Score:                  score,
		Approved:               score >= pipeline.HighScore,
		RefinementInstructions: []string{"add labels"},
	}, nil
}

func testPlan() *models.Plan {
	return &models.Plan{
		Concept:     "photosynthesis",
		DiagramType: models.DiagramTypeFlowchart,
		Components:  []string{"sunlight", "chlorophyll"},
	}
}

func testDocument() *models.DiagramDocument {
	return &models.DiagramDocument{Version: 0, Content: "<mxfile><mxCell/></mxfile>", CreatedAt: time.Now()}
}

func TestLoopControllerApprovesOnHighScore(t *testing.T) {
	t.Parallel()

	generator := &fakeGenerator{}
	reviewer := &fakeReviewer{scores: []int{95}}
	loop := pipeline.NewLoopController(generator, reviewer, slog.Default())

	result, err := loop.Run(context.Background(), testPlan(), testDocument())
	require.NoError(t, err)

	assert.Equal(t, pipeline.PhaseApproved, result.State.Phase)
	assert.Equal(t, 1, result.State.Iteration)
	assert.Equal(t, 95, result.FinalScore())
	assert.True(t, result.Approved())
	assert.Equal(t, 0, generator.refineCalls, "approval must stop the loop before any refinement")
}

func TestLoopControllerThresholdIsInclusive(t *testing.T) {
	t.Parallel()

	generator := &fakeGenerator{}
	reviewer := &fakeReviewer{scores: []int{pipeline.HighScore}}
	loop := pipeline.NewLoopController(generator, reviewer, slog.Default())

	result, err := loop.Run(context.Background(), testPlan(), testDocument())
	require.NoError(t, err)

	assert.Equal(t, pipeline.PhaseApproved, result.State.Phase)
	assert.Equal(t, 0, generator.refineCalls)
}

func TestLoopControllerAcceptsWithWarningAfterBudget(t *testing.T) {
	t.Parallel()

	generator := &fakeGenerator{}
	reviewer := &fakeReviewer{scores: []int{50, 50, 50}}
	loop := pipeline.NewLoopController(generator, reviewer, slog.Default())

	result, err := loop.Run(context.Background(), testPlan(), testDocument())
	require.NoError(t, err)

	assert.Equal(t, pipeline.PhaseAcceptedWithWarning, result.State.Phase)
	assert.Equal(t, pipeline.MaxIterations, result.State.Iteration)
	assert.Equal(t, 50, result.FinalScore())
	assert.False(t, result.Approved())

	// Exactly three reviews and two refinements: no refinement follows
	// the final review.
	assert.Equal(t, 3, reviewer.calls)
	assert.Equal(t, 2, generator.refineCalls)
	assert.Len(t, result.Verdicts, 3)
	assert.Len(t, result.Documents, 3)
	assert.Equal(t, 2, result.Document.Version)
}

func TestLoopControllerLateApproval(t *testing.T) {
	t.Parallel()

	generator := &fakeGenerator{}
	reviewer := &fakeReviewer{scores: []int{60, 75, 92}}
	loop := pipeline.NewLoopController(generator, reviewer, slog.Default())

	result, err := loop.Run(context.Background(), testPlan(), testDocument())
	require.NoError(t, err)

	assert.Equal(t, pipeline.PhaseApproved, result.State.Phase)
	assert.Equal(t, 3, result.State.Iteration)
	assert.Equal(t, 92, result.FinalScore())
	assert.Equal(t, 2, generator.refineCalls)
}

func TestLoopControllerReviewErrorFails(t *testing.T) {
	t.Parallel()

	generator := &fakeGenerator{}
	reviewer := &fakeReviewer{err: errors.New("review service unavailable")}
	loop := pipeline.NewLoopController(generator, reviewer, slog.Default())

	result, err := loop.Run(context.Background(), testPlan(), testDocument())
	require.Error(t, err)

	assert.Equal(t, pipeline.KindReviewFailed, pipeline.KindOf(err))
	assert.Equal(t, pipeline.PhaseFailed, result.State.Phase)
	assert.Equal(t, 0, generator.refineCalls)
}

func TestLoopControllerRefineErrorFails(t *testing.T) {
	t.Parallel()

	generator := &fakeGenerator{refineErr: errors.New("authoring service down")}
	reviewer := &fakeReviewer{scores: []int{40}}
	loop := pipeline.NewLoopController(generator, reviewer, slog.Default())

	result, err := loop.Run(context.Background(), testPlan(), testDocument())
	require.Error(t, err)

	assert.Equal(t, pipeline.KindGenerationFailed, pipeline.KindOf(err))
	assert.Equal(t, pipeline.PhaseFailed, result.State.Phase)
}
