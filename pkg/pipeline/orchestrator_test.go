package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visualearn/visualearn/pkg/models"
	"github.com/visualearn/visualearn/pkg/pipeline"
)

type fakePlanner struct {
	calls int
	err   error
}

func (p *fakePlanner) Plan(_ context.Context, req models.ConceptRequest) (*models.Plan, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}

	return &models.Plan{
		Concept:     req.Text,
		DiagramType: models.DiagramTypeFlowchart,
		Components:  []string{"a", "b"},
		KeyInsights: []string{"a leads to b"},
	}, nil
}

type fakeRenderer struct {
	calls int
	err   error
}

func (r *fakeRenderer) RenderAll(_ context.Context, _ *models.DiagramDocument, formats []string) (map[string][]byte, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}

	images := make(map[string][]byte, len(formats))
	for _, format := range formats {
		images[format] = []byte("<svg>rendered</svg>")
	}

	return images, nil
}

type fakeStore struct {
	mu        sync.Mutex
	persisted []models.ArtifactHandle
	deleted   []string
	failAfter int // Persist fails once this many artifacts exist; 0 disables
}

func (s *fakeStore) Persist(_ context.Context, content []byte, format string) (models.ArtifactHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failAfter > 0 && len(s.persisted) >= s.failAfter {
		return models.ArtifactHandle{}, errors.New("disk full")
	}

	handle := models.ArtifactHandle{
		ID:        fmt.Sprintf("artifact-%d", len(s.persisted)),
		Format:    format,
		CreatedAt: time.Now(),
		SizeBytes: int64(len(content)),
	}
	s.persisted = append(s.persisted, handle)

	return handle, nil
}

func (s *fakeStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deleted = append(s.deleted, id)

	return nil
}

type collaborators struct {
	planner   *fakePlanner
	generator *fakeGenerator
	reviewer  *fakeReviewer
	renderer  *fakeRenderer
	store     *fakeStore
}

func newOrchestrator(t *testing.T, c collaborators, cfg pipeline.Config) *pipeline.Orchestrator {
	t.Helper()

	return pipeline.NewOrchestrator(c.planner, c.generator, c.reviewer, c.renderer, c.store, cfg, slog.Default())
}

func TestOrchestratorHappyPath(t *testing.T) {
	t.Parallel()

	c := collaborators{
		planner:   &fakePlanner{},
		generator: &fakeGenerator{},
		reviewer:  &fakeReviewer{scores: []int{95}},
		renderer:  &fakeRenderer{},
		store:     &fakeStore{},
	}
	orchestrator := newOrchestrator(t, c, pipeline.Config{})

	var events []pipeline.ProgressEvent

	result, err := orchestrator.Run(context.Background(), "photosynthesis", "en", "", func(e pipeline.ProgressEvent) {
		events = append(events, e)
	})
	require.NoError(t, err)

	assert.Contains(t, result.Explanation, "photosynthesis")
	assert.Equal(t, models.DiagramTypeFlowchart, result.Plan.DiagramType)
	assert.Equal(t, "<svg>rendered</svg>", string(result.Images[models.FormatSVG]))
	assert.True(t, result.Metadata.Approved)
	assert.False(t, result.Metadata.Degraded)
	assert.Equal(t, 95, result.Metadata.FinalScore)
	assert.Equal(t, 1, result.Metadata.IterationCount)

	// Diagram markup plus one image.
	assert.Len(t, result.Handles, 2)
	assert.Empty(t, c.store.deleted)

	for _, stage := range []string{models.StagePlanning, models.StageGeneration, models.StageReview, models.StageConversion, models.StageStorage} {
		assert.Contains(t, result.Metadata.StageDurations, stage)
	}

	require.NotEmpty(t, events)
	assert.Equal(t, models.StagePlanning, events[0].Stage)
	assert.Equal(t, models.StageStorage, events[len(events)-1].Stage)
}

func TestOrchestratorRejectsInvalidInputBeforeAnyCall(t *testing.T) {
	t.Parallel()

	c := collaborators{
		planner:   &fakePlanner{},
		generator: &fakeGenerator{},
		reviewer:  &fakeReviewer{scores: []int{95}},
		renderer:  &fakeRenderer{},
		store:     &fakeStore{},
	}
	orchestrator := newOrchestrator(t, c, pipeline.Config{})

	_, err := orchestrator.Run(context.Background(), "   ", "", "", nil)
	require.Error(t, err)

	assert.Equal(t, pipeline.KindInputInvalid, pipeline.KindOf(err))
	assert.Equal(t, 0, c.planner.calls)
	assert.Equal(t, 0, c.generator.generateCalls)
	assert.Equal(t, 0, c.renderer.calls)
	assert.Empty(t, c.store.persisted)
}

func TestOrchestratorPlanningFailure(t *testing.T) {
	t.Parallel()

	c := collaborators{
		planner:   &fakePlanner{err: errors.New("model unavailable")},
		generator: &fakeGenerator{},
		reviewer:  &fakeReviewer{scores: []int{95}},
		renderer:  &fakeRenderer{},
		store:     &fakeStore{},
	}
	orchestrator := newOrchestrator(t, c, pipeline.Config{})

	_, err := orchestrator.Run(context.Background(), "gravity", "", "", nil)
	require.Error(t, err)

	assert.Equal(t, pipeline.KindPlanningFailed, pipeline.KindOf(err))
	assert.Equal(t, "concept analysis failed", pipeline.MessageOf(err))
	assert.Equal(t, 0, c.generator.generateCalls)
}

func TestOrchestratorReviewFailure(t *testing.T) {
	t.Parallel()

	c := collaborators{
		planner:   &fakePlanner{},
		generator: &fakeGenerator{},
		reviewer:  &fakeReviewer{err: errors.New("verdict truncated")},
		renderer:  &fakeRenderer{},
		store:     &fakeStore{},
	}
	orchestrator := newOrchestrator(t, c, pipeline.Config{})

	_, err := orchestrator.Run(context.Background(), "gravity", "", "", nil)
	require.Error(t, err)

	assert.Equal(t, pipeline.KindReviewFailed, pipeline.KindOf(err))
	assert.Equal(t, 0, c.renderer.calls)
	assert.Empty(t, c.store.persisted)
}

func TestOrchestratorRenderFailureWithoutFallback(t *testing.T) {
	t.Parallel()

	c := collaborators{
		planner:   &fakePlanner{},
		generator: &fakeGenerator{},
		reviewer:  &fakeReviewer{scores: []int{95}},
		renderer:  &fakeRenderer{err: errors.New("renderer down")},
		store:     &fakeStore{},
	}
	orchestrator := newOrchestrator(t, c, pipeline.Config{})

	_, err := orchestrator.Run(context.Background(), "gravity", "", "", nil)
	require.Error(t, err)

	assert.Equal(t, pipeline.KindConversionFailed, pipeline.KindOf(err))
	assert.Empty(t, c.store.persisted)
}

func TestOrchestratorRenderFailureWithFallback(t *testing.T) {
	t.Parallel()

	c := collaborators{
		planner:   &fakePlanner{},
		generator: &fakeGenerator{},
		reviewer:  &fakeReviewer{scores: []int{95}},
		renderer:  &fakeRenderer{err: errors.New("renderer down")},
		store:     &fakeStore{},
	}
	orchestrator := newOrchestrator(t, c, pipeline.Config{RenderFallback: true})

	result, err := orchestrator.Run(context.Background(), "gravity", "", "", nil)
	require.NoError(t, err)

	assert.True(t, result.Metadata.Degraded)
	assert.Contains(t, string(result.Images[models.FormatSVG]), "<svg")
	assert.Len(t, result.Handles, 2)
}

func TestOrchestratorStorageFailureCleansUp(t *testing.T) {
	t.Parallel()

	c := collaborators{
		planner:   &fakePlanner{},
		generator: &fakeGenerator{},
		reviewer:  &fakeReviewer{scores: []int{95}},
		renderer:  &fakeRenderer{},
		store:     &fakeStore{failAfter: 1},
	}
	orchestrator := newOrchestrator(t, c, pipeline.Config{})

	_, err := orchestrator.Run(context.Background(), "gravity", "", "", nil)
	require.Error(t, err)

	assert.Equal(t, pipeline.KindStorageFailed, pipeline.KindOf(err))

	// The markup persisted before the image failed; it must be deleted.
	require.Len(t, c.store.persisted, 1)
	assert.Equal(t, []string{c.store.persisted[0].ID}, c.store.deleted)
}

func TestOrchestratorRunTimeout(t *testing.T) {
	t.Parallel()

	slowPlanner := &slowFakePlanner{delay: 200 * time.Millisecond}
	c := collaborators{
		planner:   &fakePlanner{},
		generator: &fakeGenerator{},
		reviewer:  &fakeReviewer{scores: []int{95}},
		renderer:  &fakeRenderer{},
		store:     &fakeStore{},
	}
	orchestrator := pipeline.NewOrchestrator(slowPlanner, c.generator, c.reviewer, c.renderer, c.store, pipeline.Config{
		RunTimeout: 20 * time.Millisecond,
	}, slog.Default())

	_, err := orchestrator.Run(context.Background(), "gravity", "", "", nil)
	require.Error(t, err)

	assert.Equal(t, pipeline.KindPlanningFailed, pipeline.KindOf(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type slowFakePlanner struct {
	delay time.Duration
}

func (p *slowFakePlanner) Plan(ctx context.Context, _ models.ConceptRequest) (*models.Plan, error) {
	select {
	case <-time.After(p.delay):
		return nil, errors.New("should have been cancelled")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestOrchestratorUnapprovedRunStillSucceeds(t *testing.T) {
	t.Parallel()

	c := collaborators{
		planner:   &fakePlanner{},
		generator: &fakeGenerator{},
		reviewer:  &fakeReviewer{scores: []int{50, 55, 60}},
		renderer:  &fakeRenderer{},
		store:     &fakeStore{},
	}
	orchestrator := newOrchestrator(t, c, pipeline.Config{})

	result, err := orchestrator.Run(context.Background(), "gravity", "", "", nil)
	require.NoError(t, err)

	assert.False(t, result.Metadata.Approved)
	assert.Equal(t, 60, result.Metadata.FinalScore)
	assert.Equal(t, pipeline.MaxIterations, result.Metadata.IterationCount)
}
