package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/visualearn/visualearn/pkg/models"
	"github.com/visualearn/visualearn/pkg/otelhelper"
	"github.com/visualearn/visualearn/pkg/render"
)

// Planner turns a validated request into a plan.
type Planner interface {
	Plan(ctx context.Context, req models.ConceptRequest) (*models.Plan, error)
}

// Generator produces and refines diagram documents.
type Generator interface {
	Generate(ctx context.Context, plan *models.Plan) (*models.DiagramDocument, error)
	Refine(ctx context.Context, doc *models.DiagramDocument, feedback string) (*models.DiagramDocument, error)
}

// Reviewer scores a document version against its plan.
type Reviewer interface {
	Review(ctx context.Context, doc *models.DiagramDocument, plan *models.Plan, iteration int) (*models.ReviewVerdict, error)
}

// Renderer converts the final document into image bytes per format.
type Renderer interface {
	RenderAll(ctx context.Context, doc *models.DiagramDocument, formats []string) (map[string][]byte, error)
}

// ArtifactStore persists and deletes run artifacts.
type ArtifactStore interface {
	Persist(ctx context.Context, content []byte, format string) (models.ArtifactHandle, error)
	Delete(ctx context.Context, id string) error
}

// ProgressEvent reports pipeline progress for streaming callers.
type ProgressEvent struct {
	Stage          string  `json:"stage"`
	StatusText     string  `json:"status_text"`
	Progress       float64 `json:"progress"` // 0-100
	ElapsedSeconds float64 `json:"elapsed_seconds"`
}

// ProgressFunc receives ordered progress events during a run. It may be nil.
type ProgressFunc func(ProgressEvent)

// Result is the complete outcome of a successful run. A run either produces
// a fully populated Result or fails entirely; there is no partial success.
type Result struct {
	Explanation string
	Plan        *models.Plan
	Document    *models.DiagramDocument
	Verdicts    []*models.ReviewVerdict
	Images      map[string][]byte
	Handles     []models.ArtifactHandle
	Metadata    models.RunMetadata
}

// Config holds the orchestrator's run-level settings.
type Config struct {
	// RunTimeout is the overall per-run deadline. Exceeding it cancels the
	// in-flight stage call.
	RunTimeout time.Duration

	// ImageFormats lists the output image formats to render.
	ImageFormats []string

	// RenderFallback substitutes a placeholder image when the rendering
	// service fails, marking the run as degraded, instead of failing it.
	RenderFallback bool
}

// Orchestrator sequences the pipeline stages and owns run-level concerns:
// the overall deadline, run metadata, failure cleanup, and the mapping from
// internal errors to the stable error taxonomy.
type Orchestrator struct {
	planner  Planner
	loop     *LoopController
	renderer Renderer
	store    ArtifactStore
	cfg      Config
	logger   *slog.Logger
	tracer   trace.Tracer
}

// NewOrchestrator wires the pipeline stages together.
func NewOrchestrator(
	planner Planner,
	generator Generator,
	reviewer Reviewer,
	renderer Renderer,
	store ArtifactStore,
	cfg Config,
	logger *slog.Logger,
) *Orchestrator {
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 2 * time.Minute
	}

	if len(cfg.ImageFormats) == 0 {
		cfg.ImageFormats = []string{models.FormatSVG}
	}

	return &Orchestrator{
		planner:  planner,
		loop:     NewLoopController(generator, reviewer, logger),
		renderer: renderer,
		store:    store,
		cfg:      cfg,
		logger:   logger,
		tracer:   otel.Tracer("pipeline"),
	}
}

// Generator exposes the loop's generator for initial generation.
func (o *Orchestrator) generator() Generator {
	return o.loop.generator
}

// Run executes the full pipeline for raw input. Validation happens before
// any collaborator call. On failure, artifacts persisted for this run are
// deleted best-effort and the returned error carries a stable Kind.
func (o *Orchestrator) Run(ctx context.Context, text, lang, educationLevel string, progress ProgressFunc) (*Result, error) {
	req, err := ValidateRequest(text, lang, educationLevel)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	logger := o.logger.With("run_id", runID)

	ctx, cancel := context.WithTimeout(ctx, o.cfg.RunTimeout)
	defer cancel()

	ctx, span := otelhelper.StartSpan(ctx, o.tracer, "pipeline.run",
		attribute.String(otelhelper.RunIDKey, runID))
	defer span.End()

	started := time.Now()
	durations := make(map[string]float64)
	emit := func(stage, status string, pct float64) {
		span.AddEvent(status, trace.WithAttributes(attribute.String(otelhelper.StageKey, stage)))

		if progress != nil {
			progress(ProgressEvent{
				Stage:          stage,
				StatusText:     status,
				Progress:       pct,
				ElapsedSeconds: time.Since(started).Seconds(),
			})
		}
	}

	logger.Info("run started", "text_length", len(req.Text), "language", req.Language)

	// Planning.
	emit(models.StagePlanning, "Analyzing the concept", 5)

	plan, err := timed(ctx, models.StagePlanning, durations, func(ctx context.Context) (*models.Plan, error) {
		return o.planner.Plan(ctx, req)
	})
	if err != nil {
		return nil, o.fail(span, logger, nil, NewError(KindPlanningFailed, "concept analysis failed", err))
	}

	span.SetAttributes(attribute.String(otelhelper.DiagramKindKey, string(plan.DiagramType)))
	emit(models.StagePlanning, "Plan ready: "+plan.Concept, 20)

	// Initial generation.
	emit(models.StageGeneration, "Drafting the diagram", 25)

	doc, err := timed(ctx, models.StageGeneration, durations, func(ctx context.Context) (*models.DiagramDocument, error) {
		return o.generator().Generate(ctx, plan)
	})
	if err != nil {
		return nil, o.fail(span, logger, nil, NewError(KindGenerationFailed, "diagram generation failed", err))
	}

	emit(models.StageGeneration, "Initial diagram drafted", 40)

	// Review and refinement loop.
	emit(models.StageReview, "Reviewing diagram quality", 45)

	loopStart := time.Now()

	loopResult, err := o.loop.Run(ctx, plan, doc)

	durations[models.StageReview] = time.Since(loopStart).Seconds()
	if err != nil {
		return nil, o.fail(span, logger, nil, err)
	}

	span.SetAttributes(
		attribute.Int(otelhelper.IterationKey, loopResult.State.Iteration),
		attribute.Int(otelhelper.ScoreKey, loopResult.FinalScore()),
	)
	emit(models.StageReview,
		fmt.Sprintf("Review finished with score %d after %d iteration(s)", loopResult.FinalScore(), loopResult.State.Iteration),
		60)

	// Conversion.
	emit(models.StageConversion, "Rendering the diagram", 70)

	degraded := false

	images, err := timed(ctx, models.StageConversion, durations, func(ctx context.Context) (map[string][]byte, error) {
		return o.renderer.RenderAll(ctx, loopResult.Document, o.cfg.ImageFormats)
	})
	if err != nil {
		if !o.cfg.RenderFallback || ctx.Err() != nil {
			return nil, o.fail(span, logger, nil, NewError(KindConversionFailed, "diagram rendering failed", err))
		}

		// Explicit degraded mode: substitute a placeholder and say so in
		// the run metadata. Never silent.
		logger.Warn("rendering failed, substituting placeholder", "error", err)

		degraded = true
		images = map[string][]byte{models.FormatSVG: render.PlaceholderSVG(plan.Concept)}
	}

	emit(models.StageConversion, "Diagram rendered", 80)

	// Storage.
	emit(models.StageStorage, "Storing artifacts", 85)

	handles, err := o.persistAll(ctx, durations, loopResult.Document, images)
	if err != nil {
		return nil, o.fail(span, logger, handles, NewError(KindStorageFailed, "artifact storage failed", err))
	}

	emit(models.StageStorage, "Artifacts stored", 95)

	metadata := models.RunMetadata{
		StageDurations: durations,
		IterationCount: loopResult.State.Iteration,
		FinalScore:     loopResult.FinalScore(),
		Approved:       loopResult.Approved(),
		Degraded:       degraded,
		TotalElapsed:   time.Since(started).Seconds(),
	}

	logger.Info("run completed",
		"iterations", metadata.IterationCount,
		"final_score", metadata.FinalScore,
		"approved", metadata.Approved,
		"degraded", metadata.Degraded,
		"total_elapsed", metadata.TotalElapsed)

	return &Result{
		Explanation: buildExplanation(plan),
		Plan:        plan,
		Document:    loopResult.Document,
		Verdicts:    loopResult.Verdicts,
		Images:      images,
		Handles:     handles,
		Metadata:    metadata,
	}, nil
}

// timed measures one stage call into the durations map.
func timed[T any](ctx context.Context, stage string, durations map[string]float64, call func(context.Context) (T, error)) (T, error) {
	start := time.Now()
	value, err := call(ctx)
	durations[stage] = time.Since(start).Seconds()

	return value, err
}

// persistAll stores the diagram markup and every rendered image. On a
// partial failure it returns the handles persisted so far for cleanup.
func (o *Orchestrator) persistAll(ctx context.Context, durations map[string]float64, doc *models.DiagramDocument, images map[string][]byte) ([]models.ArtifactHandle, error) {
	start := time.Now()
	defer func() {
		durations[models.StageStorage] = time.Since(start).Seconds()
	}()

	var handles []models.ArtifactHandle

	handle, err := o.store.Persist(ctx, []byte(doc.Content), models.FormatXML)
	if err != nil {
		return handles, fmt.Errorf("persist diagram markup: %w", err)
	}

	handles = append(handles, handle)

	for format, image := range images {
		handle, err := o.store.Persist(ctx, image, format)
		if err != nil {
			return handles, fmt.Errorf("persist %s image: %w", format, err)
		}

		handles = append(handles, handle)
	}

	return handles, nil
}

// fail finalizes a failed run: record the span error, delete any artifacts
// already persisted, and log the verbose cause while the caller only ever
// sees the stable kind and short message.
func (o *Orchestrator) fail(span trace.Span, logger *slog.Logger, handles []models.ArtifactHandle, err error) error {
	otelhelper.SetError(span, err)

	for _, handle := range handles {
		if deleteErr := o.store.Delete(context.Background(), handle.ID); deleteErr != nil {
			logger.Warn("failed to clean up artifact", "id", handle.ID, "error", deleteErr)
		}
	}

	logger.Error("run failed", "kind", KindOf(err), "error", err)

	return err
}

// buildExplanation assembles the user-facing explanation from the plan.
func buildExplanation(plan *models.Plan) string {
	var b strings.Builder

	fmt.Fprintf(&b, "This %s explains %s.", plan.DiagramType, plan.Concept)

	if len(plan.KeyInsights) > 0 {
		b.WriteString(" Key points: ")
		b.WriteString(strings.Join(plan.KeyInsights, "; "))
		b.WriteString(".")
	}

	return b.String()
}
