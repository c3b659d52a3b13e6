// Package planner implements the planning stage: it turns a validated
// concept request into a structured Plan via the completion service.
package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/visualearn/visualearn/pkg/cache"
	"github.com/visualearn/visualearn/pkg/completion"
	"github.com/visualearn/visualearn/pkg/models"
)

const promptTemplate = `You are an expert educational diagram designer specializing in creating visual explanations.

Task: Analyze this topic and create a detailed diagram plan.

Topic: %s
Language: %s
Education level: %s

Requirements:
1. Identify the core concept clearly
2. Choose appropriate diagram type (flowchart for processes, mindmap for relationships, sequence for steps, hierarchy for structure)
3. Identify all key components (5-15 elements)
4. Define clear relationships between components; every "from" and "to" must name one of the listed components
5. Define measurable success criteria
6. Define key insights

Respond ONLY with valid JSON in this exact structure (no markdown, no code blocks):
{
    "concept": "the main concept being explained",
    "diagram_type": "flowchart|mindmap|sequence|hierarchy",
    "components": ["element1", "element2", "element3"],
    "relationships": [
        {"from": "source", "to": "destination", "label": "relationship_description"}
    ],
    "success_criteria": ["criterion1", "criterion2"],
    "key_insights": ["insight1", "insight2"]
}`

// Planner asks the completion service for a diagram plan and validates the
// response strictly. A failed plan aborts the run; there is no retry at
// this layer.
type Planner struct {
	client  completion.Completer
	timeout time.Duration
	cache   cache.Cache
	ttl     time.Duration
	logger  *slog.Logger
}

// Option configures a Planner.
type Option func(*Planner)

// WithCache enables plan caching with the given TTL.
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(p *Planner) {
		p.cache = c
		p.ttl = ttl
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Planner) {
		p.logger = logger
	}
}

// New creates a planner bounded by the given per-call timeout.
func New(client completion.Completer, timeout time.Duration, opts ...Option) *Planner {
	p := &Planner{
		client:  client,
		timeout: timeout,
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Plan produces a validated plan for the request.
func (p *Planner) Plan(ctx context.Context, req models.ConceptRequest) (*models.Plan, error) {
	key := cache.Key(models.StagePlanning, req.Text, req.Language)

	if p.cache != nil {
		if cached, ok := p.cache.Get(ctx, key); ok {
			if plan, err := p.parsePlan(cached, req); err == nil {
				p.logger.Debug("plan cache hit", "concept", plan.Concept)
				return plan, nil
			}
			// A stale or corrupt entry falls through to a fresh call.
		}
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.client.Complete(ctx, completion.Request{
		Messages: []completion.Message{
			{Role: "user", Content: p.buildPrompt(req)},
		},
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("planning timed out after %s: %w", p.timeout, err)
		}

		return nil, fmt.Errorf("planning request failed: %w", err)
	}

	raw := completion.ExtractJSON(resp.Content)
	if raw == "" {
		return nil, fmt.Errorf("planning response contains no JSON document")
	}

	plan, err := p.parsePlan(raw, req)
	if err != nil {
		return nil, err
	}

	if p.cache != nil {
		p.cache.Set(ctx, key, raw, p.ttl)
	}

	p.logger.Info("planning completed",
		"concept", plan.Concept,
		"diagram_type", plan.DiagramType,
		"components", len(plan.Components))

	return plan, nil
}

func (p *Planner) buildPrompt(req models.ConceptRequest) string {
	level := req.EducationLevel
	if level == "" {
		level = "general audience"
	}

	return fmt.Sprintf(promptTemplate, req.Text, req.Language, level)
}

// parsePlan validates the raw JSON against the plan schema and decodes it.
// Schema violations name the first missing or invalid key.
func (p *Planner) parsePlan(raw string, req models.ConceptRequest) (*models.Plan, error) {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(planSchema),
		gojsonschema.NewStringLoader(raw),
	)
	if err != nil {
		return nil, fmt.Errorf("malformed plan document: %w", err)
	}

	if !result.Valid() {
		first := result.Errors()[0]
		return nil, fmt.Errorf("invalid plan field %q: %s", first.Field(), first.Description())
	}

	var plan models.Plan
	if err := json.Unmarshal([]byte(raw), &plan); err != nil {
		return nil, fmt.Errorf("decode plan document: %w", err)
	}

	if _, ok := models.ParseDiagramType(string(plan.DiagramType)); !ok {
		return nil, fmt.Errorf("invalid plan field %q: unknown diagram type %q", "diagram_type", plan.DiagramType)
	}

	if err := checkRelationships(&plan); err != nil {
		return nil, err
	}

	if plan.EducationLevel == "" {
		plan.EducationLevel = req.EducationLevel
	}

	return &plan, nil
}

// checkRelationships enforces that every relationship endpoint names a
// declared component.
func checkRelationships(plan *models.Plan) error {
	declared := make(map[string]struct{}, len(plan.Components))
	for _, c := range plan.Components {
		declared[c] = struct{}{}
	}

	for i, rel := range plan.Relationships {
		if _, ok := declared[rel.From]; !ok {
			return fmt.Errorf("invalid plan field %q: relationship %d references undeclared component %q", "relationships", i, rel.From)
		}
		if _, ok := declared[rel.To]; !ok {
			return fmt.Errorf("invalid plan field %q: relationship %d references undeclared component %q", "relationships", i, rel.To)
		}
	}

	return nil
}
