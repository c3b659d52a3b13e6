// Package models defines the core domain types for the diagram generation pipeline.
package models

import "time"

// DiagramType classifies the visual structure a plan asks for.
type DiagramType string

const (
	DiagramTypeFlowchart DiagramType = "flowchart" // processes
	DiagramTypeMindmap   DiagramType = "mindmap"   // relationships
	DiagramTypeSequence  DiagramType = "sequence"  // ordered steps
	DiagramTypeHierarchy DiagramType = "hierarchy" // structure
)

// ParseDiagramType returns the matching diagram type, or false when the
// value is not part of the enum.
func ParseDiagramType(s string) (DiagramType, bool) {
	switch DiagramType(s) {
	case DiagramTypeFlowchart, DiagramTypeMindmap, DiagramTypeSequence, DiagramTypeHierarchy:
		return DiagramType(s), true
	default:
		return "", false
	}
}

// ConceptRequest is a validated, normalized generation request. It lives for
// exactly one run and is never persisted.
type ConceptRequest struct {
	Text           string `json:"text"`
	Language       string `json:"language"`
	EducationLevel string `json:"education_level,omitempty"`
}

// Relationship is a directed, labeled edge between two plan components.
type Relationship struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Label string `json:"label"`
}

// Plan is the structured specification of intended diagram content,
// produced once per run by the planning stage and read-only afterwards.
type Plan struct {
	Concept         string         `json:"concept"          validate:"required"`
	DiagramType     DiagramType    `json:"diagram_type"     validate:"required"`
	Components      []string       `json:"components"       validate:"required,min=1"`
	Relationships   []Relationship `json:"relationships"`
	SuccessCriteria []string       `json:"success_criteria"`
	EducationLevel  string         `json:"education_level"`
	KeyInsights     []string       `json:"key_insights"`
}

// DiagramDocument is one version of the diagram's structured markup.
// Version 0 comes from initial generation, version k+1 from each refinement.
type DiagramDocument struct {
	Version   int       `json:"version"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ReviewVerdict is the immutable scored assessment of one document version
// against its plan.
type ReviewVerdict struct {
	Iteration              int      `json:"iteration"`
	Score                  int      `json:"score"`
	Approved               bool     `json:"approved"`
	Issues                 []string `json:"issues"`
	RefinementInstructions []string `json:"refinement_instructions"`
}

// Artifact formats accepted by the storage layer.
const (
	FormatSVG = "svg"
	FormatXML = "xml"
	FormatPNG = "png"
)

// ContentTypeForFormat maps an artifact format tag to the content type
// served on retrieval.
func ContentTypeForFormat(format string) string {
	switch format {
	case FormatSVG:
		return "image/svg+xml"
	case FormatPNG:
		return "image/png"
	case FormatXML:
		return "application/xml"
	default:
		return "application/octet-stream"
	}
}

// ArtifactHandle identifies one persisted artifact. The ID is opaque and
// random, never derived from user input.
type ArtifactHandle struct {
	ID        string    `json:"id"`
	Format    string    `json:"format"`
	CreatedAt time.Time `json:"created_at"`
	SizeBytes int64     `json:"size_bytes"`
}

// RunMetadata accumulates timing and outcome data for one run. It is
// immutable once the run terminates.
type RunMetadata struct {
	StageDurations map[string]float64 `json:"stage_durations"` // seconds per stage
	IterationCount int                `json:"iteration_count"`
	FinalScore     int                `json:"final_score"`
	Approved       bool               `json:"approved"`
	Degraded       bool               `json:"degraded"` // placeholder fallback was used
	TotalElapsed   float64            `json:"total_elapsed"`
}

// Pipeline stage names used in durations and progress events.
const (
	StagePlanning   = "planning"
	StageGeneration = "generation"
	StageReview     = "review"
	StageConversion = "conversion"
	StageStorage    = "storage"
)
