// Package web provides HTTP request and response types for the diagram API.
package web

import "github.com/visualearn/visualearn/pkg/models"

// GenerateRequest represents the request body for generating a diagram.
type GenerateRequest struct {
	Text           string `json:"text"                      validate:"required,min=1,max=1000"`
	Language       string `json:"language,omitempty"`
	EducationLevel string `json:"education_level,omitempty" validate:"omitempty,oneof=elementary middle_school high_school university general"`
}

// GenerateResponse represents the full outcome of a successful generation run.
type GenerateResponse struct {
	Explanation     string                  `json:"explanation"`
	ImageContent    string                  `json:"image_content"`
	DiagramDocument string                  `json:"diagram_document"`
	DiagramType     models.DiagramType      `json:"diagram_type"`
	Artifacts       []models.ArtifactHandle `json:"artifacts"`
	Verdicts        []*models.ReviewVerdict `json:"verdicts"`
	Metadata        models.RunMetadata      `json:"metadata"`
}

// StreamEvent is one server-sent event on the streaming endpoint. Type is
// "progress" while the run is in flight; the final event is either
// "complete" carrying the result or "error" carrying the failure.
type StreamEvent struct {
	Type     string            `json:"type"`
	Progress *ProgressPayload  `json:"progress,omitempty"`
	Result   *GenerateResponse `json:"result,omitempty"`
	Error    *ErrorPayload     `json:"error,omitempty"`
}

// ProgressPayload mirrors the pipeline's progress events on the wire.
type ProgressPayload struct {
	Stage          string  `json:"stage"`
	StatusText     string  `json:"status_text"`
	Progress       float64 `json:"progress"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
}

// ErrorPayload carries a terminal failure on the streaming endpoint.
type ErrorPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}
