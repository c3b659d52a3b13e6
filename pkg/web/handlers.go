// Package web provides HTTP handlers and REST API endpoints for diagram generation.
package web

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/visualearn/visualearn/pkg/artifacts"
	"github.com/visualearn/visualearn/pkg/models"
	"github.com/visualearn/visualearn/pkg/pipeline"
)

// Runner executes one generation run end to end.
type Runner interface {
	Run(ctx context.Context, text, lang, educationLevel string, progress pipeline.ProgressFunc) (*pipeline.Result, error)
}

// ArtifactReader retrieves persisted artifact bytes by ID.
type ArtifactReader interface {
	Retrieve(ctx context.Context, id string) ([]byte, string, error)
}

type APIHandlers struct {
	runner    Runner
	reader    ArtifactReader
	validator *validator.Validate
	logger    *slog.Logger
}

func NewAPIHandlers(runner Runner, reader ArtifactReader, validator *validator.Validate, logger *slog.Logger) *APIHandlers {
	return &APIHandlers{
		runner:    runner,
		reader:    reader,
		validator: validator,
		logger:    logger,
	}
}

func (h *APIHandlers) GenerateDiagram(c fiber.Ctx) error {
	var req GenerateRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	result, err := h.runner.Run(c.Context(), req.Text, req.Language, req.EducationLevel, nil)
	if err != nil {
		return handlePipelineError(c, err)
	}

	return c.JSON(toGenerateResponse(result))
}

// GenerateDiagramStream runs the pipeline while streaming progress as
// server-sent events. The final event is either "complete" with the full
// result or "error" with the failure kind; the stream always terminates.
func (h *APIHandlers) GenerateDiagramStream(c fiber.Ctx) error {
	var req GenerateRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	return c.SendStreamWriter(func(w *bufio.Writer) {
		events := make(chan StreamEvent, 16)

		// The pipeline owns its own run deadline; the request context is
		// gone once streaming starts, so the run gets a fresh one.
		go func() {
			result, err := h.runner.Run(context.Background(), req.Text, req.Language, req.EducationLevel, func(p pipeline.ProgressEvent) {
				events <- StreamEvent{
					Type: "progress",
					Progress: &ProgressPayload{
						Stage:          p.Stage,
						StatusText:     p.StatusText,
						Progress:       p.Progress,
						ElapsedSeconds: p.ElapsedSeconds,
					},
				}
			})
			if err != nil {
				events <- StreamEvent{
					Type: "error",
					Error: &ErrorPayload{
						Kind:    string(pipeline.KindOf(err)),
						Message: pipeline.MessageOf(err),
					},
				}
			} else {
				response := toGenerateResponse(result)
				events <- StreamEvent{Type: "complete", Result: &response}
			}

			close(events)
		}()

		for event := range events {
			if err := writeSSE(w, event); err != nil {
				h.logger.Debug("client disconnected during stream", "error", err)

				// Drain so the run goroutine never blocks on the channel.
				for range events {
					continue
				}

				return
			}
		}
	})
}

func writeSSE(w *bufio.Writer, event StreamEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if _, err := w.WriteString("data: "); err != nil {
		return err
	}

	if _, err := w.Write(payload); err != nil {
		return err
	}

	if _, err := w.WriteString("\n\n"); err != nil {
		return err
	}

	return w.Flush()
}

func (h *APIHandlers) GetArtifact(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Artifact ID is required")
	}

	content, format, err := h.reader.Retrieve(c.Context(), id)
	if err != nil {
		if errors.Is(err, artifacts.ErrNotFound) {
			return notFound(c, "Artifact not found")
		}

		return handlePipelineError(c, pipeline.NewError(pipeline.KindStorageFailed, "artifact retrieval failed", err))
	}

	c.Set(fiber.HeaderContentType, models.ContentTypeForFormat(format))

	return c.Send(content)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"status":    "healthy",
		"service":   "visualearn-api",
		"timestamp": time.Now().UTC(),
	})
}

func toGenerateResponse(result *pipeline.Result) GenerateResponse {
	return GenerateResponse{
		Explanation:     result.Explanation,
		ImageContent:    string(result.Images[models.FormatSVG]),
		DiagramDocument: result.Document.Content,
		DiagramType:     result.Plan.DiagramType,
		Artifacts:       result.Handles,
		Verdicts:        result.Verdicts,
		Metadata:        result.Metadata,
	}
}
