package web

import (
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/visualearn/visualearn/pkg/pipeline"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

// handlePipelineError maps the pipeline's error taxonomy to HTTP. Only the
// short stable message is exposed; the wrapped cause stays in the logs.
func handlePipelineError(c fiber.Ctx, err error) error {
	kind := pipeline.KindOf(err)

	switch kind {
	case pipeline.KindInputInvalid:
		problem := problems.NewStatusProblem(400).
			WithInstance(c.Path()).
			WithType(string(kind)).
			WithDetail(pipeline.MessageOf(err))

		return c.Status(fiber.StatusBadRequest).JSON(problem)

	case pipeline.KindArtifactNotFound:
		problem := problems.NewStatusProblem(404).
			WithInstance(c.Path()).
			WithType(string(kind)).
			WithDetail(pipeline.MessageOf(err))

		return c.Status(fiber.StatusNotFound).JSON(problem)

	case pipeline.KindPlanningFailed,
		pipeline.KindGenerationFailed,
		pipeline.KindReviewFailed,
		pipeline.KindConversionFailed,
		pipeline.KindStorageFailed:
		problem := problems.NewStatusProblem(500).
			WithInstance(c.Path()).
			WithType(string(kind)).
			WithDetail(pipeline.MessageOf(err))

		return c.Status(fiber.StatusInternalServerError).JSON(problem)

	default:
		problem := problems.NewStatusProblem(500).
			WithInstance(c.Path()).
			WithType("internal_error").
			WithDetail("internal error")

		return c.Status(fiber.StatusInternalServerError).JSON(problem)
	}
}
