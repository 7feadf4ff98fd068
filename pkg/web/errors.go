package web

import (
	"errors"

	"github.com/dukex/comfyphone/pkg/engine"
	"github.com/dukex/comfyphone/pkg/graph"
	"github.com/dukex/comfyphone/pkg/orchestrator"
	"github.com/dukex/comfyphone/pkg/persistence"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
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

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleError maps domain errors to problem responses.
func handleError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, orchestrator.ErrEmptyPrompt):
		return badRequest(c, err.Error())

	case errors.Is(err, orchestrator.ErrBusy):
		problem := problems.NewStatusProblem(409).
			WithInstance(c.Path()).
			WithType("generation_in_progress").
			WithDetail(err.Error())

		return c.Status(fiber.StatusConflict).JSON(problem)

	case graph.IsInvalidTemplate(err):
		problem := problems.NewStatusProblem(400).
			WithInstance(c.Path()).
			WithType("invalid_workflow").
			WithDetail(err.Error())

		return c.Status(fiber.StatusBadRequest).JSON(problem)

	case engine.IsSubmissionFailed(err):
		problem := problems.NewStatusProblem(502).
			WithInstance(c.Path()).
			WithType("submission_failed").
			WithDetail(err.Error())

		return c.Status(fiber.StatusBadGateway).JSON(problem)

	case persistence.IsImageNotFound(err):
		return notFound(c, "image not found")

	case persistence.IsInvalidRecord(err):
		return badRequest(c, err.Error())

	default:
		return internalError(c, err)
	}
}
