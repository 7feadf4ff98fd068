// Package web provides HTTP handlers and REST API endpoints for image generation.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dukex/comfyphone/pkg/autocomplete"
	"github.com/dukex/comfyphone/pkg/catalog"
	"github.com/dukex/comfyphone/pkg/models"
	"github.com/dukex/comfyphone/pkg/orchestrator"
	"github.com/dukex/comfyphone/pkg/persistence"
	"github.com/dukex/comfyphone/pkg/tags"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
)

// Generator is the orchestrator surface the API drives.
type Generator interface {
	Generate(ctx context.Context, req orchestrator.GenerateRequest) ([]models.Submission, error)
	Status() orchestrator.Status
	Template() models.Graph
	ImportTemplate(data []byte) error
	Bindings() models.NodeBindings
	SetBindings(bindings models.NodeBindings)
}

// Catalog returns the cached engine options.
type Catalog interface {
	Get(ctx context.Context) (catalog.Catalog, error)
}

type APIHandlers struct {
	generator   Generator
	persistence persistence.Persistence
	tags        tags.Source
	catalog     Catalog
	validator   *validator.Validate
	logger      *slog.Logger
}

func NewAPIHandlers(
	generator Generator,
	persistence persistence.Persistence,
	tagSource tags.Source,
	catalog Catalog,
	validator *validator.Validate,
	logger *slog.Logger,
) *APIHandlers {
	return &APIHandlers{
		generator:   generator,
		persistence: persistence,
		tags:        tagSource,
		catalog:     catalog,
		validator:   validator,
		logger:      logger.With("module", "web"),
	}
}

// Register mounts every endpoint on router.
func Register(router fiber.Router, h *APIHandlers) {
	router.Get("/status", h.GetStatus)
	router.Post("/generate", h.Generate)

	g := router.Group("/gallery")
	g.Get("/", h.GetGallery)
	g.Post("/", h.SaveImage)
	g.Delete("/", h.ClearGallery)
	g.Get("/:id", h.GetImage)

	p := router.Group("/prompts")
	p.Get("/", h.GetPrompts)
	p.Post("/", h.SavePrompt)

	router.Get("/tags", h.SearchTags)
	router.Get("/autocomplete", h.GetSegment)
	router.Post("/autocomplete/insert", h.InsertTag)

	router.Get("/catalog", h.GetCatalog)

	w := router.Group("/workflow")
	w.Get("/", h.GetWorkflow)
	w.Put("/", h.PutWorkflow)
	w.Put("/bindings", h.PutBindings)

	router.Get("/health", h.HealthCheck)
}

func (h *APIHandlers) GetStatus(c fiber.Ctx) error {
	return c.JSON(h.generator.Status())
}

func (h *APIHandlers) Generate(c fiber.Ctx) error {
	var req orchestrator.GenerateRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	submissions, err := h.generator.Generate(c.Context(), req)
	if err != nil {
		return handleError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(GenerateResponse{Submissions: submissions})
}

func (h *APIHandlers) GetGallery(c fiber.Ctx) error {
	page, err := intQuery(c, "page", 1)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	limit, err := intQuery(c, "limit", persistence.DefaultPageSize)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	images, err := h.persistence.Images(c.Context(), page, limit)
	if err != nil {
		return handleError(c, err)
	}

	_, size := persistence.Page(page, limit)

	return c.JSON(GalleryResponse{Images: images, Page: max(page, 1), Limit: size})
}

func (h *APIHandlers) GetImage(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Image ID is required")
	}

	image, err := h.persistence.ImageByID(c.Context(), id)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(image)
}

func (h *APIHandlers) SaveImage(c fiber.Ctx) error {
	var req SaveImageRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	image := &models.GalleryImage{
		ID:        uuid.NewString(),
		URL:       req.URL,
		Prompt:    req.Prompt,
		Timestamp: time.Now().UnixMilli(),
		Workflow:  req.Workflow,
	}

	err := h.persistence.SaveImage(c.Context(), image)
	if err != nil {
		return handleError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(image)
}

func (h *APIHandlers) ClearGallery(c fiber.Ctx) error {
	err := h.persistence.ClearImages(c.Context())
	if err != nil {
		return handleError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) GetPrompts(c fiber.Ctx) error {
	limit, err := intQuery(c, "limit", persistence.DefaultPageSize)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	prompts, err := h.persistence.Prompts(c.Context(), limit)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(fiber.Map{"prompts": prompts})
}

func (h *APIHandlers) SavePrompt(c fiber.Ctx) error {
	var req SavePromptRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	stored, err := h.persistence.SavePrompt(c.Context(), &models.PromptRecord{
		ID:        uuid.NewString(),
		Text:      req.Text,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		return handleError(c, err)
	}

	status := fiber.StatusOK
	if stored {
		status = fiber.StatusCreated
	}

	return c.Status(status).JSON(SavePromptResponse{Stored: stored})
}

// SearchTags answers with an empty list when the lookup fails.
func (h *APIHandlers) SearchTags(c fiber.Ctx) error {
	query := c.Query("q")
	if query == "" {
		return c.JSON(TagsResponse{Tags: []models.TagSuggestion{}})
	}

	suggestions, err := h.tags.Search(c.Context(), query)
	if err != nil {
		h.logger.ErrorContext(c.Context(), "Error querying tags", "query", query, "error", err)

		suggestions = []models.TagSuggestion{}
	}

	c.Set(fiber.HeaderCacheControl, "public, max-age=60, stale-while-revalidate=300")

	return c.JSON(TagsResponse{Tags: suggestions})
}

// GetSegment reports the segment under the cursor and looks it up when it
// is long enough and not yet completed.
func (h *APIHandlers) GetSegment(c fiber.Ctx) error {
	text := c.Query("text")

	cursor, err := intQuery(c, "cursor", len(text))
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	segment := autocomplete.ExtractSegment(text, cursor)
	response := SegmentResponse{Segment: segment, Suggestions: []models.TagSuggestion{}}

	if !autocomplete.Eligible(segment) {
		return c.JSON(response)
	}

	suggestions, err := h.tags.Search(c.Context(), segment.Term)
	if err != nil {
		h.logger.DebugContext(c.Context(), "Tag lookup failed", "term", segment.Term, "error", err)

		return c.JSON(response)
	}

	response.Suggestions = suggestions

	return c.JSON(response)
}

func (h *APIHandlers) InsertTag(c fiber.Ctx) error {
	var req InsertRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	text, cursor := autocomplete.Insert(req.Name, req.Text, req.Cursor)

	return c.JSON(InsertResponse{Text: text, Cursor: cursor})
}

func (h *APIHandlers) GetCatalog(c fiber.Ctx) error {
	current, err := h.catalog.Get(c.Context())
	if err != nil {
		// Lists that failed keep their previous value, so a partial catalog is still served.
		h.logger.WarnContext(c.Context(), "Catalog incomplete", "error", err)
	}

	return c.JSON(current)
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	return c.JSON(WorkflowResponse{
		Workflow: h.generator.Template(),
		Bindings: h.generator.Bindings(),
	})
}

// PutWorkflow imports an API-format workflow export from the request body.
func (h *APIHandlers) PutWorkflow(c fiber.Ctx) error {
	err := h.generator.ImportTemplate(c.Body())
	if err != nil {
		return handleError(c, err)
	}

	return h.GetWorkflow(c)
}

func (h *APIHandlers) PutBindings(c fiber.Ctx) error {
	var bindings models.NodeBindings
	if err := c.Bind().JSON(&bindings); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	h.generator.SetBindings(bindings)

	return h.GetWorkflow(c)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := h.generator.Status()

	repositoryCheck := "ok"

	repOk := true
	if err := h.persistence.HealthCheck(c.Context()); err != nil {
		repositoryCheck = err.Error()
		repOk = false
	}

	engineCheck := "connected"
	if !status.Connected {
		engineCheck = "disconnected"
		if status.ConnectionError != "" {
			engineCheck = status.ConnectionError
		}
	}

	health := "unhealthy"
	message := "comfyphone is unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk {
		health = "healthy"
		message = "comfyphone is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  health,
		"message": message,
		"checkers": fiber.Map{
			"engine":     engineCheck,
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func intQuery(c fiber.Ctx, key string, fallback int) (int, error) {
	value := c.Query(key)
	if value == "" {
		return fallback, nil
	}

	return strconv.Atoi(value)
}
