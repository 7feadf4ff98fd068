package main

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/dukex/comfyphone/pkg/persistence"
	"github.com/dukex/comfyphone/pkg/tags"
	"github.com/dukex/comfyphone/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	recoverer "github.com/gofiber/fiber/v3/middleware/recover"
)

const shutdownTimeout = 10 * time.Second

type API struct {
	logger      *slog.Logger
	generator   web.Generator
	persistence persistence.Persistence
	tags        tags.Source
	catalog     web.Catalog
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	generator web.Generator,
	persistence persistence.Persistence,
	tagSource tags.Source,
	catalog web.Catalog,
) *API {
	return &API{
		logger:      logger,
		generator:   generator,
		persistence: persistence,
		tags:        tagSource,
		catalog:     catalog,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.generator, a.persistence, a.tags, a.catalog, a.validate, a.logger)

	app := fiber.New()
	app.Use(recoverer.New())
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("comfyphone API")
	})

	web.Register(app, handlers)

	return app
}

// Serve listens on port until ctx is done, then shuts the server down.
func (a *API) Serve(ctx context.Context, port int) error {
	app := a.App()
	errCh := make(chan error, 1)

	go func() {
		errCh <- app.Listen(":" + strconv.Itoa(port))
	}()

	a.logger.InfoContext(ctx, "API listening", "port", port)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return app.ShutdownWithContext(shutdownCtx)
}
