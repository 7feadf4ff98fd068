package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dukex/comfyphone/pkg/catalog"
	"github.com/dukex/comfyphone/pkg/cmd"
	"github.com/dukex/comfyphone/pkg/engine"
	"github.com/dukex/comfyphone/pkg/eventbus"
	"github.com/dukex/comfyphone/pkg/orchestrator"
	"github.com/dukex/comfyphone/pkg/otelhelper"
	"github.com/dukex/comfyphone/pkg/persistence"
	"github.com/dukex/comfyphone/pkg/recorder"
	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"
)

// application holds every component built from the command line.
type application struct {
	logger      *slog.Logger
	client      *engine.Client
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	recorder    *recorder.Recorder
	generator   *orchestrator.Generator
	catalog     *catalog.Cache

	closers []func(ctx context.Context) error
}

func newApplication(ctx context.Context, command *cli.Command, logger *slog.Logger) (*application, error) {
	app := &application{logger: logger}

	tracer := otelhelper.NoopTracer()

	if command.Bool("otel") {
		t, shutdown, err := otelhelper.NewTracer(ctx, "comfyphone")
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracer: %w", err)
		}

		tracer = t
		app.closers = append(app.closers, shutdown)
	}

	client, err := engine.NewClient(
		command.String("engine-url"),
		engine.WithTracer(tracer),
		engine.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	app.client = client
	app.catalog = catalog.New(client, logger)

	store, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		app.Close(ctx)

		return nil, err
	}

	app.persistence = store
	app.closers = append(app.closers, store.Close)

	eventBus, err := cmd.NewEventBus(command.String("event-bus"), logger)
	if err != nil {
		app.Close(ctx)

		return nil, err
	}

	app.eventBus = eventBus
	app.closers = append(app.closers, func(context.Context) error { return eventBus.Close() })

	clientID := command.String("client-id")
	if clientID == "" {
		clientID = uuid.NewString()
	}

	app.recorder = recorder.New(clientID, eventBus, store, logger)

	err = app.recorder.Start(ctx)
	if err != nil {
		app.Close(ctx)

		return nil, err
	}

	app.generator, err = newGenerator(command, clientID, client, app.recorder, tracer, logger)
	if err != nil {
		app.Close(ctx)

		return nil, err
	}

	app.closers = append(app.closers, func(context.Context) error { return app.generator.Close() })

	return app, nil
}

func newGenerator(
	command *cli.Command,
	clientID string,
	client *engine.Client,
	history orchestrator.HistoryRecorder,
	tracer trace.Tracer,
	logger *slog.Logger,
) (*orchestrator.Generator, error) {
	generator := orchestrator.New(clientID, client, history, logger,
		orchestrator.WithTracer(tracer),
		orchestrator.WithBindings(bindingsFromCommand(command)),
		orchestrator.WithStallTimeout(command.Duration("stall-timeout")),
	)

	path := command.String("workflow")
	if path == "" {
		return generator, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow %s: %w", path, err)
	}

	err = generator.ImportTemplate(data)
	if err != nil {
		return nil, err
	}

	logger.Info("Imported workflow", "path", path, "nodes", len(generator.Template()))

	return generator, nil
}

// Close releases components in reverse creation order.
func (a *application) Close(ctx context.Context) {
	var errs []error

	for i := len(a.closers) - 1; i >= 0; i-- {
		err := a.closers[i](ctx)
		if err != nil {
			errs = append(errs, err)
		}
	}

	a.closers = nil

	err := errors.Join(errs...)
	if err != nil {
		a.logger.ErrorContext(ctx, "Failed to shut down cleanly", "error", err)
	}
}
