package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/comfyphone/pkg/cmd"
	"github.com/dukex/comfyphone/pkg/log"
	cli "github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start the API, the engine event stream and the catalog refresh",
		Action: func(ctx context.Context, command *cli.Command) error {
			logger := log.WithModule("serve")

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger.InfoContext(ctx, "Initializing comfyphone", "engine", command.String("engine-url"))

			app, err := newApplication(ctx, command, logger)
			if err != nil {
				return err
			}
			defer app.Close(context.Background())

			tagSource, closeTags, err := cmd.NewTagSource(ctx, logger, command.String("tags-db"), command.String("tags-url"))
			if err != nil {
				return err
			}

			defer func() {
				err := closeTags()
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close tag source", "error", err)
				}
			}()

			err = app.generator.Connect(ctx)
			if err != nil {
				logger.WarnContext(ctx, "Engine stream unavailable, retrying on next generate", "error", err)
			}

			err = app.catalog.Start(command.String("catalog-refresh"))
			if err != nil {
				return err
			}
			defer app.catalog.Stop(context.Background())

			api := NewAPI(logger, app.generator, app.persistence, tagSource, app.catalog)

			g, gCtx := errgroup.WithContext(ctx)

			g.Go(func() error {
				return api.Serve(gCtx, command.Int("port"))
			})

			g.Go(func() error {
				_, err := app.catalog.Refresh(gCtx)
				if err != nil {
					logger.WarnContext(gCtx, "Initial catalog refresh incomplete", "error", err)
				}

				return nil
			})

			err = g.Wait()
			if err != nil {
				logger.ErrorContext(ctx, "API stopped", "error", err)

				return err
			}

			logger.InfoContext(ctx, "Shut down")

			return nil
		},
	}
}
