package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dukex/comfyphone/pkg/catalog"
	"github.com/dukex/comfyphone/pkg/engine"
	"github.com/dukex/comfyphone/pkg/log"
	cli "github.com/urfave/cli/v3"
)

func ModelsCommand() *cli.Command {
	return &cli.Command{
		Name:  "models",
		Usage: "List the checkpoints, samplers and schedulers the engine offers",
		Action: func(ctx context.Context, command *cli.Command) error {
			logger := log.WithModule("models")

			client, err := engine.NewClient(command.String("engine-url"), engine.WithLogger(logger))
			if err != nil {
				return err
			}

			return printCatalog(ctx, command.Root().Writer, catalog.New(client, logger))
		},
	}
}

var errNoOptions = errors.New("engine returned no options")

// printCatalog prints whatever could be listed. It fails only when nothing
// could be.
func printCatalog(ctx context.Context, w io.Writer, cache *catalog.Cache) error {
	c, err := cache.Refresh(ctx)

	if len(c.Models) == 0 && len(c.Samplers) == 0 && len(c.Schedulers) == 0 {
		if err == nil {
			err = errNoOptions
		}

		return fmt.Errorf("failed to list engine options: %w", err)
	}

	sections := []struct {
		title  string
		values []string
	}{
		{"Models", c.Models},
		{"Samplers", c.Samplers},
		{"Schedulers", c.Schedulers},
	}

	for _, section := range sections {
		_, err := fmt.Fprintf(w, "%s (%d)\n", section.title, len(section.values))
		if err != nil {
			return err
		}

		for _, value := range section.values {
			_, err := fmt.Fprintf(w, "  %s\n", value)
			if err != nil {
				return err
			}
		}
	}

	return nil
}
