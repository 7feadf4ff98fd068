package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/dukex/comfyphone/pkg/log"
	"github.com/dukex/comfyphone/pkg/orchestrator"
	cli "github.com/urfave/cli/v3"
)

func GenerateCommand() *cli.Command {
	return &cli.Command{
		Name:      "generate",
		Aliases:   []string{"g"},
		Usage:     "Queue one batch, wait for it and print the image URLs",
		ArgsUsage: "<prompt>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "negative", Usage: "Negative prompt"},
			&cli.StringFlag{Name: "model", Usage: "Checkpoint name"},
			&cli.StringFlag{Name: "sampler", Usage: "Sampler name"},
			&cli.StringFlag{Name: "scheduler", Usage: "Scheduler name"},
			&cli.IntFlag{
				Name:    "count",
				Aliases: []string{"n"},
				Usage:   "Number of images",
				Value:   1,
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			logger := log.WithModule("generate")

			req := orchestrator.GenerateRequest{
				Prompt:         strings.Join(command.Args().Slice(), " "),
				NegativePrompt: command.String("negative"),
				Model:          command.String("model"),
				Sampler:        command.String("sampler"),
				Scheduler:      command.String("scheduler"),
				Count:          command.Int("count"),
			}

			app, err := newApplication(ctx, command, logger)
			if err != nil {
				return err
			}
			defer app.Close(context.Background())

			err = app.generator.Connect(ctx)
			if err != nil {
				return err
			}

			submissions, err := app.generator.Generate(ctx, req)
			if err != nil {
				return err
			}

			logger.InfoContext(ctx, "Waiting for batch", "jobs", len(submissions))

			snapshot, err := app.generator.Wait(ctx)
			if err != nil {
				return err
			}

			if snapshot.LastError != "" {
				return fmt.Errorf("batch failed: %s", snapshot.LastError)
			}

			for _, image := range snapshot.LastBatch {
				_, err := fmt.Fprintln(command.Root().Writer, image.URL)
				if err != nil {
					return err
				}
			}

			return nil
		},
	}
}
