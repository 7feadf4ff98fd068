// Package main provides the comfyphone command line and API server.
package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/dukex/comfyphone/pkg/engine"
	"github.com/dukex/comfyphone/pkg/log"
	"github.com/dukex/comfyphone/pkg/models"
	"github.com/joho/godotenv"
	cli "github.com/urfave/cli/v3"
)

const (
	defaultPort           = 9091
	defaultStallTimeout   = 5 * time.Minute
	defaultCatalogRefresh = "*/30 * * * *"
)

func main() {
	err := godotenv.Load()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	cmd := &cli.Command{
		Name:                  "comfyphone",
		Usage:                 "Drive a ComfyUI engine from a small API",
		EnableShellCompletion: true,
		Flags:                 flags(),
		Before: func(ctx context.Context, command *cli.Command) (context.Context, error) {
			log.Setup(command.String("log-level"), command.String("log-format"))

			return ctx, nil
		},
		Commands: []*cli.Command{
			ServeCommand(),
			GenerateCommand(),
			ModelsCommand(),
			SuggestCommand(),
		},
	}

	err = cmd.Run(context.Background(), os.Args)
	if err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

func flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "engine-url",
			Usage:   "Base URL of the ComfyUI engine",
			Value:   engine.DefaultAddress,
			Sources: cli.EnvVars("COMFY_URL"),
		},
		&cli.StringFlag{
			Name:    "client-id",
			Usage:   "Client id used for submissions and the event stream (generated when empty)",
			Sources: cli.EnvVars("COMFY_CLIENT_ID"),
		},
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "History store URL (file://, postgres://, redis://)",
			Value:   "file://./data",
			Sources: cli.EnvVars("DATABASE_URL"),
		},
		&cli.StringFlag{
			Name:    "event-bus",
			Usage:   "Event bus provider",
			Value:   "gochannel",
			Sources: cli.EnvVars("EVENT_BUS_TYPE"),
		},
		&cli.StringFlag{
			Name:    "tags-db",
			Usage:   "Path to the sqlite tag database",
			Sources: cli.EnvVars("TAGS_DB"),
		},
		&cli.StringFlag{
			Name:    "tags-url",
			Usage:   "Base URL of a remote tag search endpoint",
			Sources: cli.EnvVars("TAGS_URL"),
		},
		&cli.StringFlag{
			Name:    "workflow",
			Usage:   "Path to an API-format workflow export to use instead of the built-in one",
			Sources: cli.EnvVars("COMFY_WORKFLOW"),
		},
		&cli.StringFlag{
			Name:    "prompt-node",
			Usage:   "Node receiving the positive prompt",
			Value:   models.DefaultPromptNodeID,
			Sources: cli.EnvVars("COMFY_PROMPT_NODE"),
		},
		&cli.StringFlag{
			Name:    "negative-prompt-node",
			Usage:   "Node receiving the negative prompt",
			Value:   models.DefaultNegativePromptNodeID,
			Sources: cli.EnvVars("COMFY_NEGATIVE_PROMPT_NODE"),
		},
		&cli.StringFlag{
			Name:    "model-node",
			Usage:   "Checkpoint loader node",
			Value:   models.DefaultModelNodeID,
			Sources: cli.EnvVars("COMFY_MODEL_NODE"),
		},
		&cli.StringFlag{
			Name:    "seed-node",
			Usage:   "Node receiving the seed",
			Value:   models.DefaultSeedNodeID,
			Sources: cli.EnvVars("COMFY_SEED_NODE"),
		},
		&cli.DurationFlag{
			Name:    "stall-timeout",
			Usage:   "Return a batch to idle after this long without engine events (0 disables)",
			Value:   defaultStallTimeout,
			Sources: cli.EnvVars("COMFY_STALL_TIMEOUT"),
		},
		&cli.DurationFlag{
			Name:    "debounce",
			Usage:   "Quiet period before a tag lookup",
			Value:   600 * time.Millisecond,
			Sources: cli.EnvVars("AUTOCOMPLETE_DEBOUNCE"),
		},
		&cli.StringFlag{
			Name:    "catalog-refresh",
			Usage:   "Cron schedule for refreshing models, samplers and schedulers",
			Value:   defaultCatalogRefresh,
			Sources: cli.EnvVars("CATALOG_REFRESH"),
		},
		&cli.IntFlag{
			Name:    "port",
			Aliases: []string{"p"},
			Usage:   "Port to run the API server on",
			Value:   defaultPort,
			Sources: cli.EnvVars("PORT"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   "info",
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "Log format (text, json)",
			Value:   "text",
			Sources: cli.EnvVars("LOG_FORMAT"),
		},
		&cli.BoolFlag{
			Name:    "otel",
			Usage:   "Export traces over OTLP/HTTP",
			Sources: cli.EnvVars("OTEL_ENABLED"),
		},
	}
}

func bindingsFromCommand(command *cli.Command) models.NodeBindings {
	return models.NodeBindings{
		PromptNodeID:         command.String("prompt-node"),
		NegativePromptNodeID: command.String("negative-prompt-node"),
		ModelNodeID:          command.String("model-node"),
		SeedNodeID:           command.String("seed-node"),
	}.WithDefaults()
}
