// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/dukex/comfyphone/pkg/persistence"
	"github.com/dukex/comfyphone/pkg/persistence/file"
	"github.com/dukex/comfyphone/pkg/persistence/postgresql"
	"github.com/dukex/comfyphone/pkg/persistence/redis"
)

var supportedPersistenceProviders = []string{"file", "postgres", "postgresql", "redis", "rediss"}

// NewPersistence opens the history store named by databaseURL. A URL without
// a scheme is a directory for the file store.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	provider, err := parsePersistenceProvider(databaseURL)
	if err != nil {
		return nil, err
	}

	switch provider {
	case "postgres", "postgresql":
		store, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, err
		}

		return store, nil
	case "redis", "rediss":
		store, err := redis.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, err
		}

		return store, nil
	default:
		store := file.NewPersistence(databaseURL)

		root := strings.TrimPrefix(databaseURL, "file://")

		err := os.MkdirAll(root, 0o750)
		if err != nil {
			return nil, fmt.Errorf("failed to create data directory %s: %w", root, err)
		}

		return store, nil
	}
}

func parsePersistenceProvider(databaseURL string) (string, error) {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file", nil
	}

	for _, supported := range supportedPersistenceProviders {
		if provider == supported {
			return provider, nil
		}
	}

	return "", fmt.Errorf("%w: %s", persistence.ErrUnsupportedBackend, provider)
}
