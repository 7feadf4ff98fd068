package cmd

import (
	"context"
	"log/slog"

	"github.com/dukex/comfyphone/pkg/tags"
	"github.com/dukex/comfyphone/pkg/tags/sqlite"
)

// NewTagSource prefers a local tag database, then a remote tag endpoint.
// Without either, lookups return nothing. The returned function releases
// the source.
func NewTagSource(ctx context.Context, logger *slog.Logger, dbPath, url string) (tags.Source, func() error, error) {
	switch {
	case dbPath != "":
		source, err := sqlite.Open(ctx, dbPath, logger)
		if err != nil {
			return nil, nil, err
		}

		return source, source.Close, nil
	case url != "":
		return tags.NewHTTPSource(url, nil, logger), func() error { return nil }, nil
	default:
		logger.WarnContext(ctx, "No tag database configured, autocomplete is disabled")

		return tags.Empty{}, func() error { return nil }, nil
	}
}
