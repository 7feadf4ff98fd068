// Package sqlite serves tag suggestions from a tag database file with a
// `tags(name, tag_type, post_count)` table.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/comfyphone/pkg/models"
	"github.com/dukex/comfyphone/pkg/tags"
	_ "modernc.org/sqlite"
)

// ErrNoTagsTable is returned when the database lacks a tags table.
var ErrNoTagsTable = errors.New("tag database has no tags table")

const searchQuery = `
	SELECT name, tag_type, post_count
	FROM tags
	WHERE name LIKE ? ESCAPE '\'
	ORDER BY post_count DESC
	LIMIT ?
`

// Source implements tags.Source over a sqlite database.
type Source struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens the database at path. The database is only read.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Source, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	err = db.PingContext(ctx)
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	var tableCount int

	err = db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='tags'",
	).Scan(&tableCount)
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("check tags table: %w", err)
	}

	if tableCount == 0 {
		_ = db.Close()

		return nil, fmt.Errorf("%w: %s", ErrNoTagsTable, path)
	}

	return &Source{db: db, logger: logger.With("module", "tags_sqlite")}, nil
}

// Search returns tags starting with term, most popular first.
func (s *Source) Search(ctx context.Context, term string) ([]models.TagSuggestion, error) {
	if len(term) < tags.MinQueryLength {
		return []models.TagSuggestion{}, nil
	}

	rows, err := s.db.QueryContext(ctx, searchQuery, escapeLike(term)+"%", tags.Limit)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error querying tags database", "error", err)

		return nil, fmt.Errorf("query tags: %w", err)
	}

	defer func() { _ = rows.Close() }()

	suggestions := make([]models.TagSuggestion, 0, tags.Limit)

	for rows.Next() {
		var (
			suggestion models.TagSuggestion
			category   sql.NullString
		)

		err := rows.Scan(&suggestion.Name, &category, &suggestion.PostCount)
		if err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}

		suggestion.Category = models.ParseTagCategory(category.String)
		suggestions = append(suggestions, suggestion)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("iterate tags: %w", err)
	}

	return suggestions, nil
}

// Close closes the database.
func (s *Source) Close() error {
	return s.db.Close()
}

func escapeLike(term string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(term)
}
