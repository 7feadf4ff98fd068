package sqlite_test

import (
	"database/sql"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/dukex/comfyphone/pkg/models"
	"github.com/dukex/comfyphone/pkg/tags/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedDB(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "tags.db")

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)

	_, err = db.Exec(`CREATE TABLE tags (name TEXT PRIMARY KEY, tag_type TEXT, post_count INTEGER)`)
	require.NoError(t, err)

	rows := []struct {
		name     string
		category string
		count    int
	}{
		{"masterpiece", "5", 900000},
		{"mask", "0", 30000},
		{"mass_effect", "copyright", 1200},
		{"1girl", "0", 5000000},
		{"ma_ha", "1", 10},
		{"mahou_shoujo", "0", 80000},
	}

	for _, row := range rows {
		_, err = db.Exec(`INSERT INTO tags (name, tag_type, post_count) VALUES (?, ?, ?)`, row.name, row.category, row.count)
		require.NoError(t, err)
	}

	require.NoError(t, db.Close())

	return path
}

func TestSource_Search(t *testing.T) {
	t.Parallel()

	source, err := sqlite.Open(t.Context(), seedDB(t), slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	t.Cleanup(func() { _ = source.Close() })

	suggestions, err := source.Search(t.Context(), "mas")
	require.NoError(t, err)
	require.Len(t, suggestions, 3)
	assert.Equal(t, models.TagSuggestion{Name: "masterpiece", Category: models.TagCategoryMetadata, PostCount: 900000}, suggestions[0])
	assert.Equal(t, "mask", suggestions[1].Name)
	assert.Equal(t, models.TagCategoryCopyright, suggestions[2].Category)
}

func TestSource_Search_EscapesWildcards(t *testing.T) {
	t.Parallel()

	source, err := sqlite.Open(t.Context(), seedDB(t), slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	t.Cleanup(func() { _ = source.Close() })

	suggestions, err := source.Search(t.Context(), "ma_")
	require.NoError(t, err)
	require.Len(t, suggestions, 1)
	assert.Equal(t, "ma_ha", suggestions[0].Name)
}

func TestSource_Search_ShortQuery(t *testing.T) {
	t.Parallel()

	source, err := sqlite.Open(t.Context(), seedDB(t), slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	t.Cleanup(func() { _ = source.Close() })

	suggestions, err := source.Search(t.Context(), "m")
	require.NoError(t, err)
	assert.Empty(t, suggestions)
}

func TestOpen_MissingTable(t *testing.T) {
	t.Parallel()

	_, err := sqlite.Open(t.Context(), filepath.Join(t.TempDir(), "empty.db"), slog.New(slog.DiscardHandler))
	assert.ErrorIs(t, err, sqlite.ErrNoTagsTable)
}
