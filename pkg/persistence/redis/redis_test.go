package redis_test

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"testing"

	"github.com/dukex/comfyphone/pkg/models"
	"github.com/dukex/comfyphone/pkg/persistence"
	"github.com/dukex/comfyphone/pkg/persistence/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) (*redis.Persistence, context.Context) {
	t.Helper()

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		t.Skip("REDIS_URL not set")
	}

	ctx := t.Context()
	logger := slog.New(slog.DiscardHandler)

	p, err := redis.NewPersistence(ctx, logger, redisURL)
	require.NoError(t, err)

	require.NoError(t, p.ClearImages(ctx))

	t.Cleanup(func() {
		_ = p.ClearImages(context.Background())
		_ = p.Close(context.Background())
	})

	return p, ctx
}

func TestNewPersistence_InvalidURL(t *testing.T) {
	t.Parallel()

	_, err := redis.NewPersistence(t.Context(), slog.New(slog.DiscardHandler), "not-a-url")
	assert.Error(t, err)
}

func TestPersistence_Images(t *testing.T) {
	p, ctx := setupRedis(t)

	for i := range 3 {
		require.NoError(t, p.SaveImage(ctx, &models.GalleryImage{
			ID:        fmt.Sprintf("img-%d", i),
			URL:       fmt.Sprintf("http://127.0.0.1:8188/view?filename=%d.png", i),
			Timestamp: int64(1000 + i),
		}))
	}

	images, err := p.Images(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, images, 2)
	assert.Equal(t, "img-2", images[0].ID)
	assert.Equal(t, "img-1", images[1].ID)

	_, err = p.ImageByID(ctx, "missing")
	assert.True(t, persistence.IsImageNotFound(err))

	require.NoError(t, p.ClearImages(ctx))

	images, err = p.Images(ctx, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, images)
}

func TestPersistence_SavePrompt_Dedupes(t *testing.T) {
	p, ctx := setupRedis(t)

	text := "redis-test-" + t.Name()

	stored, err := p.SavePrompt(ctx, &models.PromptRecord{ID: "r1", Text: text, Timestamp: 1})
	require.NoError(t, err)

	again, err := p.SavePrompt(ctx, &models.PromptRecord{ID: "r2", Text: text, Timestamp: 2})
	require.NoError(t, err)

	assert.False(t, stored && again)
}
