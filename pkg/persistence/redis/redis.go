// Package redis provides Redis persistence for the generation history.
//
// Records are JSON strings keyed by id, indexed by sorted sets scored with
// their millisecond timestamp.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/comfyphone/pkg/models"
	"github.com/dukex/comfyphone/pkg/persistence"
	redis "github.com/redis/go-redis/v9"
)

const (
	imageIndexKey  = "comfyphone:images"
	imageKeyPrefix = "comfyphone:image:"
	promptIndexKey = "comfyphone:prompts"
	promptTextsKey = "comfyphone:prompt_texts"
	promptKeyPref  = "comfyphone:prompt:"
)

// Persistence implements persistence.Persistence on a Redis server.
type Persistence struct {
	client redis.UniversalClient
	logger *slog.Logger
}

// NewPersistence connects to the server at redisURL (redis://host:port/db).
func NewPersistence(ctx context.Context, logger *slog.Logger, redisURL string) (*Persistence, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(options)

	err = client.Ping(ctx).Err()
	if err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewWithClient(client, logger), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client redis.UniversalClient, logger *slog.Logger) *Persistence {
	return &Persistence{client: client, logger: logger.With("module", "redis_persistence")}
}

func (p *Persistence) Close(_ context.Context) error {
	err := p.client.Close()
	if err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}

	return nil
}

func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.client.Ping(ctx).Err()
	if err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	return nil
}

func (p *Persistence) SaveImage(ctx context.Context, image *models.GalleryImage) error {
	if image == nil || image.ID == "" {
		return persistence.NewImageError("SaveImage", "", persistence.ErrInvalidRecord)
	}

	data, err := json.Marshal(image)
	if err != nil {
		return persistence.NewImageError("SaveImage", image.ID, err)
	}

	_, err = p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, imageKeyPrefix+image.ID, data, 0)
		pipe.ZAdd(ctx, imageIndexKey, redis.Z{Score: float64(image.Timestamp), Member: image.ID})

		return nil
	})
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to save image", "image_id", image.ID, "error", err)

		return persistence.NewImageError("SaveImage", image.ID, err)
	}

	return nil
}

func (p *Persistence) Images(ctx context.Context, page, limit int) ([]*models.GalleryImage, error) {
	offset, size := persistence.Page(page, limit)

	ids, err := p.client.ZRevRange(ctx, imageIndexKey, int64(offset), int64(offset+size-1)).Result()
	if err != nil {
		return nil, persistence.NewImageError("Images", "", err)
	}

	images := make([]*models.GalleryImage, 0, len(ids))
	if len(ids) == 0 {
		return images, nil
	}

	values, err := p.client.MGet(ctx, prefixed(imageKeyPrefix, ids)...).Result()
	if err != nil {
		return nil, persistence.NewImageError("Images", "", err)
	}

	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			p.logger.WarnContext(ctx, "Image indexed without document", "image_id", ids[i])

			continue
		}

		var image models.GalleryImage

		err := json.Unmarshal([]byte(raw), &image)
		if err != nil {
			return nil, persistence.NewImageError("Images", ids[i], err)
		}

		images = append(images, &image)
	}

	return images, nil
}

func (p *Persistence) ImageByID(ctx context.Context, id string) (*models.GalleryImage, error) {
	raw, err := p.client.Get(ctx, imageKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, persistence.NewImageError("ImageByID", id, persistence.ErrImageNotFound)
	}

	if err != nil {
		return nil, persistence.NewImageError("ImageByID", id, err)
	}

	var image models.GalleryImage

	err = json.Unmarshal(raw, &image)
	if err != nil {
		return nil, persistence.NewImageError("ImageByID", id, err)
	}

	return &image, nil
}

func (p *Persistence) ClearImages(ctx context.Context) error {
	ids, err := p.client.ZRange(ctx, imageIndexKey, 0, -1).Result()
	if err != nil {
		return persistence.NewImageError("ClearImages", "", err)
	}

	keys := append(prefixed(imageKeyPrefix, ids), imageIndexKey)

	err = p.client.Del(ctx, keys...).Err()
	if err != nil {
		return persistence.NewImageError("ClearImages", "", err)
	}

	return nil
}

// SavePrompt claims the text in a hash with HSETNX, so concurrent writers of
// the same text store it once.
func (p *Persistence) SavePrompt(ctx context.Context, prompt *models.PromptRecord) (bool, error) {
	if prompt == nil || prompt.Text == "" || prompt.ID == "" {
		return false, persistence.NewPromptError("SavePrompt", "", persistence.ErrInvalidRecord)
	}

	claimed, err := p.client.HSetNX(ctx, promptTextsKey, prompt.Text, prompt.ID).Result()
	if err != nil {
		return false, persistence.NewPromptError("SavePrompt", prompt.ID, err)
	}

	if !claimed {
		return false, nil
	}

	data, err := json.Marshal(prompt)
	if err != nil {
		return false, persistence.NewPromptError("SavePrompt", prompt.ID, err)
	}

	_, err = p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, promptKeyPref+prompt.ID, data, 0)
		pipe.ZAdd(ctx, promptIndexKey, redis.Z{Score: float64(prompt.Timestamp), Member: prompt.ID})

		return nil
	})
	if err != nil {
		return false, persistence.NewPromptError("SavePrompt", prompt.ID, err)
	}

	return true, nil
}

func (p *Persistence) Prompts(ctx context.Context, limit int) ([]*models.PromptRecord, error) {
	_, size := persistence.Page(1, limit)

	ids, err := p.client.ZRevRange(ctx, promptIndexKey, 0, int64(size-1)).Result()
	if err != nil {
		return nil, persistence.NewPromptError("Prompts", "", err)
	}

	prompts := make([]*models.PromptRecord, 0, len(ids))
	if len(ids) == 0 {
		return prompts, nil
	}

	values, err := p.client.MGet(ctx, prefixed(promptKeyPref, ids)...).Result()
	if err != nil {
		return nil, persistence.NewPromptError("Prompts", "", err)
	}

	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			continue
		}

		var prompt models.PromptRecord

		err := json.Unmarshal([]byte(raw), &prompt)
		if err != nil {
			return nil, persistence.NewPromptError("Prompts", ids[i], err)
		}

		prompts = append(prompts, &prompt)
	}

	return prompts, nil
}

func prefixed(prefix string, ids []string) []string {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = prefix + id
	}

	return keys
}
