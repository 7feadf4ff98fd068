// Package persistence provides the storage boundary for generation history:
// gallery images and remembered prompts.
package persistence

import (
	"context"
	"math"

	"github.com/dukex/comfyphone/pkg/models"
)

const (
	// DefaultPageSize is used when a listing asks for a non-positive limit.
	DefaultPageSize = 50
	// MaxPageSize caps any listing.
	MaxPageSize = 500
	// MaxOffset caps the offset a page can address.
	MaxOffset = math.MaxInt32
)

type Persistence interface {
	// SaveImage stores a gallery image, replacing one with the same id.
	SaveImage(ctx context.Context, image *models.GalleryImage) error
	// Images lists gallery images newest first. page is 1-based.
	Images(ctx context.Context, page, limit int) ([]*models.GalleryImage, error)
	// ImageByID returns one gallery image.
	ImageByID(ctx context.Context, id string) (*models.GalleryImage, error)
	// ClearImages removes every gallery image.
	ClearImages(ctx context.Context) error

	// SavePrompt remembers a prompt text. It reports false when the same text
	// was already stored.
	SavePrompt(ctx context.Context, prompt *models.PromptRecord) (bool, error)
	// Prompts lists remembered prompts newest first.
	Prompts(ctx context.Context, limit int) ([]*models.PromptRecord, error)

	HealthCheck(ctx context.Context) error

	Close(ctx context.Context) error
}

// Page normalizes paging arguments into an offset and a limit. The offset
// never exceeds MaxOffset, so pages past the end stay empty.
func Page(page, limit int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageSize
	}

	limit = min(limit, MaxPageSize)

	if page < 1 {
		page = 1
	}

	if page-1 > MaxOffset/limit {
		return MaxOffset, limit
	}

	return (page - 1) * limit, limit
}
