package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/comfyphone/pkg/models"
	"github.com/dukex/comfyphone/pkg/persistence"
)

// GalleryRepository handles gallery image operations.
type GalleryRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewGalleryRepository creates a new gallery repository.
func NewGalleryRepository(db *sql.DB, logger *slog.Logger) *GalleryRepository {
	return &GalleryRepository{db: db, logger: logger}
}

// SaveImage upserts an image by id.
func (p *Persistence) SaveImage(ctx context.Context, image *models.GalleryImage) error {
	return p.gallery.Save(ctx, image)
}

// Images returns one page of images, newest first.
func (p *Persistence) Images(ctx context.Context, page, limit int) ([]*models.GalleryImage, error) {
	return p.gallery.List(ctx, page, limit)
}

// ImageByID returns one image.
func (p *Persistence) ImageByID(ctx context.Context, id string) (*models.GalleryImage, error) {
	return p.gallery.GetByID(ctx, id)
}

// ClearImages deletes every image row.
func (p *Persistence) ClearImages(ctx context.Context) error {
	return p.gallery.Clear(ctx)
}

func (r *GalleryRepository) Save(ctx context.Context, image *models.GalleryImage) error {
	if image == nil || image.ID == "" {
		return persistence.NewImageError("SaveImage", "", persistence.ErrInvalidRecord)
	}

	workflowJSON, err := json.Marshal(image.Workflow)
	if err != nil {
		return persistence.NewImageError("SaveImage", image.ID, fmt.Errorf("failed to marshal workflow: %w", err))
	}

	query := `
		INSERT INTO gallery_images (id, url, prompt, workflow, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			url = EXCLUDED.url,
			prompt = EXCLUDED.prompt,
			workflow = EXCLUDED.workflow,
			created_at = EXCLUDED.created_at
	`

	_, err = r.db.ExecContext(ctx, query, image.ID, image.URL, image.Prompt, workflowJSON, image.Timestamp)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to save image", "image_id", image.ID, "error", err)

		return persistence.NewImageError("SaveImage", image.ID, err)
	}

	return nil
}

func (r *GalleryRepository) List(ctx context.Context, page, limit int) ([]*models.GalleryImage, error) {
	offset, size := persistence.Page(page, limit)

	query := `
		SELECT id, url, prompt, workflow, created_at
		FROM gallery_images
		ORDER BY created_at DESC, id ASC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.QueryContext(ctx, query, size, offset)
	if err != nil {
		return nil, persistence.NewImageError("Images", "", err)
	}

	defer func() { _ = rows.Close() }()

	images := make([]*models.GalleryImage, 0, size)

	for rows.Next() {
		image, err := scanImage(rows)
		if err != nil {
			return nil, persistence.NewImageError("Images", "", err)
		}

		images = append(images, image)
	}

	err = rows.Err()
	if err != nil {
		return nil, persistence.NewImageError("Images", "", err)
	}

	return images, nil
}

func (r *GalleryRepository) GetByID(ctx context.Context, id string) (*models.GalleryImage, error) {
	query := `SELECT id, url, prompt, workflow, created_at FROM gallery_images WHERE id = $1`

	image, err := scanImage(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewImageError("ImageByID", id, persistence.ErrImageNotFound)
	}

	if err != nil {
		return nil, persistence.NewImageError("ImageByID", id, err)
	}

	return image, nil
}

func (r *GalleryRepository) Clear(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM gallery_images`)
	if err != nil {
		return persistence.NewImageError("ClearImages", "", err)
	}

	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanImage(row scanner) (*models.GalleryImage, error) {
	var (
		image        models.GalleryImage
		workflowJSON []byte
	)

	err := row.Scan(&image.ID, &image.URL, &image.Prompt, &workflowJSON, &image.Timestamp)
	if err != nil {
		return nil, err
	}

	if len(workflowJSON) > 0 {
		err = json.Unmarshal(workflowJSON, &image.Workflow)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal workflow: %w", err)
		}
	}

	return &image, nil
}
