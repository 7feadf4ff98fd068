package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dukex/comfyphone/pkg/models"
	"github.com/dukex/comfyphone/pkg/persistence"
)

const imagesDir = "images"

// SaveImage writes the image as images/<id>.json.
func (fp *Persistence) SaveImage(_ context.Context, image *models.GalleryImage) error {
	if image == nil || image.ID == "" {
		return persistence.NewImageError("SaveImage", "", persistence.ErrInvalidRecord)
	}

	fp.mu.Lock()
	defer fp.mu.Unlock()

	err := os.MkdirAll(fp.dir(imagesDir), 0o750)
	if err != nil {
		return persistence.NewImageError("SaveImage", image.ID, err)
	}

	data, err := json.MarshalIndent(image, "", "  ")
	if err != nil {
		return persistence.NewImageError("SaveImage", image.ID, err)
	}

	err = os.WriteFile(fp.imagePath(image.ID), data, 0o600)
	if err != nil {
		return persistence.NewImageError("SaveImage", image.ID, err)
	}

	return nil
}

// Images loads every stored image, sorts newest first and slices the requested page.
func (fp *Persistence) Images(_ context.Context, page, limit int) ([]*models.GalleryImage, error) {
	fp.mu.RLock()
	defer fp.mu.RUnlock()

	images, err := fp.loadImages()
	if err != nil {
		return nil, persistence.NewImageError("Images", "", err)
	}

	slices.SortStableFunc(images, func(a, b *models.GalleryImage) int {
		if a.Timestamp != b.Timestamp {
			return compareDesc(a.Timestamp, b.Timestamp)
		}

		return strings.Compare(a.ID, b.ID)
	})

	offset, size := persistence.Page(page, limit)
	if offset < 0 || offset >= len(images) {
		return []*models.GalleryImage{}, nil
	}

	return images[offset:min(offset+size, len(images))], nil
}

// ImageByID reads one image document.
func (fp *Persistence) ImageByID(_ context.Context, id string) (*models.GalleryImage, error) {
	fp.mu.RLock()
	defer fp.mu.RUnlock()

	image, err := fp.readImage(fp.imagePath(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, persistence.NewImageError("ImageByID", id, persistence.ErrImageNotFound)
	}

	if err != nil {
		return nil, persistence.NewImageError("ImageByID", id, err)
	}

	return image, nil
}

// ClearImages removes the images directory.
func (fp *Persistence) ClearImages(_ context.Context) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	err := os.RemoveAll(fp.dir(imagesDir))
	if err != nil {
		return persistence.NewImageError("ClearImages", "", err)
	}

	return nil
}

func (fp *Persistence) imagePath(id string) string {
	return filepath.Join(fp.dir(imagesDir), filepath.Base(id)+".json")
}

func (fp *Persistence) loadImages() ([]*models.GalleryImage, error) {
	files, err := filepath.Glob(filepath.Join(fp.dir(imagesDir), "*.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to list image files: %w", err)
	}

	images := make([]*models.GalleryImage, 0, len(files))

	for _, file := range files {
		image, err := fp.readImage(file)
		if err != nil {
			return nil, fmt.Errorf("failed to load image %s: %w", filepath.Base(file), err)
		}

		images = append(images, image)
	}

	return images, nil
}

func (fp *Persistence) readImage(path string) (*models.GalleryImage, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is built from the configured root
	if err != nil {
		return nil, err
	}

	var image models.GalleryImage

	err = json.Unmarshal(data, &image)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	return &image, nil
}

func compareDesc(a, b int64) int {
	switch {
	case a > b:
		return -1
	case a < b:
		return 1
	default:
		return 0
	}
}
