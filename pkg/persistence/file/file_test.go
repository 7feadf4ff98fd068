package file

import (
	"fmt"
	"math"
	"path/filepath"
	"testing"

	"github.com/dukex/comfyphone/pkg/models"
	"github.com/dukex/comfyphone/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPersistence(t *testing.T) {
	// Test with regular path
	p := NewPersistence("/tmp/test")
	fp := p.(*Persistence)
	assert.Equal(t, "/tmp/test", fp.root)

	// Test with file:// prefix
	p = NewPersistence("file:///tmp/test")
	fp = p.(*Persistence)
	assert.Equal(t, "/tmp/test", fp.root)
}

func TestPersistence_Close(t *testing.T) {
	p := NewPersistence("./test-data")
	err := p.Close(t.Context())
	assert.NoError(t, err)
}

func TestPersistence_HealthCheck(t *testing.T) {
	p := NewPersistence(t.TempDir())
	require.NoError(t, p.HealthCheck(t.Context()))

	missing := NewPersistence(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, missing.HealthCheck(t.Context()))
}

func TestPersistence_SaveImage(t *testing.T) {
	testDir := t.TempDir()
	p := NewPersistence(testDir)

	image := &models.GalleryImage{
		ID:        "img-1",
		URL:       "http://127.0.0.1:8188/view?filename=a.png&subfolder=&type=output",
		Prompt:    "1girl",
		Timestamp: 1700000000000,
		Workflow:  models.Graph{"6": {ClassType: "CLIPTextEncode", Inputs: map[string]any{"text": "1girl"}}},
	}

	require.NoError(t, p.SaveImage(t.Context(), image))
	assert.FileExists(t, filepath.Join(testDir, "images", "img-1.json"))

	loaded, err := p.ImageByID(t.Context(), "img-1")
	require.NoError(t, err)
	assert.Equal(t, image.URL, loaded.URL)
	assert.Equal(t, "1girl", loaded.Workflow["6"].Inputs["text"])
}

func TestPersistence_SaveImage_Invalid(t *testing.T) {
	p := NewPersistence(t.TempDir())

	err := p.SaveImage(t.Context(), &models.GalleryImage{})
	assert.True(t, persistence.IsInvalidRecord(err))
}

func TestPersistence_ImageByID_NotFound(t *testing.T) {
	p := NewPersistence(t.TempDir())

	image, err := p.ImageByID(t.Context(), "nope")
	assert.Nil(t, image)
	assert.True(t, persistence.IsImageNotFound(err))
}

func TestPersistence_Images_NewestFirstAndPaged(t *testing.T) {
	p := NewPersistence(t.TempDir())

	for i := range 5 {
		require.NoError(t, p.SaveImage(t.Context(), &models.GalleryImage{
			ID:        fmt.Sprintf("img-%d", i),
			URL:       "http://example.com/" + fmt.Sprint(i),
			Timestamp: int64(1000 + i),
		}))
	}

	first, err := p.Images(t.Context(), 1, 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, "img-4", first[0].ID)
	assert.Equal(t, "img-3", first[1].ID)

	last, err := p.Images(t.Context(), 3, 2)
	require.NoError(t, err)
	require.Len(t, last, 1)
	assert.Equal(t, "img-0", last[0].ID)

	beyond, err := p.Images(t.Context(), 10, 2)
	require.NoError(t, err)
	assert.Empty(t, beyond)

	assert.NotPanics(t, func() {
		huge, err := p.Images(t.Context(), math.MaxInt, 2)
		require.NoError(t, err)
		assert.Empty(t, huge)
	})
}

func TestPersistence_ClearImages(t *testing.T) {
	p := NewPersistence(t.TempDir())

	require.NoError(t, p.SaveImage(t.Context(), &models.GalleryImage{ID: "a", URL: "http://x/a", Timestamp: 1}))
	require.NoError(t, p.ClearImages(t.Context()))

	images, err := p.Images(t.Context(), 1, 10)
	require.NoError(t, err)
	assert.Empty(t, images)
}

func TestPersistence_SavePrompt_Dedupes(t *testing.T) {
	p := NewPersistence(t.TempDir())

	stored, err := p.SavePrompt(t.Context(), &models.PromptRecord{ID: "p1", Text: "1girl, solo", Timestamp: 1})
	require.NoError(t, err)
	assert.True(t, stored)

	stored, err = p.SavePrompt(t.Context(), &models.PromptRecord{ID: "p2", Text: "1girl, solo", Timestamp: 2})
	require.NoError(t, err)
	assert.False(t, stored)

	stored, err = p.SavePrompt(t.Context(), &models.PromptRecord{ID: "p3", Text: "landscape", Timestamp: 3})
	require.NoError(t, err)
	assert.True(t, stored)

	prompts, err := p.Prompts(t.Context(), 10)
	require.NoError(t, err)
	require.Len(t, prompts, 2)
	assert.Equal(t, "landscape", prompts[0].Text)
	assert.Equal(t, "p1", prompts[1].ID)

	limited, err := p.Prompts(t.Context(), 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestPersistence_Prompts_Empty(t *testing.T) {
	p := NewPersistence(t.TempDir())

	prompts, err := p.Prompts(t.Context(), 10)
	require.NoError(t, err)
	assert.Empty(t, prompts)
}
