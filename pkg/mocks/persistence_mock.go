package mocks

import (
	"context"

	"github.com/dukex/comfyphone/pkg/models"
	"github.com/stretchr/testify/mock"
)

// MockPersistence is a mock implementation of persistence.Persistence interface.
type MockPersistence struct {
	mock.Mock
}

func (m *MockPersistence) SaveImage(ctx context.Context, image *models.GalleryImage) error {
	args := m.Called(ctx, image)

	return args.Error(0)
}

func (m *MockPersistence) Images(ctx context.Context, page, limit int) ([]*models.GalleryImage, error) {
	args := m.Called(ctx, page, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.GalleryImage), args.Error(1)
}

func (m *MockPersistence) ImageByID(ctx context.Context, id string) (*models.GalleryImage, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.GalleryImage), args.Error(1)
}

func (m *MockPersistence) ClearImages(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) SavePrompt(ctx context.Context, prompt *models.PromptRecord) (bool, error) {
	args := m.Called(ctx, prompt)

	return args.Bool(0), args.Error(1)
}

func (m *MockPersistence) Prompts(ctx context.Context, limit int) ([]*models.PromptRecord, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.PromptRecord), args.Error(1)
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
