package mocks

import (
	"context"

	"github.com/dukex/comfyphone/pkg/models"
	"github.com/stretchr/testify/mock"
)

// MockTagSource is a mock implementation of tags.Source interface.
type MockTagSource struct {
	mock.Mock
}

func (m *MockTagSource) Search(ctx context.Context, term string) ([]models.TagSuggestion, error) {
	args := m.Called(ctx, term)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]models.TagSuggestion), args.Error(1)
}
