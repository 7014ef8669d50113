package handlers_test

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/owuorvin/jubabuy/internal/filters"
	"github.com/owuorvin/jubabuy/internal/models"
)

// --- Mocks ---

// MockListingService implements services.IListingService
type MockListingService struct {
	mock.Mock
}

func (m *MockListingService) FetchPage(ctx context.Context, c filters.Criteria) (*models.PageEnvelope, error) {
	args := m.Called(ctx, c)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PageEnvelope), args.Error(1)
}

func (m *MockListingService) FetchFeatured(ctx context.Context, limit int) (models.Featured, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(models.Featured), args.Error(1)
}

func (m *MockListingService) GetListing(ctx context.Context, kind models.Kind, idOrSlug string) (*models.Listing, error) {
	args := m.Called(ctx, kind, idOrSlug)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Listing), args.Error(1)
}

func (m *MockListingService) CreateListing(ctx context.Context, listing *models.Listing) (*models.Listing, error) {
	args := m.Called(ctx, listing)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Listing), args.Error(1)
}

func (m *MockListingService) UpdateListing(ctx context.Context, kind models.Kind, id string, patch *models.Listing) (*models.Listing, error) {
	args := m.Called(ctx, kind, id, patch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Listing), args.Error(1)
}

func (m *MockListingService) DeleteListing(ctx context.Context, kind models.Kind, id string) error {
	args := m.Called(ctx, kind, id)
	return args.Error(0)
}

// MockFavoriteService implements services.IFavoriteService
type MockFavoriteService struct {
	mock.Mock
}

func (m *MockFavoriteService) Toggle(ctx context.Context, userID, listingID string) (bool, error) {
	args := m.Called(ctx, userID, listingID)
	return args.Bool(0), args.Error(1)
}

func (m *MockFavoriteService) List(ctx context.Context, userID string) ([]string, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}
