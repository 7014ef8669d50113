package services

import (
	"context"

	"github.com/owuorvin/jubabuy/internal/store"
)

// IFavoriteService toggles and lists a user's favorite listings.
type IFavoriteService interface {
	// Toggle flips membership and returns the authoritative new state.
	Toggle(ctx context.Context, userID, listingID string) (bool, error)
	List(ctx context.Context, userID string) ([]string, error)
}

type favoriteService struct {
	store store.FavoriteStore
}

// NewFavoriteService creates a new FavoriteService.
func NewFavoriteService(st store.FavoriteStore) IFavoriteService {
	return &favoriteService{store: st}
}

func (s *favoriteService) Toggle(ctx context.Context, userID, listingID string) (bool, error) {
	on, err := s.store.ToggleFavorite(ctx, userID, listingID)
	if err != nil {
		return false, upstream("toggle favorite", err)
	}
	return on, nil
}

func (s *favoriteService) List(ctx context.Context, userID string) ([]string, error) {
	ids, err := s.store.ListFavorites(ctx, userID)
	if err != nil {
		return nil, upstream("list favorites", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}
