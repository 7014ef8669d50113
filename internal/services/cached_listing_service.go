package services

import (
	"context"
	"log"
	"time"

	"github.com/owuorvin/jubabuy/internal/cache"
	"github.com/owuorvin/jubabuy/internal/filters"
	"github.com/owuorvin/jubabuy/internal/models"
)

// cachedListingService is a read-through decorator over IListingService. Reads of pages and
// featured aggregates are served from the page cache; every successful mutation drops the
// kind's pages and the featured aggregates. Cache failures are logged and never returned.
type cachedListingService struct {
	IListingService
	pages cache.IPageCache
	ttl   time.Duration
}

// NewCachedListingService wraps inner with the page cache.
func NewCachedListingService(inner IListingService, pages cache.IPageCache, ttl time.Duration) IListingService {
	return &cachedListingService{IListingService: inner, pages: pages, ttl: ttl}
}

func (s *cachedListingService) FetchPage(ctx context.Context, c filters.Criteria) (*models.PageEnvelope, error) {
	key := c.CacheKey()
	var env models.PageEnvelope
	if s.get(ctx, key, &env) {
		return &env, nil
	}
	fresh, err := s.IListingService.FetchPage(ctx, c)
	if err != nil {
		return nil, err
	}
	s.set(ctx, key, fresh)
	return fresh, nil
}

func (s *cachedListingService) FetchFeatured(ctx context.Context, limit int) (models.Featured, error) {
	key := filters.FeaturedKey(limit)
	var featured models.Featured
	if s.get(ctx, key, &featured) {
		return featured, nil
	}
	fresh, err := s.IListingService.FetchFeatured(ctx, limit)
	if err != nil {
		return nil, err
	}
	s.set(ctx, key, fresh)
	return fresh, nil
}

func (s *cachedListingService) CreateListing(ctx context.Context, listing *models.Listing) (*models.Listing, error) {
	created, err := s.IListingService.CreateListing(ctx, listing)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, created.Kind)
	return created, nil
}

func (s *cachedListingService) UpdateListing(ctx context.Context, kind models.Kind, id string, patch *models.Listing) (*models.Listing, error) {
	updated, err := s.IListingService.UpdateListing(ctx, kind, id, patch)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, kind)
	return updated, nil
}

func (s *cachedListingService) DeleteListing(ctx context.Context, kind models.Kind, id string) error {
	if err := s.IListingService.DeleteListing(ctx, kind, id); err != nil {
		return err
	}
	s.invalidate(ctx, kind)
	return nil
}

func (s *cachedListingService) get(ctx context.Context, key string, dst any) bool {
	hit, err := s.pages.Get(ctx, key, dst)
	if err != nil {
		log.Printf("WARN: page cache read %s: %v", key, err)
		return false
	}
	return hit
}

func (s *cachedListingService) set(ctx context.Context, key string, v any) {
	if err := s.pages.Set(ctx, key, v, s.ttl); err != nil {
		log.Printf("WARN: page cache write %s: %v", key, err)
	}
}

func (s *cachedListingService) invalidate(ctx context.Context, kind models.Kind) {
	for _, prefix := range []string{filters.KindPrefix(kind), filters.FeaturedPrefix} {
		if _, err := s.pages.InvalidatePrefix(ctx, prefix); err != nil {
			log.Printf("WARN: page cache invalidate %s: %v", prefix, err)
		}
	}
}
