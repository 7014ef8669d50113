package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/owuorvin/jubabuy/internal/db"
	"github.com/owuorvin/jubabuy/internal/filters"
	"github.com/owuorvin/jubabuy/internal/models"
	"github.com/owuorvin/jubabuy/internal/store"
	"github.com/owuorvin/jubabuy/internal/utils"
)

// IListingService defines the interface for listing retrieval and the thin write path.
type IListingService interface {
	// FetchPage returns one page of a kind with images, agent and features attached.
	FetchPage(ctx context.Context, c filters.Criteria) (*models.PageEnvelope, error)
	// FetchFeatured returns up to limit featured active listings of every kind.
	FetchFeatured(ctx context.Context, limit int) (models.Featured, error)
	// GetListing finds a listing by id or slug and records a view.
	GetListing(ctx context.Context, kind models.Kind, idOrSlug string) (*models.Listing, error)
	CreateListing(ctx context.Context, listing *models.Listing) (*models.Listing, error)
	UpdateListing(ctx context.Context, kind models.Kind, id string, patch *models.Listing) (*models.Listing, error)
	DeleteListing(ctx context.Context, kind models.Kind, id string) error
}

// ViewRecorder counts a single-item read.
type ViewRecorder interface {
	RecordView(ctx context.Context, kind models.Kind, id string) error
}

// ImageURLSigner turns a stored object key into a fetchable URL.
type ImageURLSigner interface {
	SignImageURL(ctx context.Context, key string) (string, error)
}

// StoreViewRecorder increments the counter in the request path.
type StoreViewRecorder struct {
	Store store.ListingStore
}

func (r StoreViewRecorder) RecordView(ctx context.Context, kind models.Kind, id string) error {
	return r.Store.IncrementViews(ctx, kind, id)
}

// ListingOption configures the listing service.
type ListingOption func(*listingService)

// WithViewRecorder replaces the inline view counter, e.g. with a task enqueuer.
func WithViewRecorder(r ViewRecorder) ListingOption {
	return func(s *listingService) { s.views = r }
}

// WithImageSigner signs image URLs that are stored as bare object keys.
func WithImageSigner(signer ImageURLSigner) ListingOption {
	return func(s *listingService) { s.signer = signer }
}

type listingService struct {
	store  store.ListingStore
	views  ViewRecorder
	signer ImageURLSigner
	now    func() time.Time
}

// NewListingService creates a new ListingService over any store backend.
func NewListingService(st store.ListingStore, opts ...ListingOption) IListingService {
	s := &listingService{store: st, views: StoreViewRecorder{Store: st}, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FetchPage runs the count and the page query concurrently, then batches the side tables.
func (s *listingService) FetchPage(ctx context.Context, c filters.Criteria) (*models.PageEnvelope, error) {
	q := BuildQuery(c)

	var total int64
	var rows []models.Listing
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.store.CountListings(gctx, q)
		if err != nil {
			return upstream("count "+c.Kind.Plural(), err)
		}
		total = n
		return nil
	})
	g.Go(func() error {
		found, err := s.store.FindListings(gctx, q)
		if err != nil {
			return upstream("find "+c.Kind.Plural(), err)
		}
		rows = found
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	items, err := s.attach(ctx, c.Kind, rows)
	if err != nil {
		return nil, err
	}
	return &models.PageEnvelope{
		Items:      items,
		Pagination: models.NewPagination(c.Page, c.Limit, total),
	}, nil
}

// attach joins images, agents and decoded features onto rows with one query per side table.
func (s *listingService) attach(ctx context.Context, kind models.Kind, rows []models.Listing) ([]models.Listing, error) {
	if len(rows) == 0 {
		return []models.Listing{}, nil
	}

	ids := make([]string, len(rows))
	var agentIDs []string
	seenAgent := make(map[string]bool)
	for i, l := range rows {
		ids[i] = l.ID
		if l.AgentID != "" && !seenAgent[l.AgentID] {
			seenAgent[l.AgentID] = true
			agentIDs = append(agentIDs, l.AgentID)
		}
	}

	images, err := s.store.FindImages(ctx, kind, ids)
	if err != nil {
		return nil, upstream("find images", err)
	}
	byListing := make(map[string][]models.Image, len(rows))
	for _, img := range images {
		img.URL = s.signURL(ctx, img.URL)
		byListing[img.EntityID] = append(byListing[img.EntityID], img)
	}

	agents := map[string]models.Agent{}
	if len(agentIDs) > 0 {
		found, err := s.store.FindAgents(ctx, agentIDs)
		if err != nil {
			return nil, upstream("find agents", err)
		}
		for _, a := range found {
			agents[a.ID] = a
		}
	}

	for i := range rows {
		l := &rows[i]
		group := byListing[l.ID]
		sort.SliceStable(group, func(a, b int) bool { return group[a].Order < group[b].Order })
		if group == nil {
			group = []models.Image{}
		}
		l.Images = group
		if a, ok := agents[l.AgentID]; ok {
			agent := a
			l.Agent = &agent
		}
		l.Features = DecodeFeatures(l.FeaturesRaw)
	}
	return rows, nil
}

func (s *listingService) signURL(ctx context.Context, raw string) string {
	if s.signer == nil || raw == "" || strings.Contains(raw, "://") {
		return raw
	}
	signed, err := s.signer.SignImageURL(ctx, raw)
	if err != nil {
		log.Printf("WARN: could not sign image key %s: %v", raw, err)
		return raw
	}
	return signed
}

// DecodeFeatures reads the stored feature tags: a JSON array, or legacy comma-separated
// text. Order is kept and duplicates dropped.
func DecodeFeatures(raw string) []string {
	raw = strings.TrimSpace(raw)
	out := []string{}
	if raw == "" {
		return out
	}
	var parts []string
	if strings.HasPrefix(raw, "[") {
		if err := json.Unmarshal([]byte(raw), &parts); err != nil {
			parts = strings.Split(strings.Trim(raw, "[]"), ",")
		}
	} else {
		parts = strings.Split(raw, ",")
	}
	seen := make(map[string]bool, len(parts))
	for _, p := range parts {
		p = strings.Trim(strings.TrimSpace(p), `"`)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

// EncodeFeatures is the stored form of feature tags.
func EncodeFeatures(features []string) string {
	clean := DecodeFeatures(strings.Join(features, ","))
	if len(clean) == 0 {
		return ""
	}
	b, _ := json.Marshal(clean)
	return string(b)
}

func (s *listingService) FetchFeatured(ctx context.Context, limit int) (models.Featured, error) {
	if limit < 1 {
		limit = filters.DefaultLimit
	}
	limit = min(limit, filters.MaxLimit)

	pages := make([]*models.PageEnvelope, len(models.Kinds))
	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range models.Kinds {
		c := filters.Default(kind)
		c.Limit = limit
		c.Values["featured"] = true
		g.Go(func() error {
			env, err := s.FetchPage(gctx, c)
			if err != nil {
				return err
			}
			pages[i] = env
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	featured := make(models.Featured, len(models.Kinds))
	for i, kind := range models.Kinds {
		featured[kind] = pages[i].Items
	}
	return featured, nil
}

func (s *listingService) GetListing(ctx context.Context, kind models.Kind, idOrSlug string) (*models.Listing, error) {
	l, err := s.findShaped(ctx, kind, idOrSlug)
	if err != nil {
		return nil, err
	}
	if err := s.views.RecordView(ctx, kind, l.ID); err != nil {
		log.Printf("WARN: failed to record view of %s %s: %v", kind, l.ID, err)
	}
	return l, nil
}

func (s *listingService) findShaped(ctx context.Context, kind models.Kind, idOrSlug string) (*models.Listing, error) {
	l, err := s.store.FindListing(ctx, kind, idOrSlug)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, upstream("find "+string(kind), err)
	}
	shaped, err := s.attach(ctx, kind, []models.Listing{*l})
	if err != nil {
		return nil, err
	}
	return &shaped[0], nil
}

// CreateListing stores a new listing, pending unless a status is given, and returns it shaped.
func (s *listingService) CreateListing(ctx context.Context, listing *models.Listing) (*models.Listing, error) {
	if listing.Status == "" {
		listing.Status = models.StatusPending
	}
	if err := validateListing(listing); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	listing.CreatedAt, listing.UpdatedAt = now, now
	listing.Views = 0
	listing.FeaturesRaw = EncodeFeatures(listing.Features)

	if err := s.saveAgent(ctx, listing); err != nil {
		return nil, err
	}

	err := db.Try(func() error {
		listing.ID = utils.NewSixID().String()
		listing.Slug = utils.Slugify(listing.Title, listing.ID)
		return s.store.InsertListing(ctx, listing)
	})
	if err != nil {
		return nil, upstream("insert listing", fmt.Errorf("failed to insert %s after retries: %w", listing.Kind, err))
	}

	if err := s.saveImages(ctx, listing); err != nil {
		return nil, err
	}
	return s.findShaped(ctx, listing.Kind, listing.ID)
}

// UpdateListing replaces the mutable fields of a listing. Images are replaced only when
// patch carries them.
func (s *listingService) UpdateListing(ctx context.Context, kind models.Kind, id string, patch *models.Listing) (*models.Listing, error) {
	existing, err := s.store.FindListing(ctx, kind, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, upstream("find "+string(kind), err)
	}

	patch.ID = existing.ID
	patch.Kind = kind
	patch.CreatedAt = existing.CreatedAt
	patch.Views = existing.Views
	patch.UpdatedAt = s.now().UTC()
	if patch.Status == "" {
		patch.Status = existing.Status
	}
	if patch.AgentID == "" && patch.Agent == nil {
		patch.AgentID = existing.AgentID
	}
	if patch.Features == nil {
		patch.FeaturesRaw = existing.FeaturesRaw
	} else {
		patch.FeaturesRaw = EncodeFeatures(patch.Features)
	}
	patch.Slug = existing.Slug
	if patch.Title != existing.Title {
		patch.Slug = utils.Slugify(patch.Title, patch.ID)
	}
	if err := validateListing(patch); err != nil {
		return nil, err
	}
	if err := s.saveAgent(ctx, patch); err != nil {
		return nil, err
	}

	if err := s.store.ReplaceListing(ctx, patch); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, upstream("update listing", err)
	}
	if patch.Images != nil {
		if err := s.saveImages(ctx, patch); err != nil {
			return nil, err
		}
	}
	return s.findShaped(ctx, kind, patch.ID)
}

func (s *listingService) DeleteListing(ctx context.Context, kind models.Kind, id string) error {
	if err := s.store.DeleteListing(ctx, kind, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return upstream("delete listing", err)
	}
	return nil
}

func validateListing(l *models.Listing) error {
	if err := l.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidListing, err)
	}
	for _, st := range models.Statuses {
		if l.Status == st {
			return nil
		}
	}
	return fmt.Errorf("%w: unknown status %q", ErrInvalidListing, l.Status)
}

func (s *listingService) saveAgent(ctx context.Context, l *models.Listing) error {
	if l.Agent == nil {
		return nil
	}
	l.Agent.GenIDIfEmpty()
	if err := s.store.UpsertAgent(ctx, l.Agent); err != nil {
		return upstream("upsert agent", err)
	}
	l.AgentID = l.Agent.ID
	return nil
}

func (s *listingService) saveImages(ctx context.Context, l *models.Listing) error {
	images := make([]models.Image, len(l.Images))
	for i, img := range l.Images {
		if img.ID == "" {
			img.ID = utils.NewSixID().String()
		}
		if img.Order == 0 {
			img.Order = i + 1
		}
		images[i] = img
	}
	if len(images) == 0 && l.Images == nil {
		return nil
	}
	if err := s.store.ReplaceImages(ctx, l.Kind, l.ID, images); err != nil {
		return upstream("replace images", err)
	}
	return nil
}
