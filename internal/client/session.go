package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/owuorvin/jubabuy/internal/auth"
	"github.com/owuorvin/jubabuy/internal/config"
	"github.com/owuorvin/jubabuy/internal/filters"
	"github.com/owuorvin/jubabuy/internal/models"
)

// Profile is what the client knows about the signed-in user. It is read from the
// token's claims without verifying them; the server does the verification.
type Profile struct {
	UserID    string    `json:"user_id"`
	IsAdmin   bool      `json:"is_admin"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// Session is the root of the client. It owns the one CacheStore every component
// reads through, and the persisted auth state.
type Session struct {
	API       IMarketAPI
	Cache     *CacheStore
	Fetcher   *Fetcher
	Favorites *Favorites

	cfg   *config.ClientConfig
	prefs Prefs
	clock Clock
	token func(string)

	profile *Profile
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithAPI replaces the HTTP API client, for tests.
func WithAPI(api IMarketAPI) SessionOption {
	return func(s *Session) { s.API = api }
}

// WithSessionClock sets the clock of the cache and the debounce timers.
func WithSessionClock(c Clock) SessionOption {
	return func(s *Session) { s.clock = c }
}

// WithPrefs uses prefs instead of opening cfg.PrefsPath.
func WithPrefs(p Prefs) SessionOption {
	return func(s *Session) { s.prefs = p }
}

// NewSession opens the prefs store, restores the stored token and favorites, and
// wires the client components.
func NewSession(cfg *config.ClientConfig, opts ...SessionOption) (*Session, error) {
	s := &Session{cfg: cfg, clock: SystemClock(), token: func(string) {}}
	for _, opt := range opts {
		opt(s)
	}

	if s.API == nil {
		s.API = NewAPI(cfg.APIURL, cfg.RequestTimeout)
	}
	if ts, ok := s.API.(interface{ SetToken(string) }); ok {
		s.token = ts.SetToken
	}
	if s.prefs == nil {
		prefs, err := OpenSQLitePrefs(cfg.PrefsPath)
		if err != nil {
			return nil, err
		}
		s.prefs = prefs
	}

	s.Cache = NewCacheStore(s.clock)
	s.Fetcher = NewFetcher(s.API, s.Cache, TTLs{
		Aggregate: cfg.AggregateTTL,
		Listings:  cfg.ListingsTTL,
		Reference: cfg.ReferenceTTL,
	})
	s.Favorites = NewFavorites(s.API, s.prefs, s.Cache, cfg.ReferenceTTL)

	if token, ok, err := s.prefs.Get(PrefAuthToken); err != nil {
		return nil, err
	} else if ok {
		s.token(token)
	}
	if raw, ok, err := s.prefs.Get(PrefAuthProfile); err != nil {
		return nil, err
	} else if ok {
		var p Profile
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			log.Printf("WARN: ignoring unreadable stored profile: %v", err)
		} else {
			s.profile = &p
		}
	}
	if err := s.Favorites.Load(); err != nil {
		log.Printf("WARN: ignoring stored favorites: %v", err)
	}
	return s, nil
}

// ParseProfile reads the claims of token without checking its signature.
func ParseProfile(token string) (*Profile, error) {
	claims := &auth.Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("failed to read token: %w", err)
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("token carries no user id")
	}
	p := &Profile{UserID: claims.UserID, IsAdmin: claims.IsAdmin}
	if claims.ExpiresAt != nil {
		p.ExpiresAt = claims.ExpiresAt.Time
	}
	return p, nil
}

// Login stores token and its profile, drops everything cached for the previous user
// and loads the new user's favorites.
func (s *Session) Login(ctx context.Context, token string) (*Profile, error) {
	p, err := ParseProfile(token)
	if err != nil {
		return nil, err
	}
	raw, _ := json.Marshal(p)
	if err := s.prefs.Set(PrefAuthToken, token); err != nil {
		return nil, err
	}
	if err := s.prefs.Set(PrefAuthProfile, string(raw)); err != nil {
		return nil, err
	}
	s.token(token)
	s.profile = p
	s.Favorites.Reset()
	s.Cache.Clear()
	if err := s.Favorites.Refresh(ctx); err != nil {
		return p, fmt.Errorf("signed in, but favorites could not be loaded: %w", err)
	}
	return p, nil
}

// Logout forgets the token, the profile and the favorites, and clears the cache.
// Background work of the old session finishes first so it cannot refill the cache.
func (s *Session) Logout() error {
	s.Favorites.Wait()
	s.Fetcher.WaitPrefetches()
	s.token("")
	s.profile = nil
	s.Favorites.Reset()
	s.Cache.Clear()
	return s.prefs.Delete(PrefAuthToken, PrefAuthProfile, PrefFavorites)
}

// Profile returns the signed-in user, or nil.
func (s *Session) Profile() *Profile {
	return s.profile
}

// Browser is the list view of one kind: its filter state and its stitched pages.
type Browser struct {
	Kind    models.Kind
	Filters *FilterApplier
	Pages   *Stitcher
}

// Close stops the filter applier.
func (b *Browser) Close() {
	b.Filters.Close()
}

// Browse creates a Browser for kind. Nothing is fetched until Start, an edit or Clear.
func (s *Session) Browse(ctx context.Context, kind models.Kind) (*Browser, error) {
	pages := NewStitcher(s.Fetcher, s.cfg.ScrollThreshold)
	defaults := map[string]string{}
	if s.cfg.PageLimit > 0 && s.cfg.PageLimit != filters.DefaultLimit {
		defaults["limit"] = strconv.Itoa(s.cfg.PageLimit)
	}
	applier, err := NewFilterApplier(ctx, kind, pages.Reset,
		WithDefaults(defaults),
		WithQuietPeriod(s.cfg.Debounce),
		WithClock(s.clock),
		WithSupersede(pages.Supersede),
	)
	if err != nil {
		return nil, err
	}
	return &Browser{Kind: kind, Filters: applier, Pages: pages}, nil
}

// Start loads the first page with the current filters and waits for it.
func (b *Browser) Start(ctx context.Context) error {
	return b.Pages.Reset(ctx, b.Filters.Criteria())
}

// FetchPage reads one page through the cache.
func (s *Session) FetchPage(ctx context.Context, c filters.Criteria) (*models.PageEnvelope, error) {
	return s.Fetcher.FetchPage(ctx, c)
}

// FetchFeatured reads the featured view through the cache.
func (s *Session) FetchFeatured(ctx context.Context, limit int) (models.Featured, error) {
	return s.Fetcher.FetchFeatured(ctx, limit)
}

// Invalidate drops the cached pages of kind.
func (s *Session) Invalidate(kind models.Kind) int {
	return s.Fetcher.Invalidate(kind)
}

// CreateListing creates a listing and drops the cached pages of its kind.
func (s *Session) CreateListing(ctx context.Context, l *models.Listing) (*models.Listing, error) {
	created, err := s.API.CreateListing(ctx, l)
	if err != nil {
		return nil, err
	}
	s.Invalidate(l.Kind)
	return created, nil
}

// UpdateListing updates a listing and drops the cached pages of its kind.
func (s *Session) UpdateListing(ctx context.Context, kind models.Kind, id string, patch *models.Listing) (*models.Listing, error) {
	updated, err := s.API.UpdateListing(ctx, kind, id, patch)
	if err != nil {
		return nil, err
	}
	s.Invalidate(kind)
	return updated, nil
}

// DeleteListing deletes a listing and drops the cached pages of its kind.
func (s *Session) DeleteListing(ctx context.Context, kind models.Kind, id string) error {
	if err := s.API.DeleteListing(ctx, kind, id); err != nil {
		return err
	}
	s.Invalidate(kind)
	return nil
}

// Close waits for favorite toggles and background prefetches, then closes the prefs store.
func (s *Session) Close() error {
	s.Favorites.Wait()
	s.Fetcher.WaitPrefetches()
	return s.prefs.Close()
}
