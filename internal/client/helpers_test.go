package client

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/owuorvin/jubabuy/internal/filters"
	"github.com/owuorvin/jubabuy/internal/models"
)

// fakeClock only moves when Advance is called. Due timers fire synchronously inside Advance.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.f()
	}
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// MockMarketAPI is a mock implementation of IMarketAPI
type MockMarketAPI struct {
	mock.Mock
}

func (m *MockMarketAPI) FetchPage(ctx context.Context, c filters.Criteria) (*models.PageEnvelope, error) {
	args := m.Called(ctx, c)
	var env *models.PageEnvelope
	if v := args.Get(0); v != nil {
		env = v.(*models.PageEnvelope)
	}
	return env, args.Error(1)
}

func (m *MockMarketAPI) FetchFeatured(ctx context.Context, limit int) (models.Featured, error) {
	args := m.Called(ctx, limit)
	var f models.Featured
	if v := args.Get(0); v != nil {
		f = v.(models.Featured)
	}
	return f, args.Error(1)
}

func (m *MockMarketAPI) GetListing(ctx context.Context, kind models.Kind, idOrSlug string) (*models.Listing, error) {
	args := m.Called(ctx, kind, idOrSlug)
	var l *models.Listing
	if v := args.Get(0); v != nil {
		l = v.(*models.Listing)
	}
	return l, args.Error(1)
}

func (m *MockMarketAPI) CreateListing(ctx context.Context, listing *models.Listing) (*models.Listing, error) {
	args := m.Called(ctx, listing)
	var l *models.Listing
	if v := args.Get(0); v != nil {
		l = v.(*models.Listing)
	}
	return l, args.Error(1)
}

func (m *MockMarketAPI) UpdateListing(ctx context.Context, kind models.Kind, id string, patch *models.Listing) (*models.Listing, error) {
	args := m.Called(ctx, kind, id, patch)
	var l *models.Listing
	if v := args.Get(0); v != nil {
		l = v.(*models.Listing)
	}
	return l, args.Error(1)
}

func (m *MockMarketAPI) DeleteListing(ctx context.Context, kind models.Kind, id string) error {
	args := m.Called(ctx, kind, id)
	return args.Error(0)
}

func (m *MockMarketAPI) ToggleFavorite(ctx context.Context, listingID string) (bool, error) {
	args := m.Called(ctx, listingID)
	return args.Bool(0), args.Error(1)
}

func (m *MockMarketAPI) ListFavorites(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	var ids []string
	if v := args.Get(0); v != nil {
		ids = v.([]string)
	}
	return ids, args.Error(1)
}

// envelope builds page of a result set of total dwellings, limit per page.
func envelope(page, limit int, total int64) *models.PageEnvelope {
	env := &models.PageEnvelope{Pagination: models.NewPagination(page, limit, total)}
	first := int64((page - 1) * limit)
	for i := first; i < first+int64(limit) && i < total; i++ {
		env.Items = append(env.Items, models.Listing{
			ID:       fmt.Sprintf("L%d", i+1),
			Kind:     models.KindDwelling,
			Dwelling: &models.Dwelling{Bedrooms: 2},
		})
	}
	return env
}

func pageOf(n int) any {
	return mock.MatchedBy(func(c filters.Criteria) bool { return c.Page == n })
}

func dwellings(limit int) filters.Criteria {
	c := filters.Default(models.KindDwelling)
	c.Limit = limit
	return c
}

func ids(items []models.Listing) []string {
	out := make([]string, len(items))
	for i, l := range items {
		out[i] = l.ID
	}
	return out
}
