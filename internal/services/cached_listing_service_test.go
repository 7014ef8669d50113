package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/owuorvin/jubabuy/internal/filters"
	"github.com/owuorvin/jubabuy/internal/models"
	"github.com/owuorvin/jubabuy/internal/store"
)

// fakePageCache keeps JSON blobs in a map, the same way the Redis cache encodes them.
type fakePageCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	failGet bool
}

func newFakePageCache() *fakePageCache {
	return &fakePageCache{entries: map[string][]byte{}}
}

func (f *fakePageCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failGet {
		return false, errors.New("redis down")
	}
	raw, ok := f.entries[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dst)
}

func (f *fakePageCache) Set(ctx context.Context, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[key] = raw
	return nil
}

func (f *fakePageCache) InvalidatePrefix(ctx context.Context, prefix string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for k := range f.entries {
		if strings.HasPrefix(k, prefix) {
			delete(f.entries, k)
			n++
		}
	}
	return n, nil
}

func (f *fakePageCache) Flush(ctx context.Context) (int, error) {
	return f.InvalidatePrefix(ctx, "")
}

func (f *fakePageCache) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.entries[key]
	return ok
}

func TestCachedListingService_ReadThrough(t *testing.T) {
	m := store.NewMemoryStore()
	seedDwellings(t, m, 30)
	pc := newFakePageCache()
	svc := NewCachedListingService(NewListingService(m), pc, time.Minute)
	ctx := context.Background()
	c := scenarioCriteria(t, 1)

	first, err := svc.FetchPage(ctx, c)
	require.NoError(t, err)
	assert.True(t, pc.has(c.CacheKey()))
	assert.Equal(t, int64(1), m.Stats().Finds)

	second, err := svc.FetchPage(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, int64(1), m.Stats().Finds)
	assert.Equal(t, first.Pagination, second.Pagination)
	assert.Equal(t, first.Items[0].ID, second.Items[0].ID)
	assert.Equal(t, first.Items[0].Features, second.Items[0].Features)
}

func TestCachedListingService_MutationInvalidatesKindAndFeatured(t *testing.T) {
	m := store.NewMemoryStore()
	seedDwellings(t, m, 3)
	pc := newFakePageCache()
	svc := NewCachedListingService(NewListingService(m), pc, time.Minute)
	ctx := context.Background()

	_, err := svc.FetchPage(ctx, filters.Default(models.KindDwelling))
	require.NoError(t, err)
	_, err = svc.FetchPage(ctx, filters.Default(models.KindVehicle))
	require.NoError(t, err)
	_, err = svc.FetchFeatured(ctx, 4)
	require.NoError(t, err)
	require.Len(t, pc.entries, 3)

	require.NoError(t, svc.DeleteListing(ctx, models.KindDwelling, "d00"))

	assert.False(t, pc.has(filters.Default(models.KindDwelling).CacheKey()))
	assert.False(t, pc.has(filters.FeaturedKey(4)))
	assert.True(t, pc.has(filters.Default(models.KindVehicle).CacheKey()))
}

func TestCachedListingService_FailuresAreNotCached(t *testing.T) {
	m := store.NewMemoryStore()
	pc := newFakePageCache()
	svc := NewCachedListingService(NewListingService(&failingStore{MemoryStore: m}), pc, time.Minute)

	_, err := svc.FetchPage(context.Background(), filters.Default(models.KindParcel))
	require.Error(t, err)
	assert.Empty(t, pc.entries)
}

func TestCachedListingService_CacheErrorFallsThrough(t *testing.T) {
	m := store.NewMemoryStore()
	seedDwellings(t, m, 2)
	pc := newFakePageCache()
	pc.failGet = true
	svc := NewCachedListingService(NewListingService(m), pc, time.Minute)

	env, err := svc.FetchPage(context.Background(), filters.Default(models.KindDwelling))
	require.NoError(t, err)
	assert.Len(t, env.Items, 2)
}
