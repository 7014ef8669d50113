package client

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/owuorvin/jubabuy/internal/filters"
	"github.com/owuorvin/jubabuy/internal/models"
)

// TTLs is the cache lifetime of each class of response.
type TTLs struct {
	Aggregate time.Duration // featured view
	Listings  time.Duration // kind pages
	Reference time.Duration // favorite ids
}

// DefaultTTLs are used when a Session is built without configuration.
var DefaultTTLs = TTLs{
	Aggregate: 2 * time.Minute,
	Listings:  5 * time.Minute,
	Reference: 15 * time.Minute,
}

// fetchTimeout bounds a shared network call. Callers that join it stop waiting on
// their own context, but the call itself outlives any one of them.
const fetchTimeout = 30 * time.Second

// Fetcher reads pages through the cache. Concurrent requests for the same key share
// one network call, and a failed call writes nothing.
type Fetcher struct {
	api   IMarketAPI
	cache *CacheStore
	ttls  TTLs

	group      singleflight.Group
	prefetches sync.WaitGroup
}

// NewFetcher creates a read-through fetcher over api and cache.
func NewFetcher(api IMarketAPI, cache *CacheStore, ttls TTLs) *Fetcher {
	return &Fetcher{api: api, cache: cache, ttls: ttls}
}

// FetchPage returns the page of c from the cache or the network.
func (f *Fetcher) FetchPage(ctx context.Context, c filters.Criteria) (*models.PageEnvelope, error) {
	key := c.CacheKey()
	if env, ok := f.cache.GetPage(key); ok {
		return env, nil
	}

	ch := f.group.DoChan(key, func() (any, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
		defer cancel()
		env, err := f.api.FetchPage(callCtx, c)
		if err != nil {
			return nil, err
		}
		f.cache.Set(key, env, f.ttls.Listings)
		return env, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*models.PageEnvelope), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Prefetch loads the page of c into the cache in the background. Failures are
// dropped; a page already cached or in flight is not requested again. The prefetch
// waits out the shared call, so WaitPrefetches covers its cache write.
func (f *Fetcher) Prefetch(c filters.Criteria) {
	if _, ok := f.cache.GetPage(c.CacheKey()); ok {
		return
	}
	f.prefetches.Add(1)
	go func() {
		defer f.prefetches.Done()
		if _, err := f.FetchPage(context.Background(), c); err != nil {
			log.Printf("client: prefetch of %s page %d failed: %v", c.Kind, c.Page, err)
		}
	}()
}

// WaitPrefetches blocks until background prefetches have finished.
func (f *Fetcher) WaitPrefetches() {
	f.prefetches.Wait()
}

// FetchFeatured returns the featured aggregate from the cache or the network.
func (f *Fetcher) FetchFeatured(ctx context.Context, limit int) (models.Featured, error) {
	key := filters.FeaturedKey(limit)
	if featured, ok := f.cache.GetFeatured(key); ok {
		return featured, nil
	}
	ch := f.group.DoChan(key, func() (any, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
		defer cancel()
		featured, err := f.api.FetchFeatured(callCtx, limit)
		if err != nil {
			return nil, err
		}
		f.cache.Set(key, featured, f.ttls.Aggregate)
		return featured, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(models.Featured), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Invalidate drops every cached page of kind and every featured aggregate.
func (f *Fetcher) Invalidate(kind models.Kind) int {
	return f.cache.Invalidate(filters.KindPrefix(kind)) + f.cache.Invalidate(filters.FeaturedPrefix)
}
