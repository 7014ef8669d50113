package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/owuorvin/jubabuy/internal/filters"
	"github.com/owuorvin/jubabuy/internal/models"
)

func TestFetcher_ReadThrough(t *testing.T) {
	api := new(MockMarketAPI)
	clock := newFakeClock()
	f := NewFetcher(api, NewCacheStore(clock), DefaultTTLs)
	api.On("FetchPage", mock.Anything, pageOf(1)).Return(envelope(1, 12, 30), nil).Twice()

	ctx := context.Background()
	_, err := f.FetchPage(ctx, dwellings(12))
	require.NoError(t, err)
	env, err := f.FetchPage(ctx, dwellings(12))
	require.NoError(t, err)
	assert.Len(t, env.Items, 12)
	api.AssertNumberOfCalls(t, "FetchPage", 1)

	clock.Advance(DefaultTTLs.Listings)
	_, err = f.FetchPage(ctx, dwellings(12))
	require.NoError(t, err)
	api.AssertNumberOfCalls(t, "FetchPage", 2)
}

func TestFetcher_FailureWritesNothing(t *testing.T) {
	api := new(MockMarketAPI)
	cache := NewCacheStore(newFakeClock())
	f := NewFetcher(api, cache, DefaultTTLs)
	boom := &UpstreamError{Status: 502, Message: "bad gateway"}
	api.On("FetchPage", mock.Anything, mock.Anything).Return(nil, boom)

	_, err := f.FetchPage(context.Background(), dwellings(12))
	var ue *UpstreamError
	require.True(t, errors.As(err, &ue))
	assert.True(t, ue.Retryable())
	assert.Equal(t, 0, cache.Len())
}

func TestFetcher_ConcurrentRequestsShareOneCall(t *testing.T) {
	api := new(MockMarketAPI)
	f := NewFetcher(api, NewCacheStore(newFakeClock()), DefaultTTLs)
	release := make(chan time.Time)
	api.On("FetchPage", mock.Anything, pageOf(2)).WaitUntil(release).Return(envelope(2, 12, 30), nil)

	c := dwellings(12).WithPage(2)
	f.Prefetch(c)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			env, err := f.FetchPage(context.Background(), c)
			assert.NoError(t, err)
			assert.Equal(t, 2, env.Pagination.Page)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	f.WaitPrefetches()

	api.AssertNumberOfCalls(t, "FetchPage", 1)
}

func TestFetcher_PrefetchSkipsCachedPage(t *testing.T) {
	api := new(MockMarketAPI)
	cache := NewCacheStore(newFakeClock())
	f := NewFetcher(api, cache, DefaultTTLs)
	c := dwellings(12).WithPage(2)
	cache.Set(c.CacheKey(), envelope(2, 12, 30), time.Minute)

	f.Prefetch(c)
	f.WaitPrefetches()
	api.AssertNotCalled(t, "FetchPage", mock.Anything, mock.Anything)
}

func TestFetcher_FeaturedAndInvalidate(t *testing.T) {
	api := new(MockMarketAPI)
	clock := newFakeClock()
	cache := NewCacheStore(clock)
	f := NewFetcher(api, cache, DefaultTTLs)
	featured := models.Featured{models.KindDwelling: {{ID: "D1"}}}
	api.On("FetchFeatured", mock.Anything, 6).Return(featured, nil)
	api.On("FetchPage", mock.Anything, mock.Anything).Return(envelope(1, 12, 1), nil)

	ctx := context.Background()
	_, err := f.FetchFeatured(ctx, 6)
	require.NoError(t, err)
	_, err = f.FetchFeatured(ctx, 6)
	require.NoError(t, err)
	api.AssertNumberOfCalls(t, "FetchFeatured", 1)

	_, err = f.FetchPage(ctx, dwellings(12))
	require.NoError(t, err)
	vehicles := filters.Default(models.KindVehicle)
	_, err = f.FetchPage(ctx, vehicles)
	require.NoError(t, err)

	assert.Equal(t, 2, f.Invalidate(models.KindDwelling))
	_, ok := cache.GetPage(vehicles.CacheKey())
	assert.True(t, ok, "other kinds stay cached")

	// The aggregate view expires before kind pages do.
	_, err = f.FetchFeatured(ctx, 6)
	require.NoError(t, err)
	clock.Advance(DefaultTTLs.Aggregate)
	_, err = f.FetchFeatured(ctx, 6)
	require.NoError(t, err)
	api.AssertNumberOfCalls(t, "FetchFeatured", 3)
}

// blockingCall makes the mocked call wait for gate and records whether the context
// it was given was cancelled while waiting.
func blockingCall(started chan<- struct{}, gate <-chan struct{}, ctxErr *error) func(mock.Arguments) {
	return func(args mock.Arguments) {
		ctx := args.Get(0).(context.Context)
		close(started)
		select {
		case <-gate:
		case <-ctx.Done():
		}
		*ctxErr = ctx.Err()
	}
}

func TestFetcher_CancelledCallerDoesNotFailJoinedCaller(t *testing.T) {
	api := new(MockMarketAPI)
	cache := NewCacheStore(newFakeClock())
	f := NewFetcher(api, cache, DefaultTTLs)
	started, gate := make(chan struct{}), make(chan struct{})
	var callErr error
	api.On("FetchPage", mock.Anything, pageOf(1)).
		Run(blockingCall(started, gate, &callErr)).
		Return(envelope(1, 12, 30), nil).Once()

	c := dwellings(12)
	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := f.FetchPage(ctxA, c)
		errA <- err
	}()
	<-started

	type result struct {
		env *models.PageEnvelope
		err error
	}
	resB := make(chan result, 1)
	go func() {
		env, err := f.FetchPage(context.Background(), c)
		resB <- result{env, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelA()
	assert.ErrorIs(t, <-errA, context.Canceled)

	close(gate)
	res := <-resB
	require.NoError(t, res.err)
	assert.Equal(t, 1, res.env.Pagination.Page)
	assert.NoError(t, callErr, "the shared call keeps running after one caller leaves")
	_, ok := cache.GetPage(c.CacheKey())
	assert.True(t, ok)
	api.AssertNumberOfCalls(t, "FetchPage", 1)
}

func TestFetcher_CancelledCallerDoesNotFailJoinedFeatured(t *testing.T) {
	api := new(MockMarketAPI)
	cache := NewCacheStore(newFakeClock())
	f := NewFetcher(api, cache, DefaultTTLs)
	started, gate := make(chan struct{}), make(chan struct{})
	var callErr error
	featured := models.Featured{models.KindParcel: {{ID: "P1"}}}
	api.On("FetchFeatured", mock.Anything, 4).
		Run(blockingCall(started, gate, &callErr)).
		Return(featured, nil).Once()

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := f.FetchFeatured(ctxA, 4)
		errA <- err
	}()
	<-started

	resB := make(chan error, 1)
	go func() {
		got, err := f.FetchFeatured(context.Background(), 4)
		if err == nil {
			assert.Equal(t, featured, got)
		}
		resB <- err
	}()
	time.Sleep(20 * time.Millisecond)

	cancelA()
	assert.ErrorIs(t, <-errA, context.Canceled)

	close(gate)
	require.NoError(t, <-resB)
	assert.NoError(t, callErr)
	_, ok := cache.GetFeatured(filters.FeaturedKey(4))
	assert.True(t, ok)
	api.AssertNumberOfCalls(t, "FetchFeatured", 1)
}
