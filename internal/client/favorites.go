package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"slices"
	"sync"
	"time"
)

// FavoriteEvent reports a change of local favorite membership. Notice is set when an
// optimistic toggle had to be rolled back.
type FavoriteEvent struct {
	ID        string
	Favorited bool
	Notice    string
	Err       error
}

// Favorites tracks the favorite set with optimistic toggles. A toggle is shown at
// once and reconciled when the server answers; only the latest toggle of an id may
// reconcile it.
type Favorites struct {
	api   IMarketAPI
	prefs Prefs
	cache *CacheStore
	ttl   time.Duration

	mu       sync.Mutex
	ids      map[string]bool
	latest   map[string]uint64
	seq      uint64
	epoch    uint64 // bumped by Reset
	nextSub  int
	subs     map[int]func(FavoriteEvent)
	inFlight sync.WaitGroup
}

// NewFavorites creates an empty favorite set. ttl bounds how long the server list is cached.
func NewFavorites(api IMarketAPI, prefs Prefs, cache *CacheStore, ttl time.Duration) *Favorites {
	return &Favorites{
		api:    api,
		prefs:  prefs,
		cache:  cache,
		ttl:    ttl,
		ids:    make(map[string]bool),
		latest: make(map[string]uint64),
		subs:   make(map[int]func(FavoriteEvent)),
	}
}

// Load replaces the set with the one persisted in prefs.
func (f *Favorites) Load() error {
	raw, ok, err := f.prefs.Get(PrefFavorites)
	if err != nil || !ok {
		return err
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return fmt.Errorf("failed to decode stored favorites: %w", err)
	}
	f.mu.Lock()
	f.ids = make(map[string]bool, len(ids))
	for _, id := range ids {
		f.ids[id] = true
	}
	f.mu.Unlock()
	return nil
}

// Refresh replaces the set with the server's, read through the cache. Ids with a
// toggle still in flight keep their local state.
func (f *Favorites) Refresh(ctx context.Context) error {
	f.mu.Lock()
	epoch := f.epoch
	f.mu.Unlock()

	ids, cached := f.cache.GetIDs(FavoritesKey)
	if !cached {
		var err error
		if ids, err = f.api.ListFavorites(ctx); err != nil {
			return err
		}
	}

	f.mu.Lock()
	if f.epoch != epoch {
		// Reset while the list was loading; it belongs to the previous user.
		f.mu.Unlock()
		return nil
	}
	if !cached {
		f.cache.Set(FavoritesKey, slices.Clone(ids), f.ttl)
	}
	next := make(map[string]bool, len(ids))
	for _, id := range ids {
		next[id] = true
	}
	for id := range f.latest {
		if f.ids[id] {
			next[id] = true
		} else {
			delete(next, id)
		}
	}
	f.ids = next
	snapshot := f.sortedLocked()
	f.mu.Unlock()

	f.persist(snapshot)
	return nil
}

// Reset forgets the set, as on sign-out.
func (f *Favorites) Reset() {
	f.mu.Lock()
	f.ids = make(map[string]bool)
	f.latest = make(map[string]uint64)
	f.epoch++
	f.mu.Unlock()
}

// Toggle flips id locally and sends the toggle in the background.
func (f *Favorites) Toggle(ctx context.Context, id string) {
	f.mu.Lock()
	prev := f.ids[id]
	f.setLocked(id, !prev)
	f.seq++
	token := f.seq
	f.latest[id] = token
	f.mu.Unlock()

	f.emit(FavoriteEvent{ID: id, Favorited: !prev})

	// The call outlives the caller's context; the API client bounds it with its own timeout.
	callCtx := context.WithoutCancel(ctx)
	f.inFlight.Add(1)
	go func() {
		defer f.inFlight.Done()
		favorited, err := f.api.ToggleFavorite(callCtx, id)
		f.resolve(id, token, prev, favorited, err)
	}()
}

func (f *Favorites) resolve(id string, token uint64, prev, favorited bool, err error) {
	f.mu.Lock()
	if f.latest[id] != token {
		f.mu.Unlock()
		return
	}
	delete(f.latest, id)

	event := FavoriteEvent{ID: id}
	if err != nil {
		f.setLocked(id, prev)
		event.Favorited = prev
		event.Err = err
		event.Notice = "Could not update favorites, please try again"
	} else {
		f.setLocked(id, favorited)
		event.Favorited = favorited
	}
	snapshot := f.sortedLocked()
	f.mu.Unlock()

	if err != nil {
		log.Printf("WARN: favorite toggle of %s reverted: %v", id, err)
	} else {
		f.cache.Invalidate(FavoritesKey)
		f.persist(snapshot)
	}
	f.emit(event)
}

func (f *Favorites) setLocked(id string, on bool) {
	if on {
		f.ids[id] = true
	} else {
		delete(f.ids, id)
	}
}

func (f *Favorites) sortedLocked() []string {
	ids := make([]string, 0, len(f.ids))
	for id := range f.ids {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (f *Favorites) persist(ids []string) {
	raw, _ := json.Marshal(ids)
	if err := f.prefs.Set(PrefFavorites, string(raw)); err != nil {
		log.Printf("WARN: failed to persist favorites: %v", err)
	}
}

// Has reports whether id is in the local set.
func (f *Favorites) Has(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ids[id]
}

// IDs returns the local set in sorted order.
func (f *Favorites) IDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sortedLocked()
}

// Subscribe registers fn for membership changes and rollback notices.
func (f *Favorites) Subscribe(fn func(FavoriteEvent)) (cancel func()) {
	f.mu.Lock()
	id := f.nextSub
	f.nextSub++
	f.subs[id] = fn
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
	}
}

func (f *Favorites) emit(e FavoriteEvent) {
	f.mu.Lock()
	fns := make([]func(FavoriteEvent), 0, len(f.subs))
	for _, fn := range f.subs {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(e)
	}
}

// Wait blocks until every toggle sent so far has resolved.
func (f *Favorites) Wait() {
	f.inFlight.Wait()
}
