package client

import (
	"strings"
	"sync"
	"time"

	"github.com/owuorvin/jubabuy/internal/models"
)

// FavoritesKey is the cache key of the signed-in user's favorite id set.
const FavoritesKey = "favorites|ids"

type cacheEntry struct {
	payload  any
	storedAt time.Time
	ttl      time.Duration
}

func (e cacheEntry) validAt(now time.Time) bool {
	return now.Sub(e.storedAt) < e.ttl
}

// CacheStore is the single in-memory response cache of a Session. Entries expire
// ttl after they were stored; an expired entry is dropped on read and reported as a
// miss. No operation fails.
type CacheStore struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	clock   Clock
}

// NewCacheStore creates an empty store reading time from clock.
func NewCacheStore(clock Clock) *CacheStore {
	if clock == nil {
		clock = SystemClock()
	}
	return &CacheStore{entries: make(map[string]cacheEntry), clock: clock}
}

// Get returns the payload stored under key if it has not expired.
func (s *CacheStore) Get(key string) (any, bool) {
	now := s.clock.Now()

	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if e.validAt(now) {
		return e.payload, true
	}

	s.mu.Lock()
	// A concurrent Set may have replaced the entry since it was read.
	if cur, ok := s.entries[key]; ok && cur.storedAt.Equal(e.storedAt) {
		delete(s.entries, key)
	}
	s.mu.Unlock()
	return nil, false
}

// Set stores payload under key, replacing any previous entry. A non-positive ttl
// stores nothing.
func (s *CacheStore) Set(key string, payload any, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	e := cacheEntry{payload: payload, storedAt: s.clock.Now(), ttl: ttl}
	s.mu.Lock()
	s.entries[key] = e
	s.mu.Unlock()
}

// Invalidate removes every entry whose key starts with prefixOrKey and returns how many
// were removed. An exact key is its own prefix.
func (s *CacheStore) Invalidate(prefixOrKey string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k := range s.entries {
		if strings.HasPrefix(k, prefixOrKey) {
			delete(s.entries, k)
			n++
		}
	}
	return n
}

// Clear drops every entry.
func (s *CacheStore) Clear() {
	s.mu.Lock()
	s.entries = make(map[string]cacheEntry)
	s.mu.Unlock()
}

// Len counts stored entries, expired ones included.
func (s *CacheStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// GetPage is Get for a cached page envelope. A payload of another type is a miss.
func (s *CacheStore) GetPage(key string) (*models.PageEnvelope, bool) {
	v, ok := s.Get(key)
	if !ok {
		return nil, false
	}
	env, ok := v.(*models.PageEnvelope)
	return env, ok && env != nil
}

// GetFeatured is Get for a cached featured aggregate.
func (s *CacheStore) GetFeatured(key string) (models.Featured, bool) {
	v, ok := s.Get(key)
	if !ok {
		return nil, false
	}
	f, ok := v.(models.Featured)
	return f, ok
}

// GetIDs is Get for a cached id set.
func (s *CacheStore) GetIDs(key string) ([]string, bool) {
	v, ok := s.Get(key)
	if !ok {
		return nil, false
	}
	ids, ok := v.([]string)
	return ids, ok
}
