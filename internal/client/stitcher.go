package client

import (
	"context"
	"errors"
	"log"
	"slices"
	"sync"

	"github.com/owuorvin/jubabuy/internal/filters"
	"github.com/owuorvin/jubabuy/internal/models"
)

// ErrStaleResponse marks a page response that was dropped because the filters changed
// or the page was already stitched. It is logged, never returned.
var ErrStaleResponse = errors.New("stale response discarded")

// State is where a Stitcher is in its load cycle.
type State string

const (
	StateIdle         State = "idle"
	StateFetching     State = "fetching"
	StateReady        State = "ready"
	StateFetchingNext State = "fetching_next"
	StateExhausted    State = "exhausted"
)

// DefaultScrollThreshold is how many unseen items may remain before OnScroll loads more.
const DefaultScrollThreshold = 4

// PageFetcher is what a Stitcher loads pages through.
type PageFetcher interface {
	FetchPage(ctx context.Context, c filters.Criteria) (*models.PageEnvelope, error)
	Prefetch(c filters.Criteria)
}

// Snapshot is the visible state of a Stitcher.
type Snapshot struct {
	State   State
	Items   []models.Listing
	Page    int
	Pages   int
	Total   int64
	HasNext bool
	Err     error
}

// Stitcher concatenates successive pages of one query into a growing list. Pages are
// appended strictly in order; a page that arrives early is held until the pages before
// it are in. Responses issued before the last Reset or Supersede are dropped.
type Stitcher struct {
	fetcher   PageFetcher
	threshold int

	mu            sync.Mutex
	epoch         uint64
	criteria      filters.Criteria
	started       bool
	awaitingReset bool
	items         []models.Listing
	lastAppended  int
	pages         int
	total         int64
	inflight      map[int]bool
	buffered      map[int]*models.PageEnvelope
	state         State
	err           error

	nextListener int
	listeners    map[int]func(Snapshot)
}

// NewStitcher creates an idle stitcher. threshold below 1 uses DefaultScrollThreshold.
func NewStitcher(fetcher PageFetcher, threshold int) *Stitcher {
	if threshold < 1 {
		threshold = DefaultScrollThreshold
	}
	return &Stitcher{
		fetcher:   fetcher,
		threshold: threshold,
		inflight:  make(map[int]bool),
		buffered:  make(map[int]*models.PageEnvelope),
		state:     StateIdle,
		listeners: make(map[int]func(Snapshot)),
	}
}

// Reset drops the list and loads page 1 of c. It blocks until the page resolves and
// returns its error, if any. A result superseded meanwhile returns nil.
func (s *Stitcher) Reset(ctx context.Context, c filters.Criteria) error {
	s.mu.Lock()
	s.epoch++
	s.criteria = c.WithPage(1)
	s.started = true
	s.awaitingReset = false
	s.items = nil
	s.lastAppended, s.pages, s.total = 0, 0, 0
	clear(s.inflight)
	clear(s.buffered)
	s.err = nil
	s.inflight[1] = true
	s.state = StateFetching
	epoch, req := s.epoch, s.criteria
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)

	env, err := s.fetcher.FetchPage(ctx, req)
	return s.resolve(epoch, 1, env, err)
}

// Supersede invalidates every outstanding request. The list stays visible, and
// LoadMore does nothing until the next Reset.
func (s *Stitcher) Supersede() {
	s.mu.Lock()
	s.epoch++
	clear(s.inflight)
	clear(s.buffered)
	s.awaitingReset = s.started
	s.state = s.settledLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)
}

// LoadMore requests the next page not yet stitched, buffered or in flight. It returns
// nil without a request when there is nothing to load. Concurrent calls request
// successive pages.
func (s *Stitcher) LoadMore(ctx context.Context) error {
	s.mu.Lock()
	if !s.started || s.awaitingReset {
		s.mu.Unlock()
		return nil
	}
	page := s.lastAppended + 1
	for s.inflight[page] || s.buffered[page] != nil {
		page++
	}
	// Before page 1 is in, the page count is unknown.
	if (s.lastAppended == 0 && page != 1) || (s.lastAppended > 0 && page > s.pages) {
		s.mu.Unlock()
		return nil
	}
	s.inflight[page] = true
	s.state = s.settledLocked()
	epoch, req := s.epoch, s.criteria.WithPage(page)
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)

	env, err := s.fetcher.FetchPage(ctx, req)
	return s.resolve(epoch, page, env, err)
}

// OnScroll loads more once lastVisible is within the threshold of the end of the list.
func (s *Stitcher) OnScroll(ctx context.Context, lastVisible int) error {
	s.mu.Lock()
	n := len(s.items)
	near := n > 0 && lastVisible >= n-1-s.threshold
	s.mu.Unlock()
	if !near {
		return nil
	}
	return s.LoadMore(ctx)
}

func (s *Stitcher) resolve(epoch uint64, requested int, env *models.PageEnvelope, err error) error {
	s.mu.Lock()
	if epoch != s.epoch {
		kind := s.criteria.Kind
		s.mu.Unlock()
		log.Printf("client: %s page %d: %v", kind, requested, ErrStaleResponse)
		return nil
	}
	delete(s.inflight, requested)

	if err != nil {
		s.err = err
		s.state = s.settledLocked()
		snap := s.snapshotLocked()
		s.mu.Unlock()
		s.notify(snap)
		return err
	}

	page := env.Pagination.Page
	if page <= s.lastAppended || s.buffered[page] != nil {
		s.state = s.settledLocked()
		kind := s.criteria.Kind
		s.mu.Unlock()
		log.Printf("client: duplicate %s page %d: %v", kind, page, ErrStaleResponse)
		return nil
	}
	s.buffered[page] = env

	appended := false
	for {
		next, ok := s.buffered[s.lastAppended+1]
		if !ok {
			break
		}
		delete(s.buffered, s.lastAppended+1)
		s.items = append(s.items, next.Items...)
		s.lastAppended = next.Pagination.Page
		s.pages = next.Pagination.Pages
		s.total = next.Pagination.Total
		appended = true
	}
	if appended {
		s.err = nil
	}
	s.state = s.settledLocked()

	var prefetch *filters.Criteria
	if appended && s.lastAppended < s.pages {
		n := s.lastAppended + 1
		if !s.inflight[n] && s.buffered[n] == nil {
			c := s.criteria.WithPage(n)
			prefetch = &c
		}
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
	if prefetch != nil {
		s.fetcher.Prefetch(*prefetch)
	}
	return nil
}

func (s *Stitcher) settledLocked() State {
	switch {
	case !s.started:
		return StateIdle
	case s.awaitingReset:
		return StateFetching
	case s.lastAppended == 0:
		if len(s.inflight) > 0 {
			return StateFetching
		}
		return StateIdle
	case s.lastAppended >= s.pages:
		return StateExhausted
	case len(s.inflight) > 0:
		return StateFetchingNext
	default:
		return StateReady
	}
}

func (s *Stitcher) snapshotLocked() Snapshot {
	return Snapshot{
		State:   s.state,
		Items:   slices.Clone(s.items),
		Page:    s.lastAppended,
		Pages:   s.pages,
		Total:   s.total,
		HasNext: s.lastAppended > 0 && s.lastAppended < s.pages,
		Err:     s.err,
	}
}

// Snapshot returns the current state.
func (s *Stitcher) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Criteria returns the query being stitched.
func (s *Stitcher) Criteria() filters.Criteria {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.criteria.Clone()
}

// Subscribe registers fn to receive every state change. The returned func unregisters it.
func (s *Stitcher) Subscribe(fn func(Snapshot)) (cancel func()) {
	s.mu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Stitcher) notify(snap Snapshot) {
	s.mu.Lock()
	fns := make([]func(Snapshot), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(snap)
	}
}
