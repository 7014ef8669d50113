package client

import (
	"context"
	"errors"
	"log"
	"maps"
	"sync"
	"time"

	"github.com/owuorvin/jubabuy/internal/filters"
	"github.com/owuorvin/jubabuy/internal/models"
)

// DefaultDebounce is the quiet period between the last filter edit and the re-fetch.
const DefaultDebounce = 500 * time.Millisecond

// FetchFunc loads the first page of c and blocks until it resolves.
type FetchFunc func(ctx context.Context, c filters.Criteria) error

// FilterApplier holds the filter state of one kind. Edits are merged at once; the
// re-fetch waits until no edit has arrived for the quiet period. At most one fetch
// runs at a time; a fetch due while another is running starts, with the latest
// filters, when the running one returns.
type FilterApplier struct {
	kind      models.Kind
	defaults  map[string]string
	quiet     time.Duration
	clock     Clock
	fetch     FetchFunc
	supersede func()
	onError   func(error)

	ctx    context.Context
	cancel context.CancelFunc
	runs   sync.WaitGroup

	mu         sync.Mutex
	state      map[string]string
	criteria   filters.Criteria
	generation uint64
	timer      Timer
	inFlight   bool
	pending    bool
	closed     bool
}

// ApplierOption configures a FilterApplier.
type ApplierOption func(*FilterApplier)

// WithDefaults sets parameters that sit under every filter state, such as a page size.
func WithDefaults(defaults map[string]string) ApplierOption {
	return func(a *FilterApplier) { a.defaults = maps.Clone(defaults) }
}

// WithQuietPeriod overrides DefaultDebounce.
func WithQuietPeriod(d time.Duration) ApplierOption {
	return func(a *FilterApplier) { a.quiet = d }
}

// WithClock sets the clock timers are scheduled on.
func WithClock(c Clock) ApplierOption {
	return func(a *FilterApplier) { a.clock = c }
}

// WithSupersede sets a func called on every accepted edit, before the quiet period
// starts. It runs under the applier's lock and must not call back into it.
func WithSupersede(fn func()) ApplierOption {
	return func(a *FilterApplier) { a.supersede = fn }
}

// WithFetchErrorHandler receives failures of debounced fetches.
func WithFetchErrorHandler(fn func(error)) ApplierOption {
	return func(a *FilterApplier) { a.onError = fn }
}

// NewFilterApplier creates an applier for kind. fetch runs on its own goroutine and
// gets a context cancelled by Close.
func NewFilterApplier(ctx context.Context, kind models.Kind, fetch FetchFunc, opts ...ApplierOption) (*FilterApplier, error) {
	a := &FilterApplier{
		kind:      kind,
		quiet:     DefaultDebounce,
		clock:     SystemClock(),
		fetch:     fetch,
		supersede: func() {},
		onError: func(err error) {
			log.Printf("WARN: fetch of %s failed: %v", kind, err)
		},
		state: map[string]string{},
	}
	for _, opt := range opts {
		opt(a)
	}
	c, err := filters.NormalizeMap(kind, a.merged(a.state))
	if err != nil {
		return nil, err
	}
	a.criteria = c
	a.ctx, a.cancel = context.WithCancel(ctx)
	return a, nil
}

func (a *FilterApplier) merged(state map[string]string) map[string]string {
	out := maps.Clone(a.defaults)
	if out == nil {
		out = map[string]string{}
	}
	maps.Copy(out, state)
	return out
}

// Apply merges partial into the filter state; an empty value removes the key. The
// re-fetch is scheduled for the end of the quiet period. When the merged state is
// invalid, the error is returned and no fetch is scheduled.
func (a *FilterApplier) Apply(partial map[string]string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return errors.New("filter applier closed")
	}

	for k, v := range partial {
		if k == "page" {
			continue
		}
		if v == "" {
			delete(a.state, k)
		} else {
			a.state[k] = v
		}
	}
	a.generation++
	a.stopTimerLocked()

	c, err := filters.NormalizeMap(a.kind, a.merged(a.state))
	if err != nil {
		return err
	}
	a.criteria = c
	a.supersede()

	gen := a.generation
	a.timer = a.clock.AfterFunc(a.quiet, func() { a.fire(gen) })
	return nil
}

// Clear resets the filters to their defaults and fetches without waiting.
func (a *FilterApplier) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.state = map[string]string{}
	a.generation++
	a.stopTimerLocked()
	if c, err := filters.NormalizeMap(a.kind, a.merged(nil)); err == nil {
		a.criteria = c
	}
	a.supersede()
	a.launchLocked()
}

// Flush ends the quiet period early and fetches the current filters now.
func (a *FilterApplier) Flush() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.stopTimerLocked()
	a.launchLocked()
}

func (a *FilterApplier) fire(gen uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed || gen != a.generation {
		return
	}
	a.timer = nil
	a.launchLocked()
}

func (a *FilterApplier) launchLocked() {
	if a.inFlight {
		a.pending = true
		return
	}
	a.inFlight = true
	c := a.criteria.Clone()
	a.runs.Add(1)
	go a.run(c)
}

func (a *FilterApplier) run(c filters.Criteria) {
	defer a.runs.Done()
	for {
		if err := a.fetch(a.ctx, c); err != nil && !errors.Is(err, context.Canceled) {
			a.onError(err)
		}

		a.mu.Lock()
		if !a.pending || a.closed {
			a.inFlight = false
			a.pending = false
			a.mu.Unlock()
			return
		}
		a.pending = false
		c = a.criteria.Clone()
		a.mu.Unlock()
	}
}

func (a *FilterApplier) stopTimerLocked() {
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}

// Current returns a copy of the filter state as edited, defaults excluded.
func (a *FilterApplier) Current() map[string]string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return maps.Clone(a.state)
}

// Criteria returns the last valid criteria.
func (a *FilterApplier) Criteria() filters.Criteria {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.criteria.Clone()
}

// Generation counts accepted and rejected edits.
func (a *FilterApplier) Generation() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.generation
}

// Wait blocks until no fetch is running.
func (a *FilterApplier) Wait() {
	a.runs.Wait()
}

// Close cancels the pending timer and the running fetch, then waits for it to return.
func (a *FilterApplier) Close() {
	a.mu.Lock()
	a.closed = true
	a.stopTimerLocked()
	a.mu.Unlock()
	a.cancel()
	a.runs.Wait()
}
