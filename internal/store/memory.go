package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/owuorvin/jubabuy/internal/models"
)

// Stats counts the queries a MemoryStore has served.
type Stats struct {
	Counts       int64
	Finds        int64
	ImageQueries int64
	AgentQueries int64
}

// MemoryStore keeps everything in process. Listings of a kind are held in insertion
// order, which is also the tie-break order for sorting.
type MemoryStore struct {
	mu        sync.RWMutex
	listings  map[models.Kind][]*models.Listing
	images    []models.Image
	agents    map[string]models.Agent
	favorites map[string][]string // user id -> listing ids in insertion order

	counts, finds, imageQueries, agentQueries atomic.Int64
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		listings:  make(map[models.Kind][]*models.Listing),
		agents:    make(map[string]models.Agent),
		favorites: make(map[string][]string),
	}
}

// Stats returns a snapshot of the query counters.
func (m *MemoryStore) Stats() Stats {
	return Stats{
		Counts:       m.counts.Load(),
		Finds:        m.finds.Load(),
		ImageQueries: m.imageQueries.Load(),
		AgentQueries: m.agentQueries.Load(),
	}
}

// ResetStats zeroes the query counters.
func (m *MemoryStore) ResetStats() {
	m.counts.Store(0)
	m.finds.Store(0)
	m.imageQueries.Store(0)
	m.agentQueries.Store(0)
}

func (m *MemoryStore) CountListings(ctx context.Context, q Query) (int64, error) {
	m.counts.Add(1)
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int64
	for _, l := range m.listings[q.Kind] {
		if matches(l, q) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) FindListings(ctx context.Context, q Query) ([]models.Listing, error) {
	m.finds.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	matched := make([]models.Listing, 0)
	for _, l := range m.listings[q.Kind] {
		if matches(l, q) {
			matched = append(matched, *l)
		}
	}
	m.mu.RUnlock()

	if q.SortColumn != "" {
		sort.SliceStable(matched, func(i, j int) bool {
			a, _ := fieldValue(&matched[i], q.SortColumn)
			b, _ := fieldValue(&matched[j], q.SortColumn)
			c := compareValues(a, b)
			if q.Descending {
				return c > 0
			}
			return c < 0
		})
	}

	if q.Offset >= len(matched) {
		return []models.Listing{}, nil
	}
	matched = matched[q.Offset:]
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return matched, nil
}

func (m *MemoryStore) FindImages(ctx context.Context, entityType models.Kind, entityIDs []string) ([]models.Image, error) {
	m.imageQueries.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	wanted := make(map[string]bool, len(entityIDs))
	for _, id := range entityIDs {
		wanted[id] = true
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Image
	for _, img := range m.images {
		if img.EntityType == entityType && wanted[img.EntityID] {
			out = append(out, img)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].EntityID != out[j].EntityID {
			return out[i].EntityID < out[j].EntityID
		}
		return out[i].Order < out[j].Order
	})
	return out, nil
}

func (m *MemoryStore) FindAgents(ctx context.Context, ids []string) ([]models.Agent, error) {
	m.agentQueries.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Agent
	for _, id := range ids {
		if a, ok := m.agents[id]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *MemoryStore) FindListing(ctx context.Context, kind models.Kind, idOrSlug string) (*models.Listing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, l := range m.listings[kind] {
		if l.ID == idOrSlug || l.Slug == idOrSlug {
			cp := *l
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) IncrementViews(ctx context.Context, kind models.Kind, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.listings[kind] {
		if l.ID == id {
			l.Views++
			return nil
		}
	}
	return ErrNotFound
}

func (m *MemoryStore) InsertListing(ctx context.Context, listing *models.Listing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.listings[listing.Kind] {
		if l.ID == listing.ID {
			return fmt.Errorf("listing %s: %w", listing.ID, ErrDuplicate)
		}
	}
	cp := *listing
	cp.Images, cp.Agent, cp.Features = nil, nil, nil
	m.listings[listing.Kind] = append(m.listings[listing.Kind], &cp)
	return nil
}

func (m *MemoryStore) ReplaceListing(ctx context.Context, listing *models.Listing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, l := range m.listings[listing.Kind] {
		if l.ID == listing.ID {
			cp := *listing
			cp.Images, cp.Agent, cp.Features = nil, nil, nil
			m.listings[listing.Kind][i] = &cp
			return nil
		}
	}
	return ErrNotFound
}

func (m *MemoryStore) DeleteListing(ctx context.Context, kind models.Kind, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.listings[kind]
	for i, l := range rows {
		if l.ID == id {
			m.listings[kind] = append(rows[:i:i], rows[i+1:]...)
			m.images = dropImages(m.images, kind, id)
			return nil
		}
	}
	return ErrNotFound
}

func (m *MemoryStore) ReplaceImages(ctx context.Context, entityType models.Kind, entityID string, images []models.Image) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.images = dropImages(m.images, entityType, entityID)
	for _, img := range images {
		img.EntityType = entityType
		img.EntityID = entityID
		m.images = append(m.images, img)
	}
	return nil
}

func (m *MemoryStore) UpsertAgent(ctx context.Context, agent *models.Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.agents[agent.ID] = *agent
	return nil
}

func (m *MemoryStore) ToggleFavorite(ctx context.Context, userID, listingID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.favorites[userID]
	for i, id := range ids {
		if id == listingID {
			m.favorites[userID] = append(ids[:i:i], ids[i+1:]...)
			return false, nil
		}
	}
	m.favorites[userID] = append(ids, listingID)
	return true, nil
}

func (m *MemoryStore) ListFavorites(ctx context.Context, userID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string{}, m.favorites[userID]...), nil
}

func (m *MemoryStore) Close(ctx context.Context) error { return nil }

func dropImages(images []models.Image, kind models.Kind, entityID string) []models.Image {
	kept := images[:0]
	for _, img := range images {
		if img.EntityType == kind && img.EntityID == entityID {
			continue
		}
		kept = append(kept, img)
	}
	return kept
}

func matches(l *models.Listing, q Query) bool {
	for _, p := range q.Predicates {
		v, ok := fieldValue(l, p.Column)
		if !ok {
			return false
		}
		switch p.Op {
		case OpEq:
			if compareValues(v, p.Value) != 0 {
				return false
			}
		case OpGte:
			if compareValues(v, p.Value) < 0 {
				return false
			}
		case OpLte:
			if compareValues(v, p.Value) > 0 {
				return false
			}
		case OpContains:
			s, _ := v.(string)
			needle, _ := p.Value.(string)
			if !strings.Contains(strings.ToLower(s), strings.ToLower(needle)) {
				return false
			}
		default:
			return false
		}
	}
	if q.Search == "" {
		return true
	}
	needle := strings.ToLower(q.Search)
	for _, col := range q.SearchColumns {
		if v, ok := fieldValue(l, col); ok {
			if s, isStr := v.(string); isStr && strings.Contains(strings.ToLower(s), needle) {
				return true
			}
		}
	}
	return false
}

// fieldValue resolves a logical column against a listing.
func fieldValue(l *models.Listing, column string) (any, bool) {
	kind, name := AttrColumn(column)
	switch kind {
	case "":
		switch name {
		case "title":
			return l.Title, true
		case "description":
			return l.Description, true
		case "location":
			return l.Location, true
		case "slug":
			return l.Slug, true
		case "price":
			return l.Price, true
		case "status":
			return string(l.Status), true
		case "featured":
			return l.Featured, true
		case "views":
			return l.Views, true
		case "agent_id":
			return l.AgentID, true
		case "created_at":
			return l.CreatedAt, true
		case "updated_at":
			return l.UpdatedAt, true
		}
	case string(models.KindDwelling):
		if d := l.Dwelling; d != nil {
			switch name {
			case "category":
				return d.Category, true
			case "bedrooms":
				return d.Bedrooms, true
			case "bathrooms":
				return d.Bathrooms, true
			case "floor_area":
				return d.FloorArea, true
			case "furnished":
				return d.Furnished, true
			}
		}
	case string(models.KindVehicle):
		if v := l.Vehicle; v != nil {
			switch name {
			case "make":
				return v.Make, true
			case "model":
				return v.Model, true
			case "year":
				return v.Year, true
			case "mileage":
				return v.Mileage, true
			case "fuel_type":
				return v.FuelType, true
			case "transmission":
				return v.Transmission, true
			case "condition":
				return v.Condition, true
			}
		}
	case string(models.KindParcel):
		if p := l.Parcel; p != nil {
			switch name {
			case "area":
				return p.Area, true
			case "area_unit":
				return p.AreaUnit, true
			case "zoning":
				return p.Zoning, true
			}
		}
	}
	return nil, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// compareValues orders two column values of the same family. Mismatched types compare equal.
func compareValues(a, b any) int {
	if af, ok := toFloat(a); ok {
		bf, ok := toFloat(b)
		if !ok {
			return 0
		}
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		}
		return 0
	}
	switch av := a.(type) {
	case string:
		bv, _ := b.(string)
		return strings.Compare(av, bv)
	case bool:
		bv, _ := b.(bool)
		switch {
		case av == bv:
			return 0
		case !av:
			return -1
		}
		return 1
	case time.Time:
		bv, _ := b.(time.Time)
		return av.Compare(bv)
	}
	return 0
}
