// Package store defines the backend-neutral query surface the listing aggregator runs
// against, and an in-memory implementation of it.
//
// Columns are logical names. Kind specific attributes are addressed as "<kind>.<attr>"
// (for example "dwelling.bedrooms"); Mongo uses the path as-is, Postgres strips the prefix.
package store

import (
	"context"
	"errors"
	"strings"

	"github.com/owuorvin/jubabuy/internal/models"
)

var (
	// ErrNotFound is returned when a single listing lookup matches nothing.
	ErrNotFound = errors.New("store: not found")
	// ErrDuplicate is returned when an insert collides with an existing id.
	ErrDuplicate = errors.New("store: duplicate id")
)

// Op is a comparison operator in a predicate.
type Op string

const (
	OpEq       Op = "eq"
	OpGte      Op = "gte"
	OpLte      Op = "lte"
	OpContains Op = "contains" // case-insensitive substring
)

// Predicate is a single column condition. All predicates of a Query are ANDed.
type Predicate struct {
	Column string
	Op     Op
	Value  any
}

// Query is a normalized, backend-neutral listing query.
type Query struct {
	Kind       models.Kind
	Predicates []Predicate
	// Search matches when any of SearchColumns contains it (case-insensitive).
	Search        string
	SearchColumns []string
	SortColumn    string
	Descending    bool
	Offset        int
	Limit         int
}

// AttrColumn splits "dwelling.bedrooms" into ("dwelling", "bedrooms").
// Base columns return an empty kind.
func AttrColumn(column string) (kind, name string) {
	if i := strings.IndexByte(column, '.'); i >= 0 {
		return column[:i], column[i+1:]
	}
	return "", column
}

// ListingStore is the read/write surface over listings and their side tables.
type ListingStore interface {
	CountListings(ctx context.Context, q Query) (int64, error)
	FindListings(ctx context.Context, q Query) ([]models.Listing, error)
	// FindImages returns every image of the given entities in a single round trip.
	FindImages(ctx context.Context, entityType models.Kind, entityIDs []string) ([]models.Image, error)
	// FindAgents returns the agents with the given ids; unknown ids are skipped.
	FindAgents(ctx context.Context, ids []string) ([]models.Agent, error)
	// FindListing looks a listing up by id or slug.
	FindListing(ctx context.Context, kind models.Kind, idOrSlug string) (*models.Listing, error)
	IncrementViews(ctx context.Context, kind models.Kind, id string) error
	InsertListing(ctx context.Context, listing *models.Listing) error
	ReplaceListing(ctx context.Context, listing *models.Listing) error
	DeleteListing(ctx context.Context, kind models.Kind, id string) error
	// ReplaceImages swaps the full image set of one entity.
	ReplaceImages(ctx context.Context, entityType models.Kind, entityID string, images []models.Image) error
	UpsertAgent(ctx context.Context, agent *models.Agent) error
}

// FavoriteStore persists the user/listing favorite relation.
type FavoriteStore interface {
	// ToggleFavorite flips membership and returns the new state.
	ToggleFavorite(ctx context.Context, userID, listingID string) (bool, error)
	ListFavorites(ctx context.Context, userID string) ([]string, error)
}

// Store is implemented by every backend.
type Store interface {
	ListingStore
	FavoriteStore
	Close(ctx context.Context) error
}
