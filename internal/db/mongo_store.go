package db

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/owuorvin/jubabuy/internal/models"
	"github.com/owuorvin/jubabuy/internal/store"
	"github.com/owuorvin/jubabuy/internal/utils"
)

const (
	imagesCollection    = "images"
	agentsCollection    = "agents"
	favoritesCollection = "favorites"
	countersCollection  = "counters"
)

// mongoListing is the stored form of a listing. Seq comes from the per-kind counter
// and orders listings by insertion.
type mongoListing struct {
	models.Listing `bson:",inline"`
	Seq            int64 `bson:"seq"`
}

// MongoStore keeps each listing kind in its own collection ("dwellings", "vehicles",
// "parcels") with the kind attributes embedded under the kind name.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewMongoStore wraps an open database. client may be nil when the caller owns it.
func NewMongoStore(client *mongo.Client, db *mongo.Database) *MongoStore {
	return &MongoStore{client: client, db: db}
}

// EnsureIndexes creates the indexes the listing queries rely on.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	for _, kind := range models.Kinds {
		_, err := s.db.Collection(kind.Plural()).Indexes().CreateMany(ctx, []mongo.IndexModel{
			{Keys: bson.D{{Key: "slug", Value: 1}}, Options: options.Index().SetUnique(true).SetSparse(true)},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "featured", Value: 1}}},
			{Keys: bson.D{{Key: "seq", Value: 1}}},
		})
		if err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", kind.Plural(), err)
		}
	}
	if _, err := s.db.Collection(imagesCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "entity_type", Value: 1}, {Key: "entity_id", Value: 1}, {Key: "order", Value: 1}},
	}); err != nil {
		return fmt.Errorf("failed to create image index: %w", err)
	}
	if _, err := s.db.Collection(favoritesCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "listing_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("failed to create favorite index: %w", err)
	}
	return nil
}

func (s *MongoStore) listings(kind models.Kind) *mongo.Collection {
	return s.db.Collection(kind.Plural())
}

// mongoFilter translates a store query into a filter document.
func mongoFilter(q store.Query) bson.M {
	var and bson.A
	for _, p := range q.Predicates {
		switch p.Op {
		case store.OpEq:
			and = append(and, bson.M{p.Column: p.Value})
		case store.OpGte:
			and = append(and, bson.M{p.Column: bson.M{"$gte": p.Value}})
		case store.OpLte:
			and = append(and, bson.M{p.Column: bson.M{"$lte": p.Value}})
		case store.OpContains:
			and = append(and, bson.M{p.Column: containsRegex(fmt.Sprint(p.Value))})
		}
	}
	if q.Search != "" && len(q.SearchColumns) > 0 {
		or := make(bson.A, 0, len(q.SearchColumns))
		for _, col := range q.SearchColumns {
			or = append(or, bson.M{col: containsRegex(q.Search)})
		}
		and = append(and, bson.M{"$or": or})
	}
	if len(and) == 0 {
		return bson.M{}
	}
	return bson.M{"$and": and}
}

func containsRegex(s string) primitive.Regex {
	return primitive.Regex{Pattern: regexp.QuoteMeta(s), Options: "i"}
}

// mongoSort orders by the requested column, then by insertion seq.
func mongoSort(q store.Query) bson.D {
	dir := 1
	if q.Descending {
		dir = -1
	}
	sort := bson.D{}
	if q.SortColumn != "" {
		sort = append(sort, bson.E{Key: q.SortColumn, Value: dir})
	}
	return append(sort, bson.E{Key: "seq", Value: 1})
}

// nextSeq atomically takes the next insertion number of kind.
func (s *MongoStore) nextSeq(ctx context.Context, kind models.Kind) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	err := s.db.Collection(countersCollection).
		FindOneAndUpdate(ctx, bson.M{"_id": kind.Plural()}, bson.M{"$inc": bson.M{"seq": 1}}, opts).
		Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("failed to take %s sequence: %w", kind, err)
	}
	return counter.Seq, nil
}

func (s *MongoStore) CountListings(ctx context.Context, q store.Query) (int64, error) {
	n, err := s.listings(q.Kind).CountDocuments(ctx, mongoFilter(q))
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", q.Kind.Plural(), err)
	}
	return n, nil
}

func (s *MongoStore) FindListings(ctx context.Context, q store.Query) ([]models.Listing, error) {
	opts := options.Find().SetSort(mongoSort(q)).SetSkip(int64(q.Offset))
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	cursor, err := s.listings(q.Kind).Find(ctx, mongoFilter(q), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find %s: %w", q.Kind.Plural(), err)
	}
	defer cursor.Close(ctx)

	listings := []models.Listing{}
	if err := cursor.All(ctx, &listings); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", q.Kind.Plural(), err)
	}
	return listings, nil
}

func (s *MongoStore) FindImages(ctx context.Context, entityType models.Kind, entityIDs []string) ([]models.Image, error) {
	if len(entityIDs) == 0 {
		return nil, nil
	}
	filter := bson.M{"entity_type": entityType, "entity_id": bson.M{"$in": entityIDs}}
	opts := options.Find().SetSort(bson.D{{Key: "entity_id", Value: 1}, {Key: "order", Value: 1}})
	cursor, err := s.db.Collection(imagesCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find images: %w", err)
	}
	defer cursor.Close(ctx)

	var images []models.Image
	if err := cursor.All(ctx, &images); err != nil {
		return nil, fmt.Errorf("failed to decode images: %w", err)
	}
	return images, nil
}

func (s *MongoStore) FindAgents(ctx context.Context, ids []string) ([]models.Agent, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cursor, err := s.db.Collection(agentsCollection).Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("failed to find agents: %w", err)
	}
	defer cursor.Close(ctx)

	var agents []models.Agent
	if err := cursor.All(ctx, &agents); err != nil {
		return nil, fmt.Errorf("failed to decode agents: %w", err)
	}
	return agents, nil
}

func (s *MongoStore) FindListing(ctx context.Context, kind models.Kind, idOrSlug string) (*models.Listing, error) {
	var listing models.Listing
	filter := bson.M{"$or": bson.A{bson.M{"_id": idOrSlug}, bson.M{"slug": idOrSlug}}}
	err := s.listings(kind).FindOne(ctx, filter).Decode(&listing)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("error finding %s %s: %w", kind, idOrSlug, err)
	}
	return &listing, nil
}

func (s *MongoStore) IncrementViews(ctx context.Context, kind models.Kind, id string) error {
	res, err := s.listings(kind).UpdateByID(ctx, id, bson.M{"$inc": bson.M{"views": 1}})
	if err != nil {
		return fmt.Errorf("failed to increment views of %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *MongoStore) InsertListing(ctx context.Context, listing *models.Listing) error {
	seq, err := s.nextSeq(ctx, listing.Kind)
	if err != nil {
		return err
	}
	_, err = s.listings(listing.Kind).InsertOne(ctx, mongoListing{Listing: *listing, Seq: seq})
	if err != nil {
		if IsMongoDuplicateKeyError(err) {
			return fmt.Errorf("listing %s: %w: %w", listing.ID, store.ErrDuplicate, err)
		}
		return fmt.Errorf("failed to insert listing: %w", err)
	}
	return nil
}

// ReplaceListing keeps the stored seq so an edit does not move the listing.
func (s *MongoStore) ReplaceListing(ctx context.Context, listing *models.Listing) error {
	var current struct {
		Seq int64 `bson:"seq"`
	}
	coll := s.listings(listing.Kind)
	err := coll.FindOne(ctx, bson.M{"_id": listing.ID}, options.FindOne().SetProjection(bson.M{"seq": 1})).Decode(&current)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read listing %s: %w", listing.ID, err)
	}
	res, err := coll.ReplaceOne(ctx, bson.M{"_id": listing.ID}, mongoListing{Listing: *listing, Seq: current.Seq})
	if err != nil {
		return fmt.Errorf("failed to replace listing %s: %w", listing.ID, err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *MongoStore) DeleteListing(ctx context.Context, kind models.Kind, id string) error {
	res, err := s.listings(kind).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete listing %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	if _, err := s.db.Collection(imagesCollection).DeleteMany(ctx, bson.M{"entity_type": kind, "entity_id": id}); err != nil {
		return fmt.Errorf("failed to delete images of %s: %w", id, err)
	}
	return nil
}

func (s *MongoStore) ReplaceImages(ctx context.Context, entityType models.Kind, entityID string, images []models.Image) error {
	coll := s.db.Collection(imagesCollection)
	if _, err := coll.DeleteMany(ctx, bson.M{"entity_type": entityType, "entity_id": entityID}); err != nil {
		return fmt.Errorf("failed to clear images of %s: %w", entityID, err)
	}
	if len(images) == 0 {
		return nil
	}
	docs := make([]interface{}, len(images))
	for i, img := range images {
		img.EntityType = entityType
		img.EntityID = entityID
		if img.ID == "" {
			img.ID = utils.NewSixID().String()
		}
		docs[i] = img
	}
	if _, err := coll.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("failed to insert images of %s: %w", entityID, err)
	}
	return nil
}

func (s *MongoStore) UpsertAgent(ctx context.Context, agent *models.Agent) error {
	opts := options.Replace().SetUpsert(true)
	if _, err := s.db.Collection(agentsCollection).ReplaceOne(ctx, bson.M{"_id": agent.ID}, agent, opts); err != nil {
		return fmt.Errorf("failed to upsert agent %s: %w", agent.ID, err)
	}
	return nil
}

func (s *MongoStore) ToggleFavorite(ctx context.Context, userID, listingID string) (bool, error) {
	coll := s.db.Collection(favoritesCollection)
	key := bson.M{"user_id": userID, "listing_id": listingID}
	res, err := coll.DeleteOne(ctx, key)
	if err != nil {
		return false, fmt.Errorf("failed to remove favorite: %w", err)
	}
	if res.DeletedCount > 0 {
		return false, nil
	}
	fav := models.Favorite{UserID: userID, ListingID: listingID, CreatedAt: time.Now().UTC()}
	if _, err := coll.InsertOne(ctx, fav); err != nil && !IsMongoDuplicateKeyError(err) {
		return false, fmt.Errorf("failed to add favorite: %w", err)
	}
	return true, nil
}

func (s *MongoStore) ListFavorites(ctx context.Context, userID string) ([]string, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := s.db.Collection(favoritesCollection).Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list favorites: %w", err)
	}
	defer cursor.Close(ctx)

	var favs []models.Favorite
	if err := cursor.All(ctx, &favs); err != nil {
		return nil, fmt.Errorf("failed to decode favorites: %w", err)
	}
	ids := make([]string, len(favs))
	for i, f := range favs {
		ids[i] = f.ListingID
	}
	return ids, nil
}

// Close disconnects the client when the store owns one.
func (s *MongoStore) Close(ctx context.Context) error {
	return DisconnectDB(ctx, s.client)
}
