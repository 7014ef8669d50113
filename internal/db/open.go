package db

import (
	"context"
	"fmt"
	"log"

	"github.com/owuorvin/jubabuy/internal/config"
	"github.com/owuorvin/jubabuy/internal/store"
)

// OpenStore connects the listing store selected by cfg.StoreDriver and prepares its
// schema or indexes.
func OpenStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverMongo:
		client, mdb, err := ConnectDB(ctx, cfg.MongoURI, cfg.MongoDbName)
		if err != nil {
			return nil, err
		}
		s := NewMongoStore(client, mdb)
		if err := s.EnsureIndexes(ctx); err != nil {
			_ = s.Close(ctx)
			return nil, err
		}
		return s, nil
	case config.DriverPostgres:
		pool, err := ConnectPostgres(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, err
		}
		if err := Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		return NewPostgresStore(pool), nil
	case config.DriverMemory:
		log.Println("WARN: using the in-memory listing store; data is lost on exit")
		return store.NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}
