package utils

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	testMongoURI    string
	testPostgresURL string
)

func init() {
	loadTestEnv()
}

// loadTestEnv loads the .env file and picks up the optional database URLs.
func loadTestEnv() {
	_, filename, _, _ := runtime.Caller(0)
	// Try to load .env from project root (2 levels up from this file)
	projectRoot := filepath.Join(filepath.Dir(filename), "..", "..")
	if err := godotenv.Load(filepath.Join(projectRoot, ".env")); err != nil {
		godotenv.Load()
	}

	testMongoURI = os.Getenv("MONGO_URI")
	testPostgresURL = os.Getenv("POSTGRES_URL")
}

// SetupTestDB creates a test MongoDB database connection and returns the database instance.
// It drops the given collections to ensure a clean state and skips the test when MONGO_URI is unset.
func SetupTestDB(t *testing.T, dbName string, collections ...string) *mongo.Database {
	t.Helper()
	if testMongoURI == "" {
		t.Skip("MONGO_URI not set, skipping MongoDB test")
	}
	client, err := mongo.Connect(context.Background(), options.Client().ApplyURI(testMongoURI))
	require.NoError(t, err, "Failed to connect to MongoDB")
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })
	db := client.Database(dbName)

	for _, collection := range collections {
		_ = db.Collection(collection).Drop(context.Background())
	}

	return db
}

// SetupTestPostgres opens a pool against POSTGRES_URL and drops the given tables.
// The test is skipped when POSTGRES_URL is unset.
func SetupTestPostgres(t *testing.T, tables ...string) *pgxpool.Pool {
	t.Helper()
	if testPostgresURL == "" {
		t.Skip("POSTGRES_URL not set, skipping PostgreSQL test")
	}
	pool, err := pgxpool.New(context.Background(), testPostgresURL)
	require.NoError(t, err, "Failed to connect to PostgreSQL")
	t.Cleanup(pool.Close)

	for _, table := range tables {
		_, err := pool.Exec(context.Background(), "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}
	return pool
}

// GetTestMongoURI returns the test MongoDB URI for direct use if needed
func GetTestMongoURI() string {
	if testMongoURI == "" {
		loadTestEnv()
	}
	return testMongoURI
}
