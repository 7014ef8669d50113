package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers accepted in STORE_DRIVER.
const (
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds all configuration for the server.
type Config struct {
	// Environment
	RunMode string // Set via flag, not env

	// Listing store
	StoreDriver string
	MongoURI    string
	MongoDbName string
	PostgresURL string

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	PageCacheTTL  time.Duration

	// JWT
	JwtSecret string

	// Server
	ApiPort        string
	ServiceApiPort string
	AllowedOrigins []string

	// AWS S3, used to sign image URLs stored as bare keys
	AwsAccessKeyID     string
	AwsSecretAccessKey string
	AwsRegion          string
	AwsS3Bucket        string
	ImageURLTTL        time.Duration

	// Background work
	AsyncViewCounts bool

	// Rate Limiting Defaults
	RateLimitSoftBucketSize int
	RateLimitSoftRefillRate int // tokens per second
	RateLimitHardBucketSize int
	RateLimitHardRefillRate int // tokens per second
}

// ClientConfig configures the marketplace client library and CLI.
type ClientConfig struct {
	APIURL          string
	PrefsPath       string
	RequestTimeout  time.Duration
	AggregateTTL    time.Duration
	ListingsTTL     time.Duration
	ReferenceTTL    time.Duration
	Debounce        time.Duration
	PageLimit       int
	ScrollThreshold int
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getRequiredEnv(key string) (string, error) {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return "", fmt.Errorf("missing required environment variable: %s", key)
	}
	return value, nil
}

func getInt(key, defaultValue string) (int, error) {
	n, err := strconv.Atoi(getEnv(key, defaultValue))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getDuration(key, defaultValue string, unit time.Duration) (time.Duration, error) {
	n, err := strconv.ParseInt(getEnv(key, defaultValue), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("invalid %s: must not be negative", key)
	}
	return time.Duration(n) * unit, nil
}

// Load configuration from environment variables.
// RunMode needs to be passed in as it comes from command-line flags.
func Load(runMode string) (*Config, error) {
	// Load .env file, ignoring errors if it doesn't exist
	godotenv.Load()

	cfg := &Config{
		RunMode: runMode,
	}

	var err error

	cfg.StoreDriver = strings.ToLower(getEnv("STORE_DRIVER", DriverMongo))
	switch cfg.StoreDriver {
	case DriverMongo:
		if cfg.MongoURI, err = getRequiredEnv("MONGO_URI"); err != nil {
			return nil, err
		}
		cfg.MongoDbName = getEnv("MONGO_DB_NAME", "jubabuy")
	case DriverPostgres:
		if cfg.PostgresURL, err = getRequiredEnv("POSTGRES_URL"); err != nil {
			return nil, err
		}
	case DriverMemory:
	default:
		return nil, fmt.Errorf("invalid STORE_DRIVER %q: want mongo, postgres or memory", cfg.StoreDriver)
	}

	cfg.RedisAddr = getEnv("REDIS_ADDR", "")
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", "")
	if runMode == "bg" && cfg.RedisAddr == "" {
		return nil, fmt.Errorf("REDIS_ADDR is required in bg mode")
	}
	cfg.JwtSecret, err = getRequiredEnv("JWT_SECRET")
	if err != nil {
		return nil, err
	}
	cfg.ApiPort = getEnv("API_PORT", "8080")
	cfg.ServiceApiPort = getEnv("SERVICE_API_PORT", "12345")
	for _, o := range strings.Split(getEnv("CORS_ALLOWED_ORIGINS", "*"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
		}
	}

	cfg.AwsAccessKeyID = getEnv("AWS_ACCESS_KEY_ID", "")
	cfg.AwsSecretAccessKey = getEnv("AWS_SECRET_ACCESS_KEY", "")
	cfg.AwsRegion = getEnv("AWS_REGION", "")
	cfg.AwsS3Bucket = getEnv("AWS_S3_BUCKET", "")

	if cfg.RedisDB, err = getInt("REDIS_DB", "0"); err != nil {
		return nil, err
	}
	if cfg.PageCacheTTL, err = getDuration("PAGE_CACHE_TTL_SECONDS", "60", time.Second); err != nil {
		return nil, err
	}
	if cfg.ImageURLTTL, err = getDuration("IMAGE_URL_TTL_SECONDS", "900", time.Second); err != nil {
		return nil, err
	}
	cfg.AsyncViewCounts, err = strconv.ParseBool(getEnv("ASYNC_VIEW_COUNTS", "false"))
	if err != nil {
		return nil, fmt.Errorf("invalid ASYNC_VIEW_COUNTS: %w", err)
	}

	// Rate Limiting
	if cfg.RateLimitSoftBucketSize, err = getInt("RATE_LIMIT_SOFT_BUCKET_SIZE", "20"); err != nil {
		return nil, err
	}
	if cfg.RateLimitSoftRefillRate, err = getInt("RATE_LIMIT_SOFT_REFILL_RATE", "10"); err != nil {
		return nil, err
	}
	if cfg.RateLimitHardBucketSize, err = getInt("RATE_LIMIT_HARD_BUCKET_SIZE", "60"); err != nil {
		return nil, err
	}
	if cfg.RateLimitHardRefillRate, err = getInt("RATE_LIMIT_HARD_REFILL_RATE", "30"); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadClient reads the client configuration. Defaults give a 2 minute TTL for aggregate
// views, 5 minutes for listing pages and 15 minutes for reference data.
func LoadClient() (*ClientConfig, error) {
	godotenv.Load()

	cfg := &ClientConfig{
		APIURL:    strings.TrimRight(getEnv("MARKET_API_URL", "http://localhost:8080"), "/"),
		PrefsPath: getEnv("MARKET_PREFS_PATH", defaultPrefsPath()),
	}

	var err error
	if cfg.RequestTimeout, err = getDuration("MARKET_REQUEST_TIMEOUT_SECONDS", "15", time.Second); err != nil {
		return nil, err
	}
	if cfg.AggregateTTL, err = getDuration("MARKET_CACHE_TTL_AGGREGATE_SECONDS", "120", time.Second); err != nil {
		return nil, err
	}
	if cfg.ListingsTTL, err = getDuration("MARKET_CACHE_TTL_LISTINGS_SECONDS", "300", time.Second); err != nil {
		return nil, err
	}
	if cfg.ReferenceTTL, err = getDuration("MARKET_CACHE_TTL_REFERENCE_SECONDS", "900", time.Second); err != nil {
		return nil, err
	}
	if cfg.Debounce, err = getDuration("MARKET_DEBOUNCE_MS", "500", time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.PageLimit, err = getInt("MARKET_PAGE_LIMIT", "12"); err != nil {
		return nil, err
	}
	if cfg.PageLimit < 1 {
		return nil, fmt.Errorf("invalid MARKET_PAGE_LIMIT: must be at least 1")
	}
	if cfg.ScrollThreshold, err = getInt("MARKET_SCROLL_THRESHOLD", "4"); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultPrefsPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "marketctl.db"
	}
	return dir + string(os.PathSeparator) + "jubabuy" + string(os.PathSeparator) + "prefs.db"
}
