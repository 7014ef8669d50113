// Package cache holds the Redis connection and the server side page cache.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ConnectRedis opens a client and pings it.
func ConnectRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}

	fmt.Println("Successfully connected to Redis!")
	return rdb, nil
}

// DisconnectRedis closes the Redis client connection.
func DisconnectRedis(client *redis.Client) error {
	if client == nil {
		return nil
	}
	if err := client.Close(); err != nil {
		return fmt.Errorf("failed to close Redis connection: %w", err)
	}
	fmt.Println("Redis connection closed.")
	return nil
}

// IPageCache stores JSON encoded response envelopes under the listing cache keys.
type IPageCache interface {
	// Get decodes the entry into dst and reports whether it was present.
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	// InvalidatePrefix deletes every entry whose key starts with prefix.
	InvalidatePrefix(ctx context.Context, prefix string) (int, error)
	// Flush deletes every entry of the cache namespace.
	Flush(ctx context.Context) (int, error)
}

const pageKeyspace = "pages:"

type redisPageCache struct {
	rdb *redis.Client
}

// NewRedisPageCache keeps entries under the "pages:" keyspace of rdb.
func NewRedisPageCache(rdb *redis.Client) IPageCache {
	return &redisPageCache{rdb: rdb}
}

func (c *redisPageCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	raw, err := c.rdb.Get(ctx, pageKeyspace+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read page cache %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		// A corrupt entry is a miss; drop it so the next write replaces it.
		_ = c.rdb.Del(ctx, pageKeyspace+key).Err()
		return false, nil
	}
	return true, nil
}

func (c *redisPageCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode page cache %s: %w", key, err)
	}
	if err := c.rdb.Set(ctx, pageKeyspace+key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("failed to write page cache %s: %w", key, err)
	}
	return nil
}

func (c *redisPageCache) InvalidatePrefix(ctx context.Context, prefix string) (int, error) {
	return c.deleteMatching(ctx, pageKeyspace+escapeGlob(prefix)+"*")
}

func (c *redisPageCache) Flush(ctx context.Context) (int, error) {
	return c.deleteMatching(ctx, pageKeyspace+"*")
}

func (c *redisPageCache) deleteMatching(ctx context.Context, pattern string) (int, error) {
	deleted := 0
	iter := c.rdb.Scan(ctx, 0, pattern, 200).Iterator()
	var batch []string
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := c.rdb.Del(ctx, batch...).Result()
		if err != nil {
			return err
		}
		deleted += int(n)
		batch = batch[:0]
		return nil
	}
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) >= 200 {
			if err := flush(); err != nil {
				return deleted, fmt.Errorf("failed to delete %s: %w", pattern, err)
			}
		}
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("failed to scan %s: %w", pattern, err)
	}
	if err := flush(); err != nil {
		return deleted, fmt.Errorf("failed to delete %s: %w", pattern, err)
	}
	return deleted, nil
}

// escapeGlob quotes the SCAN MATCH metacharacters in a literal prefix.
func escapeGlob(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '*', '?', '[', ']', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
