// Package cache holds the redis-backed follow-set cache.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const followingKeyPrefix = "devfeed:following:"

// FollowCache stores each user's following list as a JSON array, most recently
// followed first. Entries expire after ttl so a missed invalidation heals.
type FollowCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewFollowCache connects to redis and verifies the connection.
func NewFollowCache(addr string, db int, ttl time.Duration) (*FollowCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		DB:           db,
		PoolSize:     10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return NewFollowCacheWithClient(rdb, ttl), nil
}

func NewFollowCacheWithClient(client *redis.Client, ttl time.Duration) *FollowCache {
	return &FollowCache{client: client, ttl: ttl}
}

func followingKey(userID string) string {
	return followingKeyPrefix + userID
}

func (c *FollowCache) Get(ctx context.Context, userID string) ([]string, bool, error) {
	val, err := c.client.Get(ctx, followingKey(userID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil // Cache miss
		}
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var ids []string
	if err := json.Unmarshal(val, &ids); err != nil {
		return nil, false, fmt.Errorf("decode following list: %w", err)
	}
	return ids, true, nil
}

func (c *FollowCache) Set(ctx context.Context, userID string, following []string) error {
	if following == nil {
		following = []string{}
	}
	val, err := json.Marshal(following)
	if err != nil {
		return fmt.Errorf("encode following list: %w", err)
	}
	if err := c.client.Set(ctx, followingKey(userID), val, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (c *FollowCache) Invalidate(ctx context.Context, userID string) error {
	if err := c.client.Del(ctx, followingKey(userID)).Err(); err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}

func (c *FollowCache) Close() error {
	return c.client.Close()
}
