package events

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"nesavent/internal/models"

	"github.com/go-redis/redis/v8"
)

const listVersionKey = "events:list:version"

// RedisCache caches event list pages and rate-limits view counting.
// List keys embed a version counter so that any write invalidates every
// cached page with a single INCR.
type RedisCache struct {
	Client       *redis.Client
	TTL          time.Duration
	ViewCooldown time.Duration
}

func NewRedisCache(client *redis.Client, ttl, viewCooldown time.Duration) *RedisCache {
	return &RedisCache{Client: client, TTL: ttl, ViewCooldown: viewCooldown}
}

func (c *RedisCache) listKey(ctx context.Context, signature string) (string, error) {
	version, err := c.Client.Get(ctx, listVersionKey).Int64()
	if err != nil && err != redis.Nil {
		return "", err
	}
	sum := sha1.Sum([]byte(signature))
	return fmt.Sprintf("events:list:v%d:%s", version, hex.EncodeToString(sum[:])), nil
}

func (c *RedisCache) GetList(ctx context.Context, signature string) (*models.EventPage, bool, error) {
	key, err := c.listKey(ctx, signature)
	if err != nil {
		return nil, false, err
	}
	raw, err := c.Client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var page models.EventPage
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, false, err
	}
	return &page, true, nil
}

func (c *RedisCache) SetList(ctx context.Context, signature string, page *models.EventPage) error {
	key, err := c.listKey(ctx, signature)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(page)
	if err != nil {
		return err
	}
	return c.Client.Set(ctx, key, raw, c.TTL).Err()
}

func (c *RedisCache) InvalidateLists(ctx context.Context) error {
	return c.Client.Incr(ctx, listVersionKey).Err()
}

// MarkViewed returns true the first time viewer is seen for the event within
// the cooldown window.
func (c *RedisCache) MarkViewed(ctx context.Context, eventID, viewer string) (bool, error) {
	key := fmt.Sprintf("events:viewed:%s:%s", eventID, viewer)
	return c.Client.SetNX(ctx, key, 1, c.ViewCooldown).Result()
}
