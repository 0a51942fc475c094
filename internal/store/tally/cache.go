// Package tally provides an optional Redis read-through cache of survey ballot
// counts. The cache is purely an accelerator for survey reads under broadcast
// storms; the core behaves identically when it is disabled.
package tally

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultTTL = 30 * time.Second

// Counts are the per-outcome ballot totals of one survey.
type Counts struct {
	Approve int `json:"approve"`
	Deny    int `json:"deny"`
	Abstain int `json:"abstain"`
}

// Cache caches survey tallies in Redis. A nil *Cache is valid and disables
// caching: every method becomes a no-op miss.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New connects to Redis using a URL and verifies the connection.
func New(redisURL string) (*Cache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &Cache{client: client, ttl: defaultTTL}, nil
}

// NewWithClient builds a cache from an existing Redis client.
func NewWithClient(client *redis.Client) *Cache {
	return &Cache{client: client, ttl: defaultTTL}
}

func (c *Cache) key(surveyID string) string {
	return "tally:" + surveyID
}

// Get returns the cached tally for a survey and whether it was present.
func (c *Cache) Get(ctx context.Context, surveyID string) (Counts, bool, error) {
	if c == nil {
		return Counts{}, false, nil
	}
	raw, err := c.client.Get(ctx, c.key(surveyID)).Result()
	if err == redis.Nil {
		return Counts{}, false, nil
	}
	if err != nil {
		return Counts{}, false, fmt.Errorf("get tally: %w", err)
	}
	var counts Counts
	if err := json.Unmarshal([]byte(raw), &counts); err != nil {
		return Counts{}, false, fmt.Errorf("decode tally: %w", err)
	}
	return counts, true, nil
}

// Put stores the tally for a survey with the cache TTL.
func (c *Cache) Put(ctx context.Context, surveyID string, counts Counts) error {
	if c == nil {
		return nil
	}
	raw, err := json.Marshal(counts)
	if err != nil {
		return fmt.Errorf("encode tally: %w", err)
	}
	if err := c.client.Set(ctx, c.key(surveyID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("put tally: %w", err)
	}
	return nil
}

// Invalidate drops the cached tally after a successful vote.
func (c *Cache) Invalidate(ctx context.Context, surveyID string) error {
	if c == nil {
		return nil
	}
	if err := c.client.Del(ctx, c.key(surveyID)).Err(); err != nil {
		return fmt.Errorf("invalidate tally: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}
