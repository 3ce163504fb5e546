// Package redis publishes live engine state (quotes, open positions,
// settlement summaries) for external dashboards. Everything written here
// is a cache: losing it never affects trading decisions.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/jaengyi/RedArrow/internal/markethours"
	"github.com/jaengyi/RedArrow/internal/model"
)

const (
	quoteTTL    = 30 * time.Minute
	positionTTL = 24 * time.Hour
)

// CacheConfig configures the Redis cache.
type CacheConfig struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int
}

// Cache writes engine state to Redis.
type Cache struct {
	client *goredis.Client
}

// Client returns the underlying client for health checks.
func (c *Cache) Client() *goredis.Client { return c.client }

// New connects and pings the server.
func New(cfg CacheConfig) (*Cache, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Cache{client: client}, nil
}

// Close releases the connection pool.
func (c *Cache) Close() error { return c.client.Close() }

// PublishSnapshots caches the latest quote per symbol under
// quote:<symbol> with a TTL.
func (c *Cache) PublishSnapshots(ctx context.Context, snaps []model.Snapshot) error {
	pipe := c.client.Pipeline()
	for i := range snaps {
		pipe.Set(ctx, "quote:"+snaps[i].Symbol, snaps[i].JSON(), quoteTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis quotes: %w", err)
	}
	return nil
}

// PublishPositions replaces the open-positions hash. An empty table
// clears the key so dashboards never show stale holdings.
func (c *Cache) PublishPositions(ctx context.Context, positions []model.Position) error {
	const key = "positions:open"

	pipe := c.client.TxPipeline()
	pipe.Del(ctx, key)
	if len(positions) > 0 {
		fields := make(map[string]interface{}, len(positions))
		for i := range positions {
			b, err := json.Marshal(positions[i])
			if err != nil {
				return fmt.Errorf("redis encode position: %w", err)
			}
			fields[positions[i].Symbol] = b
		}
		pipe.HSet(ctx, key, fields)
		pipe.Expire(ctx, key, positionTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis positions: %w", err)
	}
	return nil
}

// PublishSummary stores the settlement record under summary:<date>.
// Summaries are kept without TTL; they are tiny and useful for history.
func (c *Cache) PublishSummary(ctx context.Context, s model.DailySummary) error {
	if err := c.client.Set(ctx, "summary:"+s.Date, s.JSON(), 0).Err(); err != nil {
		return fmt.Errorf("redis summary: %w", err)
	}
	return c.client.Set(ctx, "summary:latest", markethours.TradeDate(s.SettledAt), 0).Err()
}
