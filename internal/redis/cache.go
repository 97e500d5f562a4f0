package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/highscore-api/internal/config"
	"github.com/highscore-api/internal/domain"
)

// Cache provides Redis-backed caching of rendered leaderboard pages and a
// fixed-window rate limiter. Pages are deleted on every write to the owning
// game, so a submitter's next read recomputes from storage; the TTL is a
// backstop, not the consistency mechanism.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCache creates a new Redis cache
func NewCache(cfg *config.RedisConfig, ttl time.Duration, logger *slog.Logger) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &Cache{
		client: client,
		ttl:    ttl,
		logger: logger,
	}, nil
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}

// leaderboardKey returns the cache key for one rendered leaderboard page
func (c *Cache) leaderboardKey(gameID int64, period domain.Period, limit int) string {
	return fmt.Sprintf("game:%d:leaderboard:%s:%d", gameID, period.String(), limit)
}

// gamePattern matches every cached page for a game
func (c *Cache) gamePattern(gameID int64) string {
	return fmt.Sprintf("game:%d:leaderboard:*", gameID)
}

// rateKey returns the counter key for one rate limit window
func (c *Cache) rateKey(name, subject string) string {
	return fmt.Sprintf("ratelimit:%s:%s", name, subject)
}

// GetLeaderboard returns a cached page, or (nil, nil) on a miss.
func (c *Cache) GetLeaderboard(ctx context.Context, gameID int64, period domain.Period, limit int) (*domain.Leaderboard, error) {
	data, err := c.client.Get(ctx, c.leaderboardKey(gameID, period, limit)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting cached leaderboard: %w", err)
	}

	var lb domain.Leaderboard
	if err := json.Unmarshal(data, &lb); err != nil {
		// A corrupt entry is treated as a miss; the next Set overwrites it.
		c.logger.Warn("dropping corrupt leaderboard cache entry", "game_id", gameID, "error", err)
		return nil, nil
	}
	return &lb, nil
}

// SetLeaderboard caches a rendered page with the configured TTL.
func (c *Cache) SetLeaderboard(ctx context.Context, lb *domain.Leaderboard, limit int) error {
	data, err := json.Marshal(lb)
	if err != nil {
		return fmt.Errorf("marshaling leaderboard: %w", err)
	}
	key := c.leaderboardKey(lb.GameID, lb.Period, limit)
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("caching leaderboard: %w", err)
	}
	return nil
}

// InvalidateGame deletes every cached page for a game. Called after each
// score insert commits so reads observe the write immediately.
func (c *Cache) InvalidateGame(ctx context.Context, gameID int64) error {
	iter := c.client.Scan(ctx, 0, c.gamePattern(gameID), 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scanning cache keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("deleting cache keys: %w", err)
	}
	return nil
}

// Allow reports whether the subject may perform another request under the
// named fixed-window limit. When Redis is unreachable the limiter fails open
// and the caller is allowed through.
func (c *Cache) Allow(ctx context.Context, name, subject string, limit config.Rate) (bool, error) {
	key := c.rateKey(name, subject)

	pipe := c.client.Pipeline()
	countCmd := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, limit.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, fmt.Errorf("rate limit check: %w", err)
	}

	return countCmd.Val() <= int64(limit.Requests), nil
}
