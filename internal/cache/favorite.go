// Package cache holds the Redis-backed read cache. Reads tolerate
// eventual consistency (they are refreshed after every write attempt by
// the client contract), but mutations always invalidate so staleness is
// bounded by the TTL only for idle users.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/verdantio/greenhouse-backend/internal/models"
	"go.uber.org/zap"
)

const (
	favoriteKeyPrefix = "favorite:"
	favoriteTTL       = 30 * time.Second

	// noFavorite marks a cached "user has no favorite" answer, so the
	// common empty case does not hit Postgres on every dashboard load.
	noFavorite = "none"
)

type FavoriteCache struct {
	client *redis.Client
	logger *zap.Logger
}

// NewFavoriteCache connects to Redis from a REDIS_URL-style string.
func NewFavoriteCache(redisURL string, logger *zap.Logger) (*FavoriteCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &FavoriteCache{
		client: redis.NewClient(opts),
		logger: logger,
	}, nil
}

func (c *FavoriteCache) Close() error {
	return c.client.Close()
}

// Get returns (greenhouse, hit). A cache miss or any Redis failure is
// reported as a miss; the caller falls back to Postgres.
func (c *FavoriteCache) Get(ctx context.Context, userID uuid.UUID) (*models.Greenhouse, bool) {
	val, err := c.client.Get(ctx, favoriteKeyPrefix+userID.String()).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("favorite cache read failed", zap.Error(err))
		}
		return nil, false
	}
	if val == noFavorite {
		return nil, true
	}

	var gh models.Greenhouse
	if err := json.Unmarshal([]byte(val), &gh); err != nil {
		c.logger.Warn("favorite cache entry corrupt", zap.Error(err))
		return nil, false
	}
	return &gh, true
}

// Put stores the resolved favorite (or its absence) with a short TTL.
func (c *FavoriteCache) Put(ctx context.Context, userID uuid.UUID, gh *models.Greenhouse) {
	val := noFavorite
	if gh != nil {
		data, err := json.Marshal(gh)
		if err != nil {
			c.logger.Warn("favorite cache encode failed", zap.Error(err))
			return
		}
		val = string(data)
	}
	if err := c.client.Set(ctx, favoriteKeyPrefix+userID.String(), val, favoriteTTL).Err(); err != nil {
		c.logger.Warn("favorite cache write failed", zap.Error(err))
	}
}

// Invalidate drops the user's cached favorite. Called after any write
// that can change it: set favorite, delete greenhouse, unclaim of a sole
// main module.
func (c *FavoriteCache) Invalidate(ctx context.Context, userID uuid.UUID) {
	if err := c.client.Del(ctx, favoriteKeyPrefix+userID.String()).Err(); err != nil {
		c.logger.Warn("favorite cache invalidate failed", zap.Error(err))
	}
}
