package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/carepulse/engage/internal/domain/analytics"
)

// MetricsCache caches serialized metrics documents in Redis so repeat reads
// of a completed analysis skip the database. A nil client disables caching
// entirely; every method then reports a miss.
type MetricsCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewMetricsCache creates a new Redis-backed metrics cache
func NewMetricsCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *MetricsCache {
	return &MetricsCache{client: client, ttl: ttl, logger: logger}
}

func cacheKey(code string) string {
	return fmt.Sprintf("metrics:%s", code)
}

// Get returns the cached document for a code, or (nil, false) on a miss.
// Cache errors degrade to a miss.
func (c *MetricsCache) Get(ctx context.Context, code string) (*analytics.MetricsDocument, bool) {
	if c.client == nil {
		return nil, false
	}
	payload, err := c.client.Get(ctx, cacheKey(code)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("metrics cache read failed",
				zap.String("code", code),
				zap.Error(err))
		}
		return nil, false
	}
	var doc analytics.MetricsDocument
	if err := json.Unmarshal(payload, &doc); err != nil {
		c.logger.Warn("metrics cache entry corrupt",
			zap.String("code", code),
			zap.Error(err))
		return nil, false
	}
	return &doc, true
}

// Set stores a document under its code. Failures are logged; completed
// analyses are always readable from the database regardless.
func (c *MetricsCache) Set(ctx context.Context, code string, doc *analytics.MetricsDocument) {
	if c.client == nil {
		return
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		c.logger.Warn("metrics cache serialization failed",
			zap.String("code", code),
			zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, cacheKey(code), payload, c.ttl).Err(); err != nil {
		c.logger.Warn("metrics cache write failed",
			zap.String("code", code),
			zap.Error(err))
	}
}

// GetSection returns a cached direct-compute section payload, or (nil, false)
// on a miss. Keys are filter-derived, built by the caller.
func (c *MetricsCache) GetSection(ctx context.Context, key string) ([]byte, bool) {
	if c.client == nil {
		return nil, false
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("section cache read failed",
				zap.String("key", key),
				zap.Error(err))
		}
		return nil, false
	}
	return payload, true
}

// SetSection stores a rendered section payload under a filter-derived key.
func (c *MetricsCache) SetSection(ctx context.Context, key string, payload []byte) {
	if c.client == nil {
		return
	}
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		c.logger.Warn("section cache write failed",
			zap.String("key", key),
			zap.Error(err))
	}
}
