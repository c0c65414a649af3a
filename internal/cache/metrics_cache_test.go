package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/carepulse/engage/internal/domain/analytics"
)

func newTestCache(t *testing.T) (*MetricsCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewMetricsCache(client, 10*time.Minute, zap.NewNop()), mr
}

func TestCacheSetAndGet(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	doc := analytics.NewMetricsDocument("2026-08-31-1", analytics.Filter{TenantName: "mercy"})
	doc.BasicStats.TotalUsers = 120
	c.Set(ctx, "2026-08-31-1", doc)

	cached, ok := c.Get(ctx, "2026-08-31-1")
	require.True(t, ok)
	assert.Equal(t, "2026-08-31-1", cached.AnalysisCode)
	assert.Equal(t, int64(120), cached.BasicStats.TotalUsers)
	assert.Equal(t, "mercy", cached.Filter.TenantName)
}

func TestCacheMiss(t *testing.T) {
	c, _ := newTestCache(t)
	_, ok := c.Get(context.Background(), "unknown")
	assert.False(t, ok)
}

func TestCacheEntryExpires(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	doc := analytics.NewMetricsDocument("2026-08-31-1", analytics.Filter{})
	c.Set(ctx, "2026-08-31-1", doc)

	mr.FastForward(11 * time.Minute)
	_, ok := c.Get(ctx, "2026-08-31-1")
	assert.False(t, ok)
}

func TestCacheCorruptEntryIsMiss(t *testing.T) {
	c, mr := newTestCache(t)
	require.NoError(t, mr.Set("metrics:2026-08-31-1", "not json"))

	_, ok := c.Get(context.Background(), "2026-08-31-1")
	assert.False(t, ok)
}

func TestNilClientDisablesCache(t *testing.T) {
	c := NewMetricsCache(nil, time.Minute, zap.NewNop())
	ctx := context.Background()

	c.Set(ctx, "2026-08-31-1", analytics.NewMetricsDocument("2026-08-31-1", analytics.Filter{}))
	_, ok := c.Get(ctx, "2026-08-31-1")
	assert.False(t, ok)
}

func TestSectionSetAndGet(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	c.SetSection(ctx, "stats:basic:abcd", []byte(`{"total_users":120}`))

	payload, ok := c.GetSection(ctx, "stats:basic:abcd")
	require.True(t, ok)
	assert.JSONEq(t, `{"total_users":120}`, string(payload))

	_, ok = c.GetSection(ctx, "stats:basic:other")
	assert.False(t, ok)
}

func TestSectionNilClientIsMiss(t *testing.T) {
	c := NewMetricsCache(nil, time.Minute, zap.NewNop())
	ctx := context.Background()

	c.SetSection(ctx, "stats:basic:abcd", []byte(`{}`))
	_, ok := c.GetSection(ctx, "stats:basic:abcd")
	assert.False(t, ok)
}
