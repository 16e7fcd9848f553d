package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

// setupTestRedis creates a miniredis server and returns a RedisCache instance
func setupTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisCache(client, time.Minute), mr
}

func product() *domain.Product {
	return &domain.Product{
		ID:    42,
		Name:  "Great Ball",
		Price: decimal.RequireFromString("600.50"),
		Options: []domain.ProductOption{
			{ID: 7, ProductID: 42, Name: "Pack x10", PriceDelta: decimal.NewFromInt(-500), Stock: 4, Multiplier: 10},
		},
	}
}

func TestGet_Success(t *testing.T) {
	c, mr := setupTestRedis(t)

	data, err := json.Marshal(product())
	require.NoError(t, err)
	require.NoError(t, mr.Set(cacheKey(42), string(data)))

	got, err := c.Get(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, "Great Ball", got.Name)
	assert.True(t, got.Price.Equal(decimal.RequireFromString("600.5")))
	require.Len(t, got.Options, 1)
	assert.Equal(t, 10, got.Options[0].Multiplier)
}

func TestGet_CacheMiss(t *testing.T) {
	c, _ := setupTestRedis(t)

	got, err := c.Get(context.Background(), 1)
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.Nil(t, got)
}

func TestGet_InvalidJSON(t *testing.T) {
	c, mr := setupTestRedis(t)
	require.NoError(t, mr.Set(cacheKey(42), "{not json"))

	_, err := c.Get(context.Background(), 42)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
}

func TestSet_StoresWithJitteredTTL(t *testing.T) {
	c, mr := setupTestRedis(t)

	require.NoError(t, c.Set(context.Background(), product()))

	assert.True(t, mr.Exists("product:42"))
	ttl := mr.TTL("product:42")
	assert.GreaterOrEqual(t, ttl, time.Minute)
	assert.Less(t, ttl, 6*time.Minute)

	got, err := c.Get(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.ID)

	mr.FastForward(7 * time.Minute)
	_, err = c.Get(context.Background(), 42)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestDelete(t *testing.T) {
	c, mr := setupTestRedis(t)
	require.NoError(t, c.Set(context.Background(), product()))

	require.NoError(t, c.Delete(context.Background(), 42))
	assert.False(t, mr.Exists("product:42"))

	// deleting a missing key is not an error
	require.NoError(t, c.Delete(context.Background(), 42))
}

func TestRedisDown(t *testing.T) {
	c, mr := setupTestRedis(t)
	mr.Close()

	_, err := c.Get(context.Background(), 42)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
	assert.Error(t, c.Set(context.Background(), product()))
}
