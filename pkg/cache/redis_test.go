package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis creates a test Redis client using miniredis
func setupTestRedis(t *testing.T) (*Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := &Client{
		Redis: redis.NewClient(&redis.Options{Addr: mr.Addr()}),
	}

	return client, mr
}

func TestClient_SetGet(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "test:key1", "value1", time.Hour))

	val, err := client.Get(ctx, "test:key1")
	require.NoError(t, err)
	assert.Equal(t, "value1", val)

	exists, err := client.Exists(ctx, "test:key1")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, client.Delete(ctx, "test:key1"))
	exists, err = client.Exists(ctx, "test:key1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestClient_JSON(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	ctx := context.Background()

	type point struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	}

	t.Run("Miss", func(t *testing.T) {
		var p point
		assert.ErrorIs(t, client.GetJSON(ctx, "geocode:nowhere", &p), ErrMiss)
	})

	t.Run("Hit", func(t *testing.T) {
		require.NoError(t, client.SetJSON(ctx, "geocode:boston", point{Lat: 42.36, Lng: -71.06}, time.Hour))

		var p point
		require.NoError(t, client.GetJSON(ctx, "geocode:boston", &p))
		assert.Equal(t, point{Lat: 42.36, Lng: -71.06}, p)
	})

	t.Run("Expires", func(t *testing.T) {
		require.NoError(t, client.SetJSON(ctx, "geocode:short", point{}, time.Minute))
		mr.FastForward(2 * time.Minute)

		var p point
		assert.ErrorIs(t, client.GetJSON(ctx, "geocode:short", &p), ErrMiss)
	})
}

func TestClient_Lock(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	ctx := context.Background()

	ok, err := client.TryLock(ctx, "scrape:lock:Biz-1", "worker-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	t.Run("Second holder is rejected", func(t *testing.T) {
		ok, err := client.TryLock(ctx, "scrape:lock:Biz-1", "worker-b", time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Foreign token cannot release", func(t *testing.T) {
		require.NoError(t, client.Unlock(ctx, "scrape:lock:Biz-1", "worker-b"))
		assert.True(t, mr.Exists("scrape:lock:Biz-1"))
	})

	t.Run("Owner releases", func(t *testing.T) {
		require.NoError(t, client.Unlock(ctx, "scrape:lock:Biz-1", "worker-a"))
		assert.False(t, mr.Exists("scrape:lock:Biz-1"))
	})

	t.Run("TTL is applied", func(t *testing.T) {
		_, err := client.TryLock(ctx, "scrape:lock:Biz-2", "worker-a", time.Minute)
		require.NoError(t, err)

		ttl, err := client.TTL(ctx, "scrape:lock:Biz-2")
		require.NoError(t, err)
		assert.Greater(t, ttl, time.Duration(0))
	})
}
