package redisclient

import (
	"context"
	"testing"
	"time"

	"storefront/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*Client, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := Wrap(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func TestCartCacheRoundTrip(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()

	contents := &models.CartContents{
		Cart:  models.Cart{ID: 7},
		Lines: []models.CartLine{{ID: 1, CartID: 7, ProductID: 3, Quantity: 2}},
	}
	version, err := client.CartVersion(ctx, "user:1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), version)

	stored, err := client.SetCart(ctx, "user:1", version, contents)
	require.NoError(t, err)
	assert.True(t, stored)

	got, err := client.GetCart(ctx, "user:1")
	require.NoError(t, err)
	require.Len(t, got.Lines, 1)
	assert.Equal(t, int64(3), got.Lines[0].ProductID)
	assert.Equal(t, 2, got.Lines[0].Quantity)

	ttl := mr.TTL("cart:user:1")
	assert.True(t, ttl >= 15*time.Minute, "TTL should be at least the base")
	assert.True(t, ttl <= 20*time.Minute, "TTL should be base + max jitter")

	require.NoError(t, client.DeleteCart(ctx, "user:1"))
	_, err = client.GetCart(ctx, "user:1")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestSetCartRefusesAfterInvalidation(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()
	contents := &models.CartContents{Cart: models.Cart{ID: 7}}

	version, err := client.CartVersion(ctx, "user:1")
	require.NoError(t, err)
	require.NoError(t, client.DeleteCart(ctx, "user:1"))

	stored, err := client.SetCart(ctx, "user:1", version, contents)
	require.NoError(t, err)
	assert.False(t, stored)
	assert.False(t, mr.Exists("cart:user:1"))

	version, err = client.CartVersion(ctx, "user:1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	stored, err = client.SetCart(ctx, "user:1", version, contents)
	require.NoError(t, err)
	assert.True(t, stored)
	assert.True(t, mr.Exists("cart:user:1"))
}

func TestGetCart_InvalidJSON(t *testing.T) {
	client, mr := setupTestRedis(t)
	require.NoError(t, mr.Set("cart:session:abc", "{not json"))

	_, err := client.GetCart(context.Background(), "session:abc")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
}

func TestLockIsExclusiveAndTokenGuarded(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()

	token, ok, err := client.AcquireLock(ctx, "checkout:1", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	_, ok, err = client.AcquireLock(ctx, "checkout:1", 30*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	// a stale holder cannot release someone else's lock
	require.NoError(t, client.ReleaseLock(ctx, "checkout:1", "stale"))
	assert.True(t, mr.Exists("lock:checkout:1"))

	require.NoError(t, client.ReleaseLock(ctx, "checkout:1", token))
	assert.False(t, mr.Exists("lock:checkout:1"))

	_, ok, err = client.AcquireLock(ctx, "checkout:1", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIdempotencyKey(t *testing.T) {
	client, _ := setupTestRedis(t)
	ctx := context.Background()

	_, found, err := client.GetIdempotencyKey(ctx, "req-1")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, client.SetIdempotencyKey(ctx, "req-1", "order-uuid", time.Hour))
	value, found, err := client.GetIdempotencyKey(ctx, "req-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "order-uuid", value)
}
