package redisclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"storefront/internal/models"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ErrCacheMiss is returned when a cached value is absent or expired
var ErrCacheMiss = errors.New("cache miss")

// releaseLockScript deletes the lock only while it still holds the caller's token
var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// setCartScript writes a cart only while its version still matches the caller's
var setCartScript = redis.NewScript(`
local current = redis.call("GET", KEYS[2]) or "0"
if current == ARGV[1] then
	redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
	return 1
end
return 0
`)

var invalidateCartScript = redis.NewScript(`
redis.call("DEL", KEYS[1])
redis.call("INCR", KEYS[2])
redis.call("PEXPIRE", KEYS[2], ARGV[1])
return 1
`)

// cartVersionTTL outlives any cached cart so a stale writer always sees the bump
const cartVersionTTL = time.Hour

type Client struct {
	rdb          *redis.Client
	cartTTL      time.Duration
	cartTTLNoise time.Duration
}

// NewClient creates a new Redis client and verifies the connection
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return Wrap(rdb), nil
}

// Wrap builds a Client around an existing connection
func Wrap(rdb *redis.Client) *Client {
	return &Client{
		rdb:          rdb,
		cartTTL:      15 * time.Minute,
		cartTTLNoise: 5 * time.Minute,
	}
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Ping checks the server is reachable
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// SetIdempotencyKey stores an idempotency key with TTL
func (c *Client) SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return c.rdb.Set(ctx, fmt.Sprintf("idempotency:%s", key), value, ttl).Err()
}

// GetIdempotencyKey returns the value recorded for an idempotency key
func (c *Client) GetIdempotencyKey(ctx context.Context, key string) (string, bool, error) {
	value, err := c.rdb.Get(ctx, fmt.Sprintf("idempotency:%s", key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// AcquireLock acquires a distributed lock and returns the token needed to release it
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := c.rdb.SetNX(ctx, fmt.Sprintf("lock:%s", lockKey), token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

// ReleaseLock releases a distributed lock if it is still held with token
func (c *Client) ReleaseLock(ctx context.Context, lockKey, token string) error {
	return releaseLockScript.Run(ctx, c.rdb, []string{fmt.Sprintf("lock:%s", lockKey)}, token).Err()
}

// GetCart returns the cached contents of a cart
func (c *Client) GetCart(ctx context.Context, owner string) (*models.CartContents, error) {
	data, err := c.rdb.Get(ctx, cartKey(owner)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var contents models.CartContents
	if err := json.Unmarshal(data, &contents); err != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err)
	}
	return &contents, nil
}

// CartVersion returns the invalidation counter of a cart. Read it before
// loading from the database and hand it back to SetCart.
func (c *Client) CartVersion(ctx context.Context, owner string) (int64, error) {
	v, err := c.rdb.Get(ctx, cartVersionKey(owner)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get failed: %w", err)
	}
	return v, nil
}

// SetCart caches the contents of a cart unless it was invalidated after version
// was read. The TTL is jittered so carts do not expire together.
func (c *Client) SetCart(ctx context.Context, owner string, version int64, contents *models.CartContents) (bool, error) {
	data, err := json.Marshal(contents)
	if err != nil {
		return false, fmt.Errorf("marshal cart failed: %w", err)
	}

	ttl := c.cartTTL
	if c.cartTTLNoise > 0 {
		ttl += time.Duration(rand.Int63n(int64(c.cartTTLNoise)))
	}
	stored, err := setCartScript.Run(ctx, c.rdb,
		[]string{cartKey(owner), cartVersionKey(owner)},
		version, data, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("redis set failed: %w", err)
	}
	return stored == 1, nil
}

// DeleteCart drops the cached cart and bumps its version
func (c *Client) DeleteCart(ctx context.Context, owner string) error {
	err := invalidateCartScript.Run(ctx, c.rdb,
		[]string{cartKey(owner), cartVersionKey(owner)},
		cartVersionTTL.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func cartKey(owner string) string {
	return fmt.Sprintf("cart:%s", owner)
}

func cartVersionKey(owner string) string {
	return fmt.Sprintf("cart-version:%s", owner)
}
