package redisclient

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ticket-service/internal/models"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/purchase_rate_limit.lua
var purchaseRateLimitScript string

type Client struct {
	rdb             *redis.Client
	rateLimitScript *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
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

	return newClient(rdb), nil
}

func newClient(rdb *redis.Client) *Client {
	return &Client{
		rdb:             rdb,
		rateLimitScript: redis.NewScript(purchaseRateLimitScript),
	}
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks Redis connectivity.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func zoneKey(zoneID int64) string {
	return fmt.Sprintf("catalog:zone:%d", zoneID)
}

func sessionKey(sessionID int64) string {
	return fmt.Sprintf("catalog:session:%d", sessionID)
}

// CacheZone stores zone metadata. SoldCount is never cached.
func (c *Client) CacheZone(ctx context.Context, zone *models.Zone, ttl time.Duration) error {
	meta := *zone
	meta.SoldCount = 0
	return c.setJSON(ctx, zoneKey(zone.ID), &meta, ttl)
}

// GetCachedZone returns cached zone metadata, or nil on a cache miss. The
// returned SoldCount is always zero.
func (c *Client) GetCachedZone(ctx context.Context, zoneID int64) (*models.Zone, error) {
	var zone models.Zone
	found, err := c.getJSON(ctx, zoneKey(zoneID), &zone)
	if err != nil || !found {
		return nil, err
	}
	return &zone, nil
}

// CacheSession stores session metadata.
func (c *Client) CacheSession(ctx context.Context, session *models.Session, ttl time.Duration) error {
	return c.setJSON(ctx, sessionKey(session.ID), session, ttl)
}

// GetCachedSession returns a cached session, or nil on a cache miss.
func (c *Client) GetCachedSession(ctx context.Context, sessionID int64) (*models.Session, error) {
	var session models.Session
	found, err := c.getJSON(ctx, sessionKey(sessionID), &session)
	if err != nil || !found {
		return nil, err
	}
	return &session, nil
}

// InvalidateSession drops a cached session so a status change is seen on the
// next lookup.
func (c *Client) InvalidateSession(ctx context.Context, sessionID int64) error {
	return c.rdb.Del(ctx, sessionKey(sessionID)).Err()
}

// AllowPurchase counts a purchase attempt for the purchaser in a fixed window
// and reports whether it is within limit.
func (c *Client) AllowPurchase(ctx context.Context, purchaserID int64, limit int, window time.Duration) (bool, error) {
	key := fmt.Sprintf("ratelimit:purchase:%d", purchaserID)

	result, err := c.rateLimitScript.Run(ctx, c.rdb, []string{key}, limit, window.Milliseconds()).Result()
	if err != nil {
		return false, fmt.Errorf("rate limit script failed: %w", err)
	}

	allowed, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected script result type")
	}

	return allowed == 1, nil
}

func (c *Client) setJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return c.rdb.Set(ctx, key, data, ttl).Err()
}

func (c *Client) getJSON(ctx context.Context, key string, v interface{}) (bool, error) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return true, nil
}
