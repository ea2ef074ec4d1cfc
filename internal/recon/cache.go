package recon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	cacheVersionKey  = "recon:version"
	dashboardKeyBase = "recon:dashboard"
)

// Cache stores the computed dashboard in Redis behind a version counter.
// Any mutation bumps the version, which orphans every older key; stale
// entries simply expire. All methods tolerate a nil receiver or client so
// the service degrades to recomputation when Redis is absent.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) version(ctx context.Context) (int64, error) {
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.Set(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

func (c *Cache) dashboardKey(ctx context.Context) (string, error) {
	ver, err := c.version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d", dashboardKeyBase, ver), nil
}

// GetDashboard loads the cached dashboard; ok is false on miss.
func (c *Cache) GetDashboard(ctx context.Context) (Dashboard, bool, error) {
	if c == nil || c.client == nil {
		return Dashboard{}, false, nil
	}
	key, err := c.dashboardKey(ctx)
	if err != nil {
		return Dashboard{}, false, err
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Dashboard{}, false, nil
	}
	if err != nil {
		return Dashboard{}, false, fmt.Errorf("recon: cache get: %w", err)
	}
	var dashboard Dashboard
	if err := json.Unmarshal(raw, &dashboard); err != nil {
		return Dashboard{}, false, fmt.Errorf("recon: cache decode: %w", err)
	}
	return dashboard, true, nil
}

// PutDashboard stores the dashboard under the current version.
func (c *Cache) PutDashboard(ctx context.Context, dashboard Dashboard) error {
	if c == nil || c.client == nil {
		return nil
	}
	key, err := c.dashboardKey(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(dashboard)
	if err != nil {
		return fmt.Errorf("recon: cache encode: %w", err)
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("recon: cache put: %w", err)
	}
	return nil
}

// Bump invalidates all cached dashboards by advancing the version.
func (c *Cache) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	if err := c.client.Incr(ctx, cacheVersionKey).Err(); err != nil {
		return fmt.Errorf("recon: cache bump: %w", err)
	}
	return nil
}
