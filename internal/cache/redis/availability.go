// Package redis caches the availability projection in Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/cimillas/ultimate-ticket/holds/internal/domain"
)

const keyPrefix = "holds:availability:"

func zoneKey(zoneID string) string   { return keyPrefix + "zone:" + zoneID }
func eventKey(eventID string) string { return keyPrefix + "event:" + eventID }

// AvailabilityCache implements app.AvailabilityCache. Entries expire after ttl
// even if an invalidation is lost, which bounds how stale a read can be.
type AvailabilityCache struct {
	client goredis.Cmdable
	ttl    time.Duration
}

func NewAvailabilityCache(client goredis.Cmdable, ttl time.Duration) *AvailabilityCache {
	return &AvailabilityCache{client: client, ttl: ttl}
}

func (c *AvailabilityCache) GetZone(ctx context.Context, zoneID string) (domain.Availability, bool, error) {
	var a domain.Availability
	ok, err := c.get(ctx, zoneKey(zoneID), &a)
	return a, ok, err
}

func (c *AvailabilityCache) SetZone(ctx context.Context, a domain.Availability) error {
	return c.set(ctx, zoneKey(a.ZoneID), a)
}

func (c *AvailabilityCache) GetEvent(ctx context.Context, eventID string) ([]domain.Availability, bool, error) {
	var zones []domain.Availability
	ok, err := c.get(ctx, eventKey(eventID), &zones)
	return zones, ok, err
}

func (c *AvailabilityCache) SetEvent(ctx context.Context, eventID string, zones []domain.Availability) error {
	return c.set(ctx, eventKey(eventID), zones)
}

func (c *AvailabilityCache) Invalidate(ctx context.Context, zoneIDs, eventIDs []string) error {
	keys := make([]string, 0, len(zoneIDs)+len(eventIDs))
	for _, id := range zoneIDs {
		keys = append(keys, zoneKey(id))
	}
	for _, id := range eventIDs {
		keys = append(keys, eventKey(id))
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del availability: %w", err)
	}
	return nil
}

func (c *AvailabilityCache) get(ctx context.Context, key string, dst any) (bool, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (c *AvailabilityCache) set(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}
