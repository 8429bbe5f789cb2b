// Package cache keeps computed dashboard stats in Redis between ticket
// changes.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/pqr-service/internal/domain"
)

const versionKey = "stats:version"

// Slot is the versioned key a lookup was made under. An empty Slot is never
// written.
type Slot string

// StatsCache stores stats per visibility scope. Get returns nil stats on a
// miss together with the Slot the caller must pass to Set, so stats counted
// before an Invalidate land under a retired version. Invalidate drops every
// entry.
type StatsCache interface {
	Get(ctx context.Context, identity domain.Identity) (*domain.TicketStats, Slot, error)
	Set(ctx context.Context, slot Slot, stats *domain.TicketStats) error
	Invalidate(ctx context.Context) error
}

// ScopeKey names the slice of tickets an identity's stats cover. Staff share
// one entry per role; everybody else gets a private entry.
func ScopeKey(identity domain.Identity) string {
	if identity.Role.IsStaff() {
		return "staff:" + identity.Role.String()
	}
	return "user:" + strconv.FormatInt(identity.UserID, 10) + ":" + identity.Role.String()
}

// RedisStatsCache versions its keys so that invalidation is one INCR instead
// of a key scan. Stale versions expire through their TTL.
type RedisStatsCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStatsCache returns a Redis backed cache.
func NewRedisStatsCache(client *redis.Client, ttl time.Duration) *RedisStatsCache {
	return &RedisStatsCache{client: client, ttl: ttl}
}

func (c *RedisStatsCache) slot(ctx context.Context, identity domain.Identity) (Slot, error) {
	version, err := c.client.Get(ctx, versionKey).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", err
	}
	return Slot(fmt.Sprintf("stats:v%d:%s", version, ScopeKey(identity))), nil
}

// Get returns the cached stats, or nil and the slot to fill on a miss.
func (c *RedisStatsCache) Get(ctx context.Context, identity domain.Identity) (*domain.TicketStats, Slot, error) {
	slot, err := c.slot(ctx, identity)
	if err != nil {
		return nil, "", err
	}
	raw, err := c.client.Get(ctx, string(slot)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, slot, nil
	}
	if err != nil {
		return nil, "", err
	}
	var stats domain.TicketStats
	if err := json.Unmarshal(raw, &stats); err != nil {
		return nil, slot, err
	}
	return &stats, slot, nil
}

// Set stores stats under the slot returned by Get, never under the current
// version.
func (c *RedisStatsCache) Set(ctx context.Context, slot Slot, stats *domain.TicketStats) error {
	if slot == "" {
		return nil
	}
	data, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, string(slot), data, c.ttl).Err()
}

// Invalidate bumps the version so every existing entry is ignored.
func (c *RedisStatsCache) Invalidate(ctx context.Context) error {
	return c.client.Incr(ctx, versionKey).Err()
}

// NopStatsCache never hits.
type NopStatsCache struct{}

func (NopStatsCache) Get(context.Context, domain.Identity) (*domain.TicketStats, Slot, error) {
	return nil, "", nil
}

func (NopStatsCache) Set(context.Context, Slot, *domain.TicketStats) error { return nil }

func (NopStatsCache) Invalidate(context.Context) error { return nil }
