// Package kvcache wraps the shared Redis instance with a small typed cache
// manager: JSON values, per-key TTLs, batch set, and pattern delete. It is the
// middle tier between process memory and Postgres for the emote cache.
package kvcache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
)

// Manager provides get/set/delete-with-TTL over a Redis client.
type Manager struct {
	rdb *redis.Client
}

// New returns a Manager over an existing client.
func New(rdb *redis.Client) *Manager { return &Manager{rdb: rdb} }

// Connect opens a Redis client using REDIS_ADDR/REDIS_PASSWORD and verifies it with a ping.
func Connect(ctx context.Context) (*redis.Client, error) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "redis:6379"
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return rdb, nil
}

// Ping verifies the Redis connection is alive.
func (m *Manager) Ping(ctx context.Context) error {
	if err := m.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Get unmarshals the value stored under key into dest. The bool reports
// whether the key existed; a missing key is not an error.
func (m *Manager) Get(ctx context.Context, key string, dest any) (bool, error) {
	raw, err := m.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("cache decode %s: %w", key, err)
	}
	return true, nil
}

// Set stores value under key as JSON with the given TTL. ttl <= 0 means no expiry.
func (m *Manager) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", key, err)
	}
	if err := m.rdb.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

// SetMany stores all entries with a shared TTL in a single pipeline round trip.
func (m *Manager) SetMany(ctx context.Context, entries map[string]any, ttl time.Duration) error {
	if len(entries) == 0 {
		return nil
	}
	pipe := m.rdb.Pipeline()
	for key, value := range entries {
		raw, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("cache encode %s: %w", key, err)
		}
		pipe.Set(ctx, key, raw, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache set batch: %w", err)
	}
	return nil
}

// Delete removes the given keys. Missing keys are ignored.
func (m *Manager) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := m.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}

// DeletePattern removes every key matching a glob pattern (e.g. "emotes:twitch:*")
// using SCAN so large keyspaces aren't blocked. Returns the number of keys removed.
func (m *Manager) DeletePattern(ctx context.Context, pattern string) (int, error) {
	deleted := 0
	iter := m.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := m.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			return deleted, fmt.Errorf("cache delete %s: %w", iter.Val(), err)
		}
		deleted++
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("cache scan %s: %w", pattern, err)
	}
	return deleted, nil
}
