package kvcache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupManager(t *testing.T) (*Manager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return New(rdb), mr
}

func TestSetGetRoundTrip(t *testing.T) {
	m, _ := setupManager(t)
	ctx := context.Background()

	if err := m.Set(ctx, "emotes:twitch:global", []string{"Kappa", "PogChamp"}, time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	var codes []string
	found, err := m.Get(ctx, "emotes:twitch:global", &codes)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !found {
		t.Fatalf("expected key to exist")
	}
	if len(codes) != 2 || codes[0] != "Kappa" {
		t.Errorf("unexpected value: %v", codes)
	}
}

func TestGetMissing(t *testing.T) {
	m, _ := setupManager(t)
	var dest string
	found, err := m.Get(context.Background(), "nope", &dest)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if found {
		t.Errorf("expected miss for absent key")
	}
}

func TestTTLExpiry(t *testing.T) {
	m, mr := setupManager(t)
	ctx := context.Background()
	if err := m.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	mr.FastForward(2 * time.Minute)
	var dest string
	found, err := m.Get(ctx, "k", &dest)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if found {
		t.Errorf("expected key to expire after TTL")
	}
}

func TestSetMany(t *testing.T) {
	m, _ := setupManager(t)
	ctx := context.Background()
	err := m.SetMany(ctx, map[string]any{
		"emotes:twitch:1": []string{"a"},
		"emotes:twitch:2": []string{"b"},
	}, time.Minute)
	if err != nil {
		t.Fatalf("SetMany: %v", err)
	}
	var codes []string
	if found, _ := m.Get(ctx, "emotes:twitch:2", &codes); !found {
		t.Errorf("expected batch-set key to exist")
	}
}

func TestDeletePattern(t *testing.T) {
	m, _ := setupManager(t)
	ctx := context.Background()
	_ = m.Set(ctx, "emotes:twitch:global", "x", 0)
	_ = m.Set(ctx, "emotes:twitch:123", "y", 0)
	_ = m.Set(ctx, "emotes:discord:global", "z", 0)

	n, err := m.DeletePattern(ctx, "emotes:twitch:*")
	if err != nil {
		t.Fatalf("DeletePattern: %v", err)
	}
	if n != 2 {
		t.Errorf("deleted = %d, want 2", n)
	}
	var dest string
	if found, _ := m.Get(ctx, "emotes:discord:global", &dest); !found {
		t.Errorf("non-matching key should survive pattern delete")
	}
}
