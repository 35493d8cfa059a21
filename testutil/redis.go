package testutil

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/onnwee/chatcore/kvcache"
)

// SetupTestRedis starts an in-process miniredis and returns a cache manager
// bound to it, plus the miniredis handle for TTL fast-forwarding.
func SetupTestRedis(t *testing.T) (*kvcache.Manager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return kvcache.New(rdb), mr
}
