package store

import (
	"context"
	"os"
	"sort"
	"testing"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
)

type record struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func newRedisStore(t *testing.T, opts ...RedisOption) *Redis[record] {
	t.Helper()
	addr := os.Getenv("LOCKUP_TEST_REDIS_ADDR")
	var client *redis.Client
	if addr != "" {
		t.Logf("using real Redis at %s", addr)
		client = redis.NewClient(&redis.Options{Addr: addr})
		t.Cleanup(func() {
			_ = client.FlushAll(context.Background()).Err()
			_ = client.Close()
		})
	} else {
		mr, err := miniredis.Run()
		if err != nil {
			t.Fatalf("miniredis run: %v", err)
		}
		client = redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() {
			_ = client.Close()
			mr.Close()
		})
	}
	return NewRedis[record](client, opts...)
}

func TestRedisStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newRedisStore(t)

	if _, ok, err := s.Get(ctx, "alice"); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
	want := record{Name: "alice", Count: 3}
	if err := s.Set(ctx, "alice", want); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, ok, err := s.Get(ctx, "alice")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestRedisStoreKeysStripPrefix(t *testing.T) {
	ctx := context.Background()
	s := newRedisStore(t, WithKeyPrefix("test:holders:"))

	if err := s.Set(ctx, "alice", record{Name: "alice"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.Set(ctx, "bob", record{Name: "bob"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	keys, err := s.Keys(ctx)
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	sort.Strings(keys)
	if len(keys) != 2 || keys[0] != "alice" || keys[1] != "bob" {
		t.Fatalf("unexpected keys %v", keys)
	}
}

func TestRedisStoreBatchCommit(t *testing.T) {
	ctx := context.Background()
	s := newRedisStore(t)
	if err := s.Set(ctx, "stale", record{Name: "stale"}); err != nil {
		t.Fatalf("set: %v", err)
	}

	b, err := s.Batch(ctx)
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if err := b.Set(ctx, "alice", record{Name: "alice", Count: 1}); err != nil {
		t.Fatalf("batch set: %v", err)
	}
	if err := b.Delete(ctx, "stale"); err != nil {
		t.Fatalf("batch delete: %v", err)
	}
	if err := b.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "stale"); ok {
		t.Fatal("expected stale to be deleted")
	}
	got, ok, err := s.Get(ctx, "alice")
	if err != nil || !ok || got.Count != 1 {
		t.Fatalf("unexpected get after commit: %+v ok=%v err=%v", got, ok, err)
	}
}
