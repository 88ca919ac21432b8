package eventbus

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
)

func newRedisBus(t *testing.T) (*RedisBus, context.Context) {
	t.Helper()
	addr := os.Getenv("LOCKUP_TEST_REDIS_ADDR")
	var client *redis.Client
	var mr *miniredis.Miniredis

	if addr != "" {
		t.Logf("TestRedisBus: using real Redis at %s", addr)
		client = redis.NewClient(&redis.Options{Addr: addr})
	} else {
		t.Log("TestRedisBus: using miniredis")
		var err error
		mr, err = miniredis.Run()
		if err != nil {
			t.Fatalf("miniredis run: %v", err)
		}
		client = redis.NewClient(&redis.Options{Addr: mr.Addr()})
	}

	bus := NewRedisBus(RedisBusOptions{Client: client})
	ctx := context.Background()
	t.Cleanup(func() {
		_ = bus.Close()
		_ = client.Close()
		if mr != nil {
			mr.Close()
		}
	})
	return bus, ctx
}

func TestRedisBusPublishSubscribe(t *testing.T) {
	bus, ctx := newRedisBus(t)

	ch, err := bus.Subscribe(ctx, "alice")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := bus.Publish(ctx, testEvent(1, "alice")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case ev := <-ch:
		if ev.Holder != "alice" || ev.Amount != 100 {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
	}
	if m := bus.Metrics(); m.Published != 1 {
		t.Fatalf("expected published 1, got %d", m.Published)
	}
}

func TestRedisBusHolderFiltering(t *testing.T) {
	bus, ctx := newRedisBus(t)

	alice, err := bus.Subscribe(ctx, "alice")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	all, err := bus.Subscribe(ctx, AllHolders)
	if err != nil {
		t.Fatalf("subscribe all: %v", err)
	}

	if err := bus.Publish(ctx, testEvent(1, "bob")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case ev := <-all:
		if ev.Holder != "bob" {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for wildcard event")
	}
	select {
	case ev := <-alice:
		t.Fatalf("alice should not receive bob's event %+v", ev)
	default:
	}
}
