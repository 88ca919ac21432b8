package store

import (
	"context"
	"sort"
	"testing"
)

func TestInMemoryStoreSetGetKeys(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory[int]()

	if _, ok, err := s.Get(ctx, "a"); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
	if err := s.Set(ctx, "a", 1); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.Set(ctx, "b", 2); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, ok, err := s.Get(ctx, "b")
	if err != nil || !ok || v != 2 {
		t.Fatalf("unexpected get: v=%d ok=%v err=%v", v, ok, err)
	}
	keys, err := s.Keys(ctx)
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	sort.Strings(keys)
	if len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
		t.Fatalf("unexpected keys %v", keys)
	}
}

func TestInMemoryStoreBatch(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory[string]()
	if err := s.Set(ctx, "stale", "x"); err != nil {
		t.Fatalf("set: %v", err)
	}

	b, err := s.Batch(ctx)
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if err := b.Set(ctx, "a", "1"); err != nil {
		t.Fatalf("batch set: %v", err)
	}
	if err := b.Delete(ctx, "stale"); err != nil {
		t.Fatalf("batch delete: %v", err)
	}
	// nothing visible before commit
	if _, ok, _ := s.Get(ctx, "a"); ok {
		t.Fatal("expected batch writes to be invisible before commit")
	}
	if err := b.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "stale"); ok {
		t.Fatal("expected stale to be deleted")
	}
	if v, ok, _ := s.Get(ctx, "a"); !ok || v != "1" {
		t.Fatalf("expected a=1 after commit, got %q ok=%v", v, ok)
	}
}
