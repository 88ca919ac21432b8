package store

import (
	"context"
	"sync"
)

// Store abstracts the snapshot persistence used by the lockup core to write
// through holder records and to warm up on start.
//
// T represents the type of records stored.
type Store[T any] interface {
	// Get retrieves the record for a key.
	// The boolean return indicates whether the key was found.
	Get(ctx context.Context, key string) (T, bool, error)
	// Set persists the record for a key.
	Set(ctx context.Context, key string, value T) error
	// Keys returns the list of keys present in the store. It is used for
	// warmup.
	Keys(ctx context.Context) ([]string, error)
}

// Batch groups multiple writes before committing them to the underlying
// storage in one round trip.
type Batch[T any] interface {
	Set(ctx context.Context, key string, value T) error
	Delete(ctx context.Context, key string) error
	Commit(ctx context.Context) error
}

// Batcher is implemented by stores that support batch operations.
type Batcher[T any] interface {
	Batch(ctx context.Context) (Batch[T], error)
}

// InMemory is a Store implementation backed by a map.
type InMemory[T any] struct {
	mu    sync.RWMutex
	items map[string]T
}

// NewInMemory returns a new InMemory store.
func NewInMemory[T any]() *InMemory[T] {
	return &InMemory[T]{items: make(map[string]T)}
}

// Get implements Store.Get.
func (s *InMemory[T]) Get(ctx context.Context, key string) (T, bool, error) {
	s.mu.RLock()
	v, ok := s.items[key]
	s.mu.RUnlock()
	if !ok {
		var zero T
		return zero, false, nil
	}
	return v, true, nil
}

// Set implements Store.Set.
func (s *InMemory[T]) Set(ctx context.Context, key string, value T) error {
	s.mu.Lock()
	s.items[key] = value
	s.mu.Unlock()
	return nil
}

// Keys implements Store.Keys.
func (s *InMemory[T]) Keys(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	keys := make([]string, 0, len(s.items))
	for k := range s.items {
		keys = append(keys, k)
	}
	s.mu.RUnlock()
	return keys, nil
}

// Batch implements Batcher.Batch.
func (s *InMemory[T]) Batch(ctx context.Context) (Batch[T], error) {
	return &inMemoryBatch[T]{s: s, sets: make(map[string]T)}, nil
}

type inMemoryBatch[T any] struct {
	s       *InMemory[T]
	sets    map[string]T
	deletes []string
}

func (b *inMemoryBatch[T]) Set(ctx context.Context, key string, value T) error {
	b.sets[key] = value
	return nil
}

func (b *inMemoryBatch[T]) Delete(ctx context.Context, key string) error {
	b.deletes = append(b.deletes, key)
	return nil
}

func (b *inMemoryBatch[T]) Commit(ctx context.Context) error {
	b.s.mu.Lock()
	defer b.s.mu.Unlock()
	for _, k := range b.deletes {
		delete(b.s.items, k)
	}
	for k, v := range b.sets {
		b.s.items[k] = v
	}
	return nil
}
