package store

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	lockuperrors "github.com/mirkobrombin/go-lockup/v1/errors"
)

const (
	defaultRedisOpTimeout = 5 * time.Second
	defaultRedisKeyPrefix = "lockup:holder:"
	redisScanBatch        = 100
)

// Redis implements Store using a Redis backend. Records are JSON encoded
// under a key prefix so a single Redis database can host both the ledger and
// the snapshot store without key collisions.
type Redis[T any] struct {
	client  *redis.Client
	timeout time.Duration
	prefix  string
}

// RedisOption configures a Redis store.
type RedisOption func(*redisOptions)

type redisOptions struct {
	timeout time.Duration
	prefix  string
}

// WithTimeout sets the operation timeout for Redis calls.
func WithTimeout(d time.Duration) RedisOption {
	return func(o *redisOptions) {
		o.timeout = d
	}
}

// WithKeyPrefix sets the prefix records are stored under.
func WithKeyPrefix(prefix string) RedisOption {
	return func(o *redisOptions) {
		o.prefix = prefix
	}
}

// NewRedis returns a new Redis store using the provided client.
func NewRedis[T any](client *redis.Client, opts ...RedisOption) *Redis[T] {
	o := redisOptions{timeout: defaultRedisOpTimeout, prefix: defaultRedisKeyPrefix}
	for _, opt := range opts {
		opt(&o)
	}
	return &Redis[T]{client: client, timeout: o.timeout, prefix: o.prefix}
}

func mapErr(err error) error {
	if stdErrors.Is(err, context.DeadlineExceeded) {
		return lockuperrors.ErrTimeout
	}
	if stdErrors.Is(err, redis.ErrClosed) {
		return lockuperrors.ErrConnectionClosed
	}
	return err
}

// Get implements Store.Get.
func (s *Redis[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, false, mapErr(err)
	}
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	data, err := s.client.Get(cctx, s.prefix+key).Bytes()
	if err == redis.Nil {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, mapErr(err)
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return zero, false, err
	}
	return v, true, nil
}

// Set implements Store.Set.
func (s *Redis[T]) Set(ctx context.Context, key string, value T) error {
	if err := ctx.Err(); err != nil {
		return mapErr(err)
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.client.Set(cctx, s.prefix+key, data, 0).Err(); err != nil {
		return mapErr(err)
	}
	return nil
}

// Keys implements Store.Keys using SCAN over the configured prefix.
func (s *Redis[T]) Keys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, mapErr(err)
	}
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	var cursor uint64
	var keys []string
	for {
		batch, next, err := s.client.Scan(cctx, cursor, s.prefix+"*", redisScanBatch).Result()
		if err != nil {
			return nil, mapErr(err)
		}
		for _, k := range batch {
			keys = append(keys, strings.TrimPrefix(k, s.prefix))
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	return keys, nil
}

// Batch implements Batcher.Batch using a Redis pipeline.
func (s *Redis[T]) Batch(ctx context.Context) (Batch[T], error) {
	return &redisBatch[T]{s: s, sets: make(map[string]T)}, nil
}

type redisBatch[T any] struct {
	s       *Redis[T]
	sets    map[string]T
	deletes []string
}

func (b *redisBatch[T]) Set(ctx context.Context, key string, value T) error {
	b.sets[key] = value
	return nil
}

func (b *redisBatch[T]) Delete(ctx context.Context, key string) error {
	b.deletes = append(b.deletes, key)
	return nil
}

func (b *redisBatch[T]) Commit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return mapErr(err)
	}
	cctx, cancel := context.WithTimeout(ctx, b.s.timeout)
	defer cancel()
	pipe := b.s.client.TxPipeline()
	for k, v := range b.sets {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		pipe.Set(cctx, b.s.prefix+k, data, 0)
	}
	if len(b.deletes) > 0 {
		prefixed := make([]string, len(b.deletes))
		for i, k := range b.deletes {
			prefixed[i] = b.s.prefix + k
		}
		pipe.Del(cctx, prefixed...)
	}
	if _, err := pipe.Exec(cctx); err != nil {
		return mapErr(err)
	}
	return nil
}
