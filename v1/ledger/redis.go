package ledger

import (
	"context"
	stdErrors "errors"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/mirkobrombin/go-lockup/v1/cache"
	lockuperrors "github.com/mirkobrombin/go-lockup/v1/errors"
)

const (
	defaultRedisOpTimeout = 5 * time.Second
	defaultKeyPrefix      = "lockup:balance:"
	supplyKeySuffix       = "!supply"
)

// Redis is a Ledger implementation storing balances in Redis. Balances live
// as integer strings under a configurable key prefix; the total supply is
// tracked under its own key so it survives restarts.
type Redis struct {
	client  *redis.Client
	timeout time.Duration
	prefix  string
	cache   *cache.Balances
}

// RedisOption configures a Redis ledger.
type RedisOption func(*redisOptions)

type redisOptions struct {
	timeout time.Duration
	prefix  string
	cache   *cache.Balances
}

// WithTimeout sets the operation timeout for Redis calls.
func WithTimeout(d time.Duration) RedisOption {
	return func(o *redisOptions) {
		o.timeout = d
	}
}

// WithKeyPrefix sets the key prefix balances are stored under.
func WithKeyPrefix(prefix string) RedisOption {
	return func(o *redisOptions) {
		o.prefix = prefix
	}
}

// WithBalanceCache routes BalanceOf reads through the given cache. Transfers
// and mints invalidate every identity they touch.
func WithBalanceCache(c *cache.Balances) RedisOption {
	return func(o *redisOptions) {
		o.cache = c
	}
}

// NewRedis returns a Redis ledger using the provided client.
func NewRedis(client *redis.Client, opts ...RedisOption) *Redis {
	o := redisOptions{timeout: defaultRedisOpTimeout, prefix: defaultKeyPrefix}
	for _, opt := range opts {
		opt(&o)
	}
	return &Redis{client: client, timeout: o.timeout, prefix: o.prefix, cache: o.cache}
}

func mapRedisErr(err error) error {
	if stdErrors.Is(err, context.DeadlineExceeded) {
		return lockuperrors.ErrTimeout
	}
	if stdErrors.Is(err, redis.ErrClosed) {
		return lockuperrors.ErrConnectionClosed
	}
	return err
}

func (l *Redis) key(id string) string {
	return l.prefix + id
}

func (l *Redis) readBalance(ctx context.Context, id string) (uint64, error) {
	v, err := l.client.Get(ctx, l.key(id)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, mapRedisErr(err)
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// BalanceOf implements Ledger.BalanceOf.
func (l *Redis) BalanceOf(ctx context.Context, id string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, mapRedisErr(err)
	}
	if l.cache != nil {
		if b, ok := l.cache.Get(id); ok {
			return b, nil
		}
	}
	cctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	b, err := l.readBalance(cctx, id)
	if err != nil {
		return 0, err
	}
	if l.cache != nil {
		l.cache.Set(id, b)
	}
	return b, nil
}

// Transfer implements Ledger.Transfer. The balance check and the two counter
// updates run inside a transactional pipeline; with a single writer the
// check cannot go stale between read and commit.
func (l *Redis) Transfer(ctx context.Context, from, to string, amount uint64) error {
	if err := ctx.Err(); err != nil {
		return mapRedisErr(err)
	}
	cctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	balance, err := l.readBalance(cctx, from)
	if err != nil {
		return err
	}
	if balance < amount {
		return lockuperrors.ErrInsufficientBalance
	}
	pipe := l.client.TxPipeline()
	pipe.DecrBy(cctx, l.key(from), int64(amount))
	pipe.IncrBy(cctx, l.key(to), int64(amount))
	if _, err := pipe.Exec(cctx); err != nil {
		return mapRedisErr(err)
	}
	if l.cache != nil {
		l.cache.Invalidate(from)
		l.cache.Invalidate(to)
	}
	return nil
}

// TotalSupply implements Ledger.TotalSupply.
func (l *Redis) TotalSupply(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, mapRedisErr(err)
	}
	cctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	v, err := l.client.Get(cctx, l.prefix+supplyKeySuffix).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, mapRedisErr(err)
	}
	return strconv.ParseUint(v, 10, 64)
}

// Mint credits amount to an identity and grows the total supply.
func (l *Redis) Mint(ctx context.Context, to string, amount uint64) error {
	if err := ctx.Err(); err != nil {
		return mapRedisErr(err)
	}
	cctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	pipe := l.client.TxPipeline()
	pipe.IncrBy(cctx, l.key(to), int64(amount))
	pipe.IncrBy(cctx, l.prefix+supplyKeySuffix, int64(amount))
	if _, err := pipe.Exec(cctx); err != nil {
		return mapRedisErr(err)
	}
	if l.cache != nil {
		l.cache.Invalidate(to)
	}
	return nil
}
