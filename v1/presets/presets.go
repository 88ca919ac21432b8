package presets

import (
	redis "github.com/redis/go-redis/v9"

	"github.com/mirkobrombin/go-lockup/v1/cache"
	"github.com/mirkobrombin/go-lockup/v1/eventbus"
	"github.com/mirkobrombin/go-lockup/v1/ledger"
	"github.com/mirkobrombin/go-lockup/v1/lockup"
	"github.com/mirkobrombin/go-lockup/v1/store"
)

// RedisOptions configures the connection to Redis.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// NewInMemoryStandalone creates a Lockup that runs entirely in-memory with
// no external dependencies: in-memory ledger, snapshot store and event bus.
// The ledger is returned alongside so callers can mint the initial supply.
func NewInMemoryStandalone(opts ...lockup.Option) (*lockup.Lockup, *ledger.InMemory) {
	lg := ledger.NewInMemory()
	bus := eventbus.NewInMemoryBus()
	base := []lockup.Option{lockup.WithSnapshots(store.NewInMemory[lockup.HolderRecord]())}
	return lockup.New(lg, bus, append(base, opts...)...), lg
}

// NewRedisBacked creates a Lockup with Redis as the balance ledger, the
// snapshot store and the event carrier, with a ristretto balance cache in
// front of ledger reads. Call Warmup on the returned Lockup to restore
// holder records before serving.
func NewRedisBacked(opts RedisOptions, extra ...lockup.Option) (*lockup.Lockup, *ledger.Redis) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	lg := ledger.NewRedis(client, ledger.WithBalanceCache(cache.NewBalances()))
	bus := eventbus.NewRedisBus(eventbus.RedisBusOptions{Client: client})
	snapshots := store.NewRedis[lockup.HolderRecord](client)

	base := []lockup.Option{lockup.WithSnapshots(snapshots)}
	return lockup.New(lg, bus, append(base, extra...)...), lg
}
