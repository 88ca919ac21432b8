package eventbus

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"sync"
	"sync/atomic"
	"time"

	redis "github.com/redis/go-redis/v9"

	lockuperrors "github.com/mirkobrombin/go-lockup/v1/errors"
)

const (
	redisBusTimeout    = 5 * time.Second
	defaultRedisStream = "lockup:events"
)

// RedisBus carries events over a single Redis pub/sub channel. Every event
// goes to one global channel; subscriptions filter by holder client side, so
// per-holder and all-holder subscribers share one server-side channel.
type RedisBus struct {
	client  *redis.Client
	channel string

	mu        sync.Mutex
	subs      []*redisSub
	pubsub    *redis.PubSub
	cancel    context.CancelFunc
	published atomic.Uint64
	delivered atomic.Uint64
}

type redisSub struct {
	holder string
	ch     chan Event
}

// RedisBusOptions configures a RedisBus.
type RedisBusOptions struct {
	Client *redis.Client
	// Channel overrides the pub/sub channel name. Defaults to
	// "lockup:events".
	Channel string
}

// NewRedisBus returns a new RedisBus.
func NewRedisBus(opts RedisBusOptions) *RedisBus {
	ch := opts.Channel
	if ch == "" {
		ch = defaultRedisStream
	}
	return &RedisBus{client: opts.Client, channel: ch}
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

// Publish implements Bus.Publish.
func (b *RedisBus) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	cctx, cancel := context.WithTimeout(ctx, redisBusTimeout)
	defer cancel()
	if err := b.client.Publish(cctx, b.channel, data).Err(); err != nil {
		return mapRedisErr(err)
	}
	b.published.Add(1)
	return nil
}

func (b *RedisBus) ensureReceiver() error {
	if b.pubsub != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	ps := b.client.Subscribe(ctx, b.channel)
	if _, err := ps.Receive(ctx); err != nil {
		cancel()
		return mapRedisErr(err)
	}
	b.pubsub = ps
	b.cancel = cancel
	go func() {
		for msg := range ps.Channel() {
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				continue
			}
			b.mu.Lock()
			subs := append([]*redisSub(nil), b.subs...)
			b.mu.Unlock()
			for _, s := range subs {
				if s.holder != AllHolders && s.holder != ev.Holder {
					continue
				}
				select {
				case s.ch <- ev:
					b.delivered.Add(1)
				default:
				}
			}
		}
	}()
	return nil
}

// Subscribe implements Bus.Subscribe.
func (b *RedisBus) Subscribe(ctx context.Context, holder string) (chan Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.ensureReceiver(); err != nil {
		return nil, err
	}
	s := &redisSub{holder: holder, ch: make(chan Event, 16)}
	b.subs = append(b.subs, s)
	go func() {
		<-ctx.Done()
		_ = b.Unsubscribe(context.Background(), holder, s.ch)
	}()
	return s.ch, nil
}

// Unsubscribe implements Bus.Unsubscribe.
func (b *RedisBus) Unsubscribe(ctx context.Context, holder string, ch chan Event) error {
	b.mu.Lock()
	for i, s := range b.subs {
		if s.holder == holder && s.ch == ch {
			b.subs[i] = b.subs[len(b.subs)-1]
			b.subs = b.subs[:len(b.subs)-1]
			close(s.ch)
			break
		}
	}
	b.mu.Unlock()
	return nil
}

// Metrics returns the bus counters.
func (b *RedisBus) Metrics() Metrics {
	return Metrics{
		Published: b.published.Load(),
		Delivered: b.delivered.Load(),
	}
}

// Close tears down the receiver and all subscriptions.
func (b *RedisBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		b.cancel()
	}
	var err error
	if b.pubsub != nil {
		err = b.pubsub.Close()
		b.pubsub = nil
	}
	for _, s := range b.subs {
		close(s.ch)
	}
	b.subs = nil
	return err
}
