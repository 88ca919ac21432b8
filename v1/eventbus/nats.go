package eventbus

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	nats "github.com/nats-io/nats.go"
)

const defaultNATSSubjectPrefix = "lockup.events."

type natsSubscription struct {
	sub *nats.Subscription
	ch  chan Event
}

// NATSBus carries events over NATS subjects. Each holder maps to its own
// subject under a prefix; AllHolders subscribes to the prefix wildcard.
type NATSBus struct {
	conn   *nats.Conn
	prefix string

	mu        sync.Mutex
	subs      map[chan Event]*natsSubscription
	published atomic.Uint64
	delivered atomic.Uint64
}

// NewNATSBus returns a new NATSBus using the provided connection.
func NewNATSBus(conn *nats.Conn) *NATSBus {
	return &NATSBus{
		conn:   conn,
		prefix: defaultNATSSubjectPrefix,
		subs:   make(map[chan Event]*natsSubscription),
	}
}

func (b *NATSBus) subject(holder string) string {
	if holder == AllHolders {
		return b.prefix + ">"
	}
	return b.prefix + holder
}

// Publish implements Bus.Publish.
func (b *NATSBus) Publish(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := b.conn.Publish(b.subject(ev.Holder), data); err != nil {
		return err
	}
	b.published.Add(1)
	return nil
}

// Subscribe implements Bus.Subscribe.
func (b *NATSBus) Subscribe(ctx context.Context, holder string) (chan Event, error) {
	ch := make(chan Event, 16)
	sub, err := b.conn.Subscribe(b.subject(holder), func(msg *nats.Msg) {
		var ev Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			return
		}
		select {
		case ch <- ev:
			b.delivered.Add(1)
		default:
		}
	})
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	b.subs[ch] = &natsSubscription{sub: sub, ch: ch}
	b.mu.Unlock()
	go func() {
		<-ctx.Done()
		_ = b.Unsubscribe(context.Background(), holder, ch)
	}()
	return ch, nil
}

// Unsubscribe implements Bus.Unsubscribe.
func (b *NATSBus) Unsubscribe(ctx context.Context, holder string, ch chan Event) error {
	b.mu.Lock()
	s, ok := b.subs[ch]
	if ok {
		delete(b.subs, ch)
	}
	b.mu.Unlock()
	if !ok {
		return nil
	}
	err := s.sub.Unsubscribe()
	close(s.ch)
	return err
}

// Metrics returns the bus counters.
func (b *NATSBus) Metrics() Metrics {
	return Metrics{
		Published: b.published.Load(),
		Delivered: b.delivered.Load(),
	}
}

// Close drops every subscription.
func (b *NATSBus) Close() {
	b.mu.Lock()
	subs := make([]*natsSubscription, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.subs = make(map[chan Event]*natsSubscription)
	b.mu.Unlock()
	for _, s := range subs {
		_ = s.sub.Unsubscribe()
		close(s.ch)
	}
}
