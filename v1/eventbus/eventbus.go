package eventbus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Type discriminates lock lifecycle events.
type Type string

const (
	// TypeLocked is emitted when tokens enter custody: a new lock, an
	// extension or an amount increase.
	TypeLocked Type = "locked"
	// TypeUnlocked is emitted once per reason when a claim releases tokens.
	TypeUnlocked Type = "unlocked"
)

// AllHolders subscribes to events for every holder.
const AllHolders = "*"

// Event is one lock lifecycle notification. Events carry a monotonically
// increasing sequence number assigned by the emitting core, so a consumer
// can reconstruct the full lock history by replaying them in order.
type Event struct {
	ID         string    `json:"id"`
	Seq        uint64    `json:"seq"`
	Type       Type      `json:"type"`
	Holder     string    `json:"holder"`
	Reason     string    `json:"reason"`
	Amount     uint64    `json:"amount"`
	ValidUntil time.Time `json:"valid_until,omitempty"`
	EmittedAt  time.Time `json:"emitted_at"`
}

// Bus carries lock events to external consumers.
type Bus interface {
	// Publish delivers the event to all subscribers of its holder.
	Publish(ctx context.Context, ev Event) error
	// Subscribe returns a channel receiving events for holder, or for every
	// holder when AllHolders is given. The subscription ends when the
	// context is canceled or Unsubscribe is called.
	Subscribe(ctx context.Context, holder string) (chan Event, error)
	// Unsubscribe stops delivering events for holder to ch.
	Unsubscribe(ctx context.Context, holder string, ch chan Event) error
}

// Journal is implemented by buses that retain emitted events in order.
type Journal interface {
	// Replay returns every event published so far, in emission order.
	Replay(ctx context.Context) ([]Event, error)
}

// InMemoryBus is a local Bus that also keeps an append-only journal of every
// published event. It is the default sink for standalone use and tests.
type InMemoryBus struct {
	mu        sync.Mutex
	subs      map[string][]chan Event
	journal   []Event
	published uint64
	delivered uint64
}

// NewInMemoryBus returns a new InMemoryBus.
func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{subs: make(map[string][]chan Event)}
}

// Publish implements Bus.Publish.
func (b *InMemoryBus) Publish(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	b.journal = append(b.journal, ev)
	chans := append([]chan Event(nil), b.subs[ev.Holder]...)
	chans = append(chans, b.subs[AllHolders]...)
	b.mu.Unlock()
	atomic.AddUint64(&b.published, 1)
	for _, ch := range chans {
		select {
		case ch <- ev:
			atomic.AddUint64(&b.delivered, 1)
		default:
		}
	}
	return nil
}

// Subscribe implements Bus.Subscribe.
func (b *InMemoryBus) Subscribe(ctx context.Context, holder string) (chan Event, error) {
	ch := make(chan Event, 16)
	b.mu.Lock()
	b.subs[holder] = append(b.subs[holder], ch)
	b.mu.Unlock()
	go func() {
		<-ctx.Done()
		_ = b.Unsubscribe(context.Background(), holder, ch)
	}()
	return ch, nil
}

// Unsubscribe implements Bus.Unsubscribe.
func (b *InMemoryBus) Unsubscribe(ctx context.Context, holder string, ch chan Event) error {
	b.mu.Lock()
	subs := b.subs[holder]
	for i, c := range subs {
		if c == ch {
			subs[i] = subs[len(subs)-1]
			subs = subs[:len(subs)-1]
			b.subs[holder] = subs
			close(c)
			break
		}
	}
	if len(subs) == 0 {
		delete(b.subs, holder)
	}
	b.mu.Unlock()
	return nil
}

// Replay implements Journal.Replay.
func (b *InMemoryBus) Replay(ctx context.Context) ([]Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	out := append([]Event(nil), b.journal...)
	b.mu.Unlock()
	return out, nil
}

// Metrics reports publish and delivery counts for a bus.
type Metrics struct {
	Published uint64
	Delivered uint64
}

// Metrics returns the bus counters.
func (b *InMemoryBus) Metrics() Metrics {
	return Metrics{
		Published: atomic.LoadUint64(&b.published),
		Delivered: atomic.LoadUint64(&b.delivered),
	}
}
