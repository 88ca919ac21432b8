package eventbus

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/IBM/sarama"
	uuid "github.com/hashicorp/go-uuid"
)

const defaultKafkaTopic = "lockup.events"

// KafkaBus carries events over a single Kafka topic. Messages are keyed by
// holder so per-holder ordering survives partitioning; subscriptions filter
// by holder client side.
type KafkaBus struct {
	producer sarama.SyncProducer
	consumer sarama.Consumer
	topic    string

	mu        sync.Mutex
	subs      []*kafkaSub
	pcs       []sarama.PartitionConsumer
	started   bool
	published atomic.Uint64
	delivered atomic.Uint64
}

type kafkaSub struct {
	holder string
	ch     chan Event
}

// KafkaOption configures a KafkaBus.
type KafkaOption func(*kafkaOptions)

type kafkaOptions struct {
	topic string
}

// WithTopic overrides the topic events are published to.
func WithTopic(topic string) KafkaOption {
	return func(o *kafkaOptions) {
		o.topic = topic
	}
}

// NewKafkaBus creates a new KafkaBus connecting to the given brokers.
func NewKafkaBus(brokers []string, cfg *sarama.Config, opts ...KafkaOption) (*KafkaBus, error) {
	o := kafkaOptions{topic: defaultKafkaTopic}
	for _, opt := range opts {
		opt(&o)
	}
	if !cfg.Producer.Return.Successes {
		cfg.Producer.Return.Successes = true
	}
	client, err := sarama.NewClient(brokers, cfg)
	if err != nil {
		return nil, err
	}
	producer, err := sarama.NewSyncProducerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		_ = producer.Close()
		_ = client.Close()
		return nil, err
	}
	return &KafkaBus{producer: producer, consumer: consumer, topic: o.topic}, nil
}

// Publish implements Bus.Publish. Each message carries a unique nonce header
// so downstream consumers can deduplicate redeliveries.
func (b *KafkaBus) Publish(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	nonce, err := uuid.GenerateUUID()
	if err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{
		Topic: b.topic,
		Key:   sarama.StringEncoder(ev.Holder),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("nonce"), Value: []byte(nonce)},
		},
	}
	if _, _, err := b.producer.SendMessage(msg); err != nil {
		return err
	}
	b.published.Add(1)
	return nil
}

func (b *KafkaBus) ensureConsumers() error {
	if b.started {
		return nil
	}
	partitions, err := b.consumer.Partitions(b.topic)
	if err != nil {
		return err
	}
	for _, p := range partitions {
		pc, err := b.consumer.ConsumePartition(b.topic, p, sarama.OffsetNewest)
		if err != nil {
			return err
		}
		b.pcs = append(b.pcs, pc)
		go b.dispatch(pc)
	}
	b.started = true
	return nil
}

func (b *KafkaBus) dispatch(pc sarama.PartitionConsumer) {
	for msg := range pc.Messages() {
		var ev Event
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			continue
		}
		b.mu.Lock()
		subs := append([]*kafkaSub(nil), b.subs...)
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
}

// Subscribe implements Bus.Subscribe.
func (b *KafkaBus) Subscribe(ctx context.Context, holder string) (chan Event, error) {
	b.mu.Lock()
	if err := b.ensureConsumers(); err != nil {
		b.mu.Unlock()
		return nil, err
	}
	s := &kafkaSub{holder: holder, ch: make(chan Event, 16)}
	b.subs = append(b.subs, s)
	b.mu.Unlock()
	go func() {
		<-ctx.Done()
		_ = b.Unsubscribe(context.Background(), holder, s.ch)
	}()
	return s.ch, nil
}

// Unsubscribe implements Bus.Unsubscribe.
func (b *KafkaBus) Unsubscribe(ctx context.Context, holder string, ch chan Event) error {
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
func (b *KafkaBus) Metrics() Metrics {
	return Metrics{
		Published: b.published.Load(),
		Delivered: b.delivered.Load(),
	}
}

// Close releases resources used by the KafkaBus.
func (b *KafkaBus) Close() error {
	b.mu.Lock()
	pcs := b.pcs
	b.pcs = nil
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()
	for _, pc := range pcs {
		_ = pc.Close()
	}
	for _, s := range subs {
		close(s.ch)
	}
	perr := b.producer.Close()
	cerr := b.consumer.Close()
	if perr != nil {
		return perr
	}
	return cerr
}
