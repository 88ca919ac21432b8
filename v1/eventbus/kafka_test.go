package eventbus

import (
	"context"
	"os"
	"testing"
	"time"

	sarama "github.com/IBM/sarama"
	"github.com/google/uuid"
)

func newKafkaBus(t *testing.T) (*KafkaBus, context.Context) {
	t.Helper()
	addr := os.Getenv("LOCKUP_TEST_KAFKA_ADDR")
	if addr == "" {
		t.Skip("LOCKUP_TEST_KAFKA_ADDR not set, skipping Kafka integration tests")
	}
	t.Logf("TestKafkaBus: using Kafka at %s", addr)

	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Consumer.Offsets.Initial = sarama.OffsetNewest

	bus, err := NewKafkaBus([]string{addr}, config, WithTopic("lockup-test-"+uuid.NewString()))
	if err != nil {
		t.Fatalf("NewKafkaBus: %v", err)
	}

	ctx := context.Background()
	t.Cleanup(func() {
		_ = bus.Close()
	})
	return bus, ctx
}

func TestKafkaBusPublishSubscribe(t *testing.T) {
	bus, ctx := newKafkaBus(t)

	ch, err := bus.Subscribe(ctx, "alice")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	// wait for the partition consumer to settle on the newest offset
	time.Sleep(2 * time.Second)

	if err := bus.Publish(ctx, testEvent(1, "alice")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case ev := <-ch:
		if ev.Holder != "alice" || ev.Amount != 100 {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("timeout waiting for event")
	}
	if m := bus.Metrics(); m.Published != 1 {
		t.Fatalf("expected published 1, got %d", m.Published)
	}
}
