package eventbus

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func waitForSubscriber(t *testing.T, bus *InMemoryBus, holder string) {
	t.Helper()
	for i := 0; i < 100; i++ {
		bus.mu.Lock()
		n := len(bus.subs[holder])
		bus.mu.Unlock()
		if n == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("no subscriber registered for %s", holder)
}

func TestSSEHandlerStream(t *testing.T) {
	bus := NewInMemoryBus()
	srv := httptest.NewServer(SSEHandler(bus))
	defer srv.Close()

	respCh := make(chan *http.Response, 1)
	go func() {
		resp, err := http.Get(srv.URL + "?holder=alice")
		if err != nil {
			t.Errorf("get: %v", err)
			return
		}
		respCh <- resp
	}()

	waitForSubscriber(t, bus, "alice")
	if err := bus.Publish(context.Background(), testEvent(1, "alice")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	var resp *http.Response
	select {
	case resp = <-respCh:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for response")
	}
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "data: ") {
		t.Fatalf("unexpected line %q", line)
	}
	var ev Event
	if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ev.Holder != "alice" || ev.Type != TypeLocked {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestSSEHandlerMissingHolder(t *testing.T) {
	bus := NewInMemoryBus()
	srv := httptest.NewServer(SSEHandler(bus))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestWebSocketHandlerStream(t *testing.T) {
	bus := NewInMemoryBus()
	srv := httptest.NewServer(WebSocketHandler(bus))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?holder=alice"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	waitForSubscriber(t, bus, "alice")
	if err := bus.Publish(context.Background(), testEvent(1, "alice")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	var ev Event
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read: %v", err)
	}
	if ev.Holder != "alice" || ev.Seq != 1 {
		t.Fatalf("unexpected event %+v", ev)
	}
}
