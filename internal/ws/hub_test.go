package ws

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/playchess/backend/internal/notify"
)

// newTestSocket returns the server side of a live websocket connection.
func newTestSocket(t *testing.T) *websocket.Conn {
	t.Helper()
	accepted := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		accepted <- conn
	}))
	t.Cleanup(srv.Close)

	dialer, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { dialer.Close() })

	select {
	case conn := <-accepted:
		t.Cleanup(func() { conn.Close() })
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("upgrade did not complete")
		return nil
	}
}

func newTestClient(t *testing.T, hub *Hub, endpoint, playerID string) *Client {
	t.Helper()
	return &Client{
		conn:     newTestSocket(t),
		endpoint: endpoint,
		playerID: playerID,
		send:     make(chan []byte, 256),
		hub:      hub,
	}
}

// registerAndWait blocks until the hub has processed the registration.
func registerAndWait(t *testing.T, hub *Hub, c *Client) {
	t.Helper()
	hub.register <- c
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if err := hub.Send(c.endpoint, []byte("ready")); !errors.Is(err, notify.ErrGone) {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("registration of %s not processed", c.endpoint)
}

func TestSendUnknownEndpoint(t *testing.T) {
	hub := NewHub()
	if err := hub.Send("conn_missing", []byte("x")); !errors.Is(err, notify.ErrGone) {
		t.Errorf("got %v, want ErrGone", err)
	}
}

func TestSendDeliversToBuffer(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	c := newTestClient(t, hub, "conn_a", "alice")
	registerAndWait(t, hub, c)

	if err := hub.Send("conn_a", []byte("hello")); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	found := false
	for len(c.send) > 0 {
		if string(<-c.send) == "hello" {
			found = true
		}
	}
	if !found {
		t.Error("payload not buffered for the endpoint")
	}
}

func TestReconnectReplacesOldEndpoint(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	old := newTestClient(t, hub, "conn_a", "alice")
	registerAndWait(t, hub, old)
	replacement := newTestClient(t, hub, "conn_b", "alice")
	registerAndWait(t, hub, replacement)

	if err := hub.Send("conn_a", []byte("x")); !errors.Is(err, notify.ErrGone) {
		t.Errorf("send to replaced endpoint: got %v, want ErrGone", err)
	}
	if err := hub.Send("conn_b", []byte("x")); err != nil {
		t.Errorf("send to live endpoint failed: %v", err)
	}

	// The replaced client's channel is closed so its writePump exits.
	timeout := time.After(time.Second)
	for {
		select {
		case _, ok := <-old.send:
			if !ok {
				return
			}
		case <-timeout:
			t.Fatal("replaced send channel not closed")
		}
	}
}

// Sends racing reconnect replacements must never hit a closed channel: the
// hub closes a replaced client's send channel under the write lock, and
// every send holds the lock.
func TestSendDuringReconnectDoesNotPanic(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	first := newTestClient(t, hub, "conn_0", "alice")
	registerAndWait(t, hub, first)

	var current atomic.Value
	current.Store("conn_0")

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
				// Both outcomes are fine; a panic is the failure mode.
				hub.Send(current.Load().(string), []byte("payload"))
			}
		}
	}()

	for i := 1; i <= 20; i++ {
		endpoint := fmt.Sprintf("conn_%d", i)
		c := newTestClient(t, hub, endpoint, "alice")
		hub.register <- c
		current.Store(endpoint)
	}

	close(done)
	wg.Wait()
}
