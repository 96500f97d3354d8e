package ws

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/playchess/backend/internal/notify"
)

// Hub maintains the set of live session channels, keyed by endpoint id.
type Hub struct {
	clients    map[string]*Client // endpoint -> client
	players    map[string]*Client // playerID -> current client
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		players:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Send delivers one payload to a specific endpoint. Returns notify.ErrGone
// when the endpoint is no longer connected (stale session binding). The lock
// is held across the channel send: Run closes a replaced client's send
// channel under the write lock, and an unlocked send could race the close.
func (h *Hub) Send(endpoint string, payload []byte) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	client, exists := h.clients[endpoint]
	if !exists {
		return notify.ErrGone
	}
	select {
	case client.send <- payload:
		return nil
	default:
		log.Printf("[WS] send buffer full for endpoint %s (player %s), dropping message",
			endpoint, client.playerID)
		return errSendBufferFull
	}
}

// Run processes register/unregister events. A new connection for a player
// who already has one closes and replaces the old connection; the most
// recent open wins.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if old, exists := h.players[client.playerID]; exists {
				log.Printf("[WS] player %s reconnecting - closing old endpoint %s", client.playerID, old.endpoint)
				if err := old.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "replaced by new connection"),
					time.Now().Add(5*time.Second)); err != nil {
					log.Printf("[WS] close control to old endpoint %s failed: %v", old.endpoint, err)
				}
				old.conn.Close()
				// Every send holds h.mu, so the close cannot race one.
				close(old.send)
				delete(h.clients, old.endpoint)
				delete(h.players, client.playerID)
			}
			h.clients[client.endpoint] = client
			h.players[client.playerID] = client
			h.mu.Unlock()

			log.Printf("[WS] player %s connected (endpoint %s)", client.playerID, client.endpoint)

		case client := <-h.unregister:
			h.mu.Lock()
			if cur, ok := h.clients[client.endpoint]; ok && cur == client {
				delete(h.clients, client.endpoint)
				if p, ok := h.players[client.playerID]; ok && p == client {
					delete(h.players, client.playerID)
				}
				close(client.send)
				log.Printf("[WS] player %s disconnected (endpoint %s)", client.playerID, client.endpoint)
			}
			h.mu.Unlock()
		}
	}
}
