package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/gorilla/websocket"
)

var errSendBufferFull = errors.New("send buffer full")

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 4096
)

// Client is one live session channel.
type Client struct {
	conn     *websocket.Conn
	endpoint string
	playerID string
	send     chan []byte

	hub     *Hub
	gateway ControlGateway
}

// readPump reads control-plane messages and replies on the same channel.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		if err := c.gateway.CloseSession(context.Background(), c.endpoint); err != nil {
			log.Printf("[WS] close session %s failed: %v", c.endpoint, err)
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[WS] unexpected close for player %s: %v", c.playerID, err)
			}
			break
		}

		resp := c.gateway.HandleControl(context.Background(), c.playerID, message)
		data, err := json.Marshal(resp)
		if err != nil {
			log.Printf("[WS] marshal response for player %s failed: %v", c.playerID, err)
			continue
		}
		// Replies go through the hub's guarded path; writing c.send directly
		// would race the close on reconnect replacement.
		if err := c.hub.Send(c.endpoint, data); err != nil {
			log.Printf("[WS] response dropped for player %s: %v", c.playerID, err)
		}
	}
}

// writePump writes queued payloads and keepalive pings to the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Channel closed: connection is being replaced or cleaned up.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("[WS] write error for player %s: %v", c.playerID, err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
