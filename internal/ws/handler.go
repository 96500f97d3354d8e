package ws

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/playchess/backend/internal/admission"
	"github.com/playchess/backend/internal/auth"
	"github.com/playchess/backend/internal/config"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // origin policy is enforced by the CORS layer
	},
}

// ControlGateway is the slice of the admission gateway the channel needs.
type ControlGateway interface {
	OpenSession(ctx context.Context, endpoint, playerID string) error
	CloseSession(ctx context.Context, endpoint string) error
	HandleControl(ctx context.Context, playerID string, raw []byte) admission.ControlResponse
}

// HandleWebSocket upgrades an authenticated session channel. Identity is
// resolved once from the handshake and cached for the channel's lifetime;
// channels without a verified identity are refused before the upgrade.
func HandleWebSocket(gw ControlGateway, hub *Hub, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		playerID, err := auth.FromRequest(c.Request, cfg.JWTSecret)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("[WS] upgrade error for player %s: %v", playerID, err)
			return
		}

		endpoint, err := newEndpointID()
		if err != nil {
			log.Printf("[WS] endpoint id generation failed for player %s: %v", playerID, err)
			conn.Close()
			return
		}

		client := &Client{
			conn:     conn,
			endpoint: endpoint,
			playerID: playerID,
			send:     make(chan []byte, 256),
			hub:      hub,
			gateway:  gw,
		}

		hub.register <- client
		if err := gw.OpenSession(context.Background(), client.endpoint, playerID); err != nil {
			log.Printf("[WS] session bind for player %s failed: %v", playerID, err)
		}

		go client.writePump()
		go client.readPump()
	}
}

// newEndpointID generates the durable per-session endpoint identifier.
func newEndpointID() (string, error) {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "conn_" + hex.EncodeToString(b), nil
}
