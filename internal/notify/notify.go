// Package notify delivers small JSON messages to a player's live session.
// Delivery is at-most-once and advisory: the pairing a notification reports
// is durable regardless of the outcome here, and missed messages are
// reconciled by the client on reconnect.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"github.com/playchess/backend/internal/session"
)

// ErrGone is returned by a Sender when the endpoint refused the send or is
// unknown, i.e. the session binding is stale.
var ErrGone = errors.New("endpoint gone")

// Status is the advisory outcome of one delivery attempt.
type Status int

const (
	Delivered Status = iota
	NotConnected
	Gone
	Transient
)

func (s Status) String() string {
	switch s {
	case Delivered:
		return "delivered"
	case NotConnected:
		return "not_connected"
	case Gone:
		return "gone"
	default:
		return "transient"
	}
}

// Sender pushes raw bytes to one endpoint. Implemented by the ws hub.
type Sender interface {
	Send(endpoint string, payload []byte) error
}

// Notifier resolves a player's live endpoint and attempts one send.
type Notifier struct {
	sessions session.Store
	sender   Sender
}

func New(sessions session.Store, sender Sender) *Notifier {
	return &Notifier{sessions: sessions, sender: sender}
}

// Notify attempts one delivery to the player's most recent session. Never
// retries; all non-Delivered outcomes are best-effort done for the caller.
// A Gone endpoint drops the stale binding so later lookups miss cleanly.
func (n *Notifier) Notify(ctx context.Context, playerID string, payload interface{}) Status {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[NOTIFY] marshal payload for %s failed: %v", playerID, err)
		return Transient
	}

	endpoint, err := n.sessions.Lookup(ctx, playerID)
	if errors.Is(err, session.ErrNotBound) {
		return NotConnected
	}
	if err != nil {
		log.Printf("[NOTIFY] session lookup for %s failed: %v", playerID, err)
		return Transient
	}

	if err := n.sender.Send(endpoint, data); err != nil {
		if errors.Is(err, ErrGone) {
			if derr := n.sessions.Unbind(ctx, endpoint); derr != nil {
				log.Printf("[NOTIFY] unbind stale endpoint %s failed: %v", endpoint, derr)
			}
			return Gone
		}
		log.Printf("[NOTIFY] send to %s (%s) failed: %v", playerID, endpoint, err)
		return Transient
	}
	return Delivered
}
