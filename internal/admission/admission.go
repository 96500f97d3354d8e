// Package admission is the player-facing control plane for the matchmaking
// queue: session open/close, join and leave.
package admission

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/playchess/backend/internal/config"
	"github.com/playchess/backend/internal/models"
	"github.com/playchess/backend/internal/profile"
	"github.com/playchess/backend/internal/queue"
	"github.com/playchess/backend/internal/session"
)

// ErrUnknownTimeControl is returned when the requested tag is outside the
// configured closed set.
var ErrUnknownTimeControl = errors.New("unknown time control")

// Gateway validates requests, resolves ratings and writes the queue index.
type Gateway struct {
	store    queue.Store
	profiles profile.Store
	sessions session.Store
	cfg      *config.Config
}

func New(store queue.Store, profiles profile.Store, sessions session.Store, cfg *config.Config) *Gateway {
	return &Gateway{store: store, profiles: profiles, sessions: sessions, cfg: cfg}
}

// OpenSession binds a freshly opened push channel to its verified player.
// Any previous binding for the player is replaced; most-recent open wins.
func (g *Gateway) OpenSession(ctx context.Context, endpoint, playerID string) error {
	return g.sessions.Bind(ctx, models.Session{
		Endpoint: endpoint,
		PlayerID: playerID,
		OpenedAt: time.Now().Unix(),
	})
}

// CloseSession removes the binding for a closed channel.
func (g *Gateway) CloseSession(ctx context.Context, endpoint string) error {
	return g.sessions.Unbind(ctx, endpoint)
}

// Join admits the player into the queue for timeControl. The conditional
// put enforces the one-entry-per-player invariant even when a duplicate
// admission races the existence check.
func (g *Gateway) Join(ctx context.Context, timeControl, playerID string) error {
	if !g.cfg.AllowsTimeControl(timeControl) {
		return ErrUnknownTimeControl
	}

	rating := g.lookupRating(ctx, playerID)
	entry := &models.QueueEntry{
		BucketKey:   queue.Key(timeControl, queue.Bucket(rating, g.cfg.BucketStep)),
		PlayerID:    playerID,
		TimeControl: timeControl,
		Rating:      rating,
		JoinedAt:    time.Now().Unix(),
		Status:      models.StatusWaiting,
	}
	if err := g.store.Put(ctx, entry); err != nil {
		if errors.Is(err, queue.ErrAlreadyQueued) {
			return err
		}
		return fmt.Errorf("index write failed: %w", err)
	}
	log.Printf("[ADMISSION] %s joined %s (rating=%d)", playerID, entry.BucketKey, rating)
	return nil
}

// Leave removes the player's waiting entry for timeControl. Idempotent:
// leaving when not queued, or after the pairing transaction already won,
// is a silent no-op.
func (g *Gateway) Leave(ctx context.Context, timeControl, playerID string) error {
	if !g.cfg.AllowsTimeControl(timeControl) {
		return ErrUnknownTimeControl
	}

	rating := g.lookupRating(ctx, playerID)
	bucketKey := queue.Key(timeControl, queue.Bucket(rating, g.cfg.BucketStep))
	if err := g.store.Delete(ctx, bucketKey, playerID); err != nil {
		return fmt.Errorf("index write failed: %w", err)
	}
	log.Printf("[ADMISSION] %s left %s", playerID, bucketKey)
	return nil
}

// lookupRating reads the player's rating, falling back to the configured
// default on a missing profile or a store failure.
func (g *Gateway) lookupRating(ctx context.Context, playerID string) int {
	rating, err := g.profiles.Rating(ctx, playerID)
	if errors.Is(err, profile.ErrNotFound) {
		return g.cfg.DefaultRating
	}
	if err != nil {
		log.Printf("[ADMISSION] profile lookup for %s failed, using default rating: %v", playerID, err)
		return g.cfg.DefaultRating
	}
	return rating
}
