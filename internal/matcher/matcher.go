// Package matcher consumes the queue index change feed and pairs waiting
// players. All cross-worker coordination happens through the store's
// conditional primitives; the matcher itself keeps no matching state.
package matcher

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"time"

	"github.com/playchess/backend/internal/config"
	"github.com/playchess/backend/internal/models"
	"github.com/playchess/backend/internal/notify"
	"github.com/playchess/backend/internal/queue"
)

// Notifier fans the pairing out to a player's live session. Outcomes are
// advisory; the matcher never retries a send.
type Notifier interface {
	Notify(ctx context.Context, playerID string, payload interface{}) notify.Status
}

// Consumer is the read side of the change feed (implemented by
// queue.Stream; tests drive handleEvent directly instead).
type Consumer interface {
	Shards() int
	Consume(ctx context.Context, shard int, h queue.EventHandler) error
}

// MatchNotification is the push message both sides of a pairing receive.
type MatchNotification struct {
	Action      string `json:"action"`
	GameID      string `json:"game_id"`
	OpponentID  string `json:"opponent_id"`
	Color       string `json:"color"`
	TimeControl string `json:"time_control"`
}

// Matcher pairs newly admitted waiters with rating-compatible opponents.
type Matcher struct {
	store  queue.Store
	stream Consumer
	notif  Notifier
	cfg    *config.Config
}

func New(store queue.Store, stream Consumer, notif Notifier, cfg *config.Config) *Matcher {
	return &Matcher{store: store, stream: stream, notif: notif, cfg: cfg}
}

// Start launches one worker per stream shard. Workers run until ctx is
// cancelled; a worker that falls out of its consume loop is restarted.
func (m *Matcher) Start(ctx context.Context) {
	log.Printf("[MATCHER] starting %d shard workers", m.stream.Shards())
	for shard := 0; shard < m.stream.Shards(); shard++ {
		go m.runShard(ctx, shard)
	}
}

func (m *Matcher) runShard(ctx context.Context, shard int) {
	for {
		err := m.stream.Consume(ctx, shard, m.handleEvent)
		if ctx.Err() != nil {
			log.Printf("[MATCHER] shard %d worker stopped", shard)
			return
		}
		log.Printf("[MATCHER] shard %d consume loop exited: %v (restarting)", shard, err)
		time.Sleep(time.Second)
	}
}

// handleEvent processes one change-feed event. Only INSERTs of waiting
// entries trigger a match search; MODIFY and REMOVE are ignored. Returns a
// TransientError to leave the event pending for redelivery; every other
// outcome acknowledges it. No failure is allowed to kill the worker.
func (m *Matcher) handleEvent(ctx context.Context, ev queue.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[MATCHER] panic handling event for %s/%s: %v",
				ev.Entry.BucketKey, ev.Entry.PlayerID, r)
			err = nil // poison event: acknowledge and move on
		}
	}()

	if ev.Type != queue.EventInsert || !ev.Entry.Waiting() {
		return nil
	}
	return m.matchWaiter(ctx, &ev.Entry)
}

// matchWaiter runs search + pairing for w, retrying on lost races until the
// pairing lands, no candidate remains, or w itself is no longer waiting.
// Each conflict removes at least one waiter from the next scan's view, so
// the loop needs no attempt cap.
func (m *Matcher) matchWaiter(ctx context.Context, w *models.QueueEntry) error {
	for {
		candidate, err := m.findOpponent(ctx, w)
		if err != nil {
			return err // transient scan failure: let the stream redeliver
		}
		if candidate == nil {
			// w stays waiting; a later insert into a neighbouring bucket
			// will trigger it again.
			log.Printf("[MATCHER] no match for %s in %s", w.PlayerID, w.BucketKey)
			return nil
		}

		game := m.buildGame(w, candidate)
		err = m.store.PairTxn(ctx, w, candidate, game)
		switch {
		case err == nil:
			log.Printf("[MATCHER] paired %s vs %s game=%s tc=%s",
				game.WhitePlayerID, game.BlackPlayerID, game.GameID, game.TimeControl)
			m.notifyPlayers(ctx, game)
			return nil

		case errors.Is(err, queue.ErrConflictingWaiter):
			// Lost the race for the candidate, or w itself got matched by a
			// concurrent worker. Re-scanning live state resolves which.
			still, serr := m.stillWaiting(ctx, w)
			if serr != nil {
				return serr
			}
			if !still {
				return nil
			}
			continue

		case queue.IsTransient(err):
			return err

		default:
			log.Printf("[MATCHER] pairing %s/%s failed: %v", w.BucketKey, w.PlayerID, err)
			return nil
		}
	}
}

// buildGame assigns colours by coin flip and derives the deterministic id.
func (m *Matcher) buildGame(w, c *models.QueueEntry) *models.Game {
	white, black := w.PlayerID, c.PlayerID
	if rand.Intn(2) == 0 {
		white, black = black, white
	}
	now := time.Now().Unix()
	return &models.Game{
		GameID:        GameID(w.PlayerID, c.PlayerID, now),
		WhitePlayerID: white,
		BlackPlayerID: black,
		TimeControl:   w.TimeControl,
		Status:        models.GameStatusActive,
		CreatedAt:     now,
	}
}

// notifyPlayers pushes game_matched to both sides. At-most-once, no retry:
// a disconnected player learns of the game through reconnect reconciliation.
func (m *Matcher) notifyPlayers(ctx context.Context, g *models.Game) {
	sides := []struct {
		player, opponent, color string
	}{
		{g.WhitePlayerID, g.BlackPlayerID, models.ColorWhite},
		{g.BlackPlayerID, g.WhitePlayerID, models.ColorBlack},
	}
	for _, side := range sides {
		status := m.notif.Notify(ctx, side.player, MatchNotification{
			Action:      "game_matched",
			GameID:      g.GameID,
			OpponentID:  side.opponent,
			Color:       side.color,
			TimeControl: g.TimeControl,
		})
		if status != notify.Delivered {
			log.Printf("[MATCHER] game %s notification to %s: %s", g.GameID, side.player, status)
		}
	}
}

// stillWaiting re-reads w's own bucket to check whether w is still pairable.
func (m *Matcher) stillWaiting(ctx context.Context, w *models.QueueEntry) (bool, error) {
	entries, err := m.store.ScanBucket(ctx, w.BucketKey)
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if e.PlayerID == w.PlayerID {
			return true, nil
		}
	}
	return false, nil
}
