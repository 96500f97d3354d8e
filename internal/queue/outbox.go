package queue

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/playchess/backend/internal/models"
)

const (
	outboxPollInterval = 500 * time.Millisecond
	outboxBatch        = 64

	// Advisory lock key serialising drains across server instances, so
	// events reach the feed in insertion order.
	outboxLockKey = 824218
)

type outboxRow struct {
	ID        int64  `db:"id"`
	EventType string `db:"event_type"`
	Entry     []byte `db:"entry"`
}

// Outbox relays queue mutation events recorded by PGStore to the change
// feed. Rows are written in the same transaction as the mutation and only
// deleted after a successful publish: a crash or feed outage in between
// redelivers instead of dropping, keeping the feed at-least-once.
type Outbox struct {
	db     *sqlx.DB
	events EventPublisher
}

func NewOutbox(db *sqlx.DB, events EventPublisher) *Outbox {
	return &Outbox{db: db, events: events}
}

// Run polls the outbox until ctx is cancelled.
func (o *Outbox) Run(ctx context.Context) {
	ticker := time.NewTicker(outboxPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := o.drain(ctx); err != nil {
				log.Printf("[OUTBOX] drain failed: %v", err)
			}
		}
	}
}

// drain publishes pending rows in insertion order and deletes the ones that
// went through. A publish failure stops the batch; the remaining rows are
// retried on the next poll.
func (o *Outbox) drain(ctx context.Context) error {
	tx, err := o.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var locked bool
	if err := tx.GetContext(ctx, &locked, `SELECT pg_try_advisory_xact_lock($1)`, outboxLockKey); err != nil {
		return err
	}
	if !locked {
		return nil // another instance is draining
	}

	var rows []outboxRow
	if err := tx.SelectContext(ctx, &rows, `
		SELECT id, event_type, entry FROM queue_events_outbox
		ORDER BY id
		LIMIT $1
	`, outboxBatch); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	done, perr := publishRows(ctx, o.events, rows)
	if len(done) > 0 {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM queue_events_outbox WHERE id = ANY($1)`, pq.Array(done)); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return perr
}

// publishRows pushes rows to the feed in id order, stopping at the first
// failure so per-bucket ordering holds. Undecodable rows are dropped.
// Returns the ids that are finished with, published or dropped.
func publishRows(ctx context.Context, events EventPublisher, rows []outboxRow) ([]int64, error) {
	done := make([]int64, 0, len(rows))
	for _, r := range rows {
		var entry models.QueueEntry
		if err := json.Unmarshal(r.Entry, &entry); err != nil {
			log.Printf("[OUTBOX] dropping undecodable row %d: %v", r.ID, err)
			done = append(done, r.ID)
			continue
		}
		if err := events.Publish(ctx, Event{Type: EventType(r.EventType), Entry: entry}); err != nil {
			return done, err
		}
		done = append(done, r.ID)
	}
	return done, nil
}
