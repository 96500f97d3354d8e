package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/playchess/backend/internal/models"
)

// PGStore backs the queue index with PostgreSQL. Conditional single-row
// updates and the multi-row pairing transaction carry all concurrency
// control; no in-process locking. Every mutation records its change-feed
// event in the outbox inside the same transaction, so a committed mutation
// can never miss the feed (the Outbox relays them).
type PGStore struct {
	db *sqlx.DB
}

func NewPGStore(db *sqlx.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Put(ctx context.Context, entry *models.QueueEntry) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return Transient(err)
	}
	defer tx.Rollback()

	// Two uniqueness constraints back this insert: the (bucket_key,
	// player_id) primary key and the (time_control, player_id) unique
	// index. Either collision means the player is already queued.
	res, err := tx.NamedExecContext(ctx, `
		INSERT INTO queue_entries (bucket_key, player_id, time_control, rating, joined_at, status)
		VALUES (:bucket_key, :player_id, :time_control, :rating, :joined_at, :status)
		ON CONFLICT DO NOTHING
	`, entry)
	if err != nil {
		return Transient(err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return Transient(err)
	}
	if rows == 0 {
		return ErrAlreadyQueued
	}

	if err := enqueueEvent(ctx, tx, Event{Type: EventInsert, Entry: *entry}); err != nil {
		return Transient(err)
	}
	if err := tx.Commit(); err != nil {
		return Transient(err)
	}
	return nil
}

func (s *PGStore) Delete(ctx context.Context, bucketKey, playerID string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return Transient(err)
	}
	defer tx.Rollback()

	var removed models.QueueEntry
	err = tx.GetContext(ctx, &removed, `
		DELETE FROM queue_entries
		WHERE bucket_key = $1 AND player_id = $2 AND status = 'waiting'
		RETURNING bucket_key, player_id, time_control, rating, joined_at, status, matched_at
	`, bucketKey, playerID)
	if err == sql.ErrNoRows {
		return nil // absent or already matched; leave is idempotent
	}
	if err != nil {
		return Transient(err)
	}

	if err := enqueueEvent(ctx, tx, Event{Type: EventRemove, Entry: removed}); err != nil {
		return Transient(err)
	}
	if err := tx.Commit(); err != nil {
		return Transient(err)
	}
	return nil
}

func (s *PGStore) ScanBucket(ctx context.Context, bucketKey string) ([]models.QueueEntry, error) {
	var entries []models.QueueEntry
	err := s.db.SelectContext(ctx, &entries, `
		SELECT bucket_key, player_id, time_control, rating, joined_at, status, matched_at
		FROM queue_entries
		WHERE bucket_key = $1 AND status = 'waiting'
	`, bucketKey)
	if err != nil {
		return nil, Transient(err)
	}
	return entries, nil
}

func (s *PGStore) PairTxn(ctx context.Context, a, b *models.QueueEntry, game *models.Game) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return Transient(err)
	}
	defer tx.Rollback()

	for _, w := range []*models.QueueEntry{a, b} {
		res, err := tx.ExecContext(ctx, `
			UPDATE queue_entries
			SET status = 'matched', matched_at = $1
			WHERE bucket_key = $2 AND player_id = $3
			  AND status = 'waiting' AND matched_at IS NULL
		`, game.CreatedAt, w.BucketKey, w.PlayerID)
		if err != nil {
			return Transient(err)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return Transient(err)
		}
		if rows == 0 {
			return ErrConflictingWaiter
		}
	}

	res, err := tx.NamedExecContext(ctx, `
		INSERT INTO games (game_id, white_player_id, black_player_id, time_control, status, created_at)
		VALUES (:game_id, :white_player_id, :black_player_id, :time_control, :status, :created_at)
		ON CONFLICT (game_id) DO NOTHING
	`, game)
	if err != nil {
		return Transient(err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return Transient(err)
	}
	if rows == 0 {
		// Replayed pairing: the game already exists, so the waiter updates
		// above must not land a second time.
		return ErrConflictingWaiter
	}

	matchedAt := game.CreatedAt
	for _, w := range []*models.QueueEntry{a, b} {
		post := *w
		post.Status = models.StatusMatched
		post.MatchedAt = &matchedAt
		if err := enqueueEvent(ctx, tx, Event{Type: EventModify, Entry: post}); err != nil {
			return Transient(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Transient(err)
	}
	return nil
}

// enqueueEvent records a mutation event in the outbox, inside the
// mutation's own transaction.
func enqueueEvent(ctx context.Context, tx *sqlx.Tx, ev Event) error {
	entry, err := json.Marshal(ev.Entry)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO queue_events_outbox (event_type, entry, created_at)
		VALUES ($1, $2, $3)
	`, string(ev.Type), entry, time.Now().Unix())
	return err
}
