package models

import (
	"database/sql"
	"time"
)

// Queue entry status values. A row only ever moves waiting -> matched.
const (
	StatusWaiting = "waiting"
	StatusMatched = "matched"
)

// Game status; this service only ever creates active games.
const GameStatusActive = "active"

// Colour assignments for a pairing.
const (
	ColorWhite = "white"
	ColorBlack = "black"
)

// Player represents a profile row. The matching core only reads Rating;
// the rest belongs to the profile/auth facade.
type Player struct {
	ID          string         `db:"id" json:"id"`
	DisplayName sql.NullString `db:"display_name" json:"display_name,omitempty"`
	Rating      int            `db:"rating" json:"rating"`
	PINHash     sql.NullString `db:"pin_hash" json:"-"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
}

// QueueEntry is one waiting player in one time-control. The composite key
// (bucket_key, player_id) enforces at most one entry per bucket, and a
// unique index on (time_control, player_id) enforces at most one entry per
// queue even when a rating change moves the player between buckets.
type QueueEntry struct {
	BucketKey   string `db:"bucket_key" json:"bucket_key"`
	PlayerID    string `db:"player_id" json:"player_id"`
	TimeControl string `db:"time_control" json:"time_control"`
	Rating      int    `db:"rating" json:"rating"`
	JoinedAt    int64  `db:"joined_at" json:"joined_at"` // epoch seconds
	Status      string `db:"status" json:"status"`
	MatchedAt   *int64 `db:"matched_at" json:"matched_at,omitempty"` // epoch seconds, set iff matched
}

// Waiting reports whether the entry is still pairable.
func (e *QueueEntry) Waiting() bool {
	return e.Status == StatusWaiting
}

// Game is the pairing record. Created exactly once per pair by the pairing
// transaction and never mutated here; gameplay lives elsewhere.
type Game struct {
	GameID        string `db:"game_id" json:"game_id"`
	WhitePlayerID string `db:"white_player_id" json:"white_player_id"`
	BlackPlayerID string `db:"black_player_id" json:"black_player_id"`
	TimeControl   string `db:"time_control" json:"time_control"`
	Status        string `db:"status" json:"status"`
	CreatedAt     int64  `db:"created_at" json:"created_at"` // epoch seconds
}

// Session binds a live push endpoint to a player. Advisory only: a missing
// row means notifications are dropped, never that matching is blocked.
type Session struct {
	Endpoint string `db:"endpoint" json:"endpoint"`
	PlayerID string `db:"player_id" json:"player_id"`
	OpenedAt int64  `db:"opened_at" json:"opened_at"` // epoch seconds
}
