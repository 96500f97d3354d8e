package session

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/playchess/backend/internal/models"
)

// PGStore persists session bindings in the sessions table (primary key
// endpoint, index on player_id).
type PGStore struct {
	db *sqlx.DB
}

func NewPGStore(db *sqlx.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Bind(ctx context.Context, b models.Session) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// One logical session per player: drop any previous binding first.
	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE player_id = $1`, b.PlayerID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sessions (endpoint, player_id, opened_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (endpoint) DO UPDATE SET player_id = $2, opened_at = $3
	`, b.Endpoint, b.PlayerID, b.OpenedAt); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PGStore) Unbind(ctx context.Context, endpoint string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE endpoint = $1`, endpoint)
	return err
}

func (s *PGStore) Lookup(ctx context.Context, playerID string) (string, error) {
	var endpoint string
	err := s.db.GetContext(ctx, &endpoint, `
		SELECT endpoint FROM sessions
		WHERE player_id = $1
		ORDER BY opened_at DESC
		LIMIT 1
	`, playerID)
	if err == sql.ErrNoRows {
		return "", ErrNotBound
	}
	if err != nil {
		return "", err
	}
	return endpoint, nil
}

func (s *PGStore) UnbindPlayer(ctx context.Context, playerID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE player_id = $1`, playerID)
	return err
}
