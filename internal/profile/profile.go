// Package profile is the read-only view of the player profile store. The
// matching core reads the rating number keyed by player id and nothing else.
package profile

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"github.com/jmoiron/sqlx"
)

// ErrNotFound is returned when the player has no profile row. Admission
// falls back to the default rating in that case.
var ErrNotFound = errors.New("player profile not found")

// Store looks up a player's rating.
type Store interface {
	Rating(ctx context.Context, playerID string) (int, error)
}

// PGStore reads ratings from the players table.
type PGStore struct {
	db *sqlx.DB
}

func NewPGStore(db *sqlx.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Rating(ctx context.Context, playerID string) (int, error) {
	var rating int
	err := s.db.GetContext(ctx, &rating, `SELECT rating FROM players WHERE id = $1`, playerID)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return rating, nil
}

// MemStore is the in-memory Store used by tests.
type MemStore struct {
	mu      sync.Mutex
	ratings map[string]int

	// Err, when set, is returned by every lookup (profile outage tests).
	Err error
}

func NewMemStore() *MemStore {
	return &MemStore{ratings: make(map[string]int)}
}

func (s *MemStore) Set(playerID string, rating int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ratings[playerID] = rating
}

func (s *MemStore) Rating(ctx context.Context, playerID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return 0, s.Err
	}
	r, ok := s.ratings[playerID]
	if !ok {
		return 0, ErrNotFound
	}
	return r, nil
}
