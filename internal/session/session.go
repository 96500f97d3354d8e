// Package session holds the binding between a live push endpoint and a
// player identity. The binding is advisory: its absence only means
// notifications are dropped, never that matching is blocked.
package session

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/playchess/backend/internal/models"
)

// ErrNotBound is returned by Lookup when the player has no live session.
var ErrNotBound = errors.New("no session bound for player")

// Store is the session binding table. A player has one logical session;
// Bind replaces any previous binding for the same player (most-recent open
// wins, last-writer-wins races are acceptable).
type Store interface {
	Bind(ctx context.Context, s models.Session) error
	Unbind(ctx context.Context, endpoint string) error
	// Lookup returns the player's most recently opened endpoint.
	Lookup(ctx context.Context, playerID string) (string, error)
	// UnbindPlayer removes every binding for the player (account deletion).
	UnbindPlayer(ctx context.Context, playerID string) error
}

// MemStore is the in-memory Store used by tests and local development.
type MemStore struct {
	mu       sync.Mutex
	sessions map[string]models.Session // endpoint -> session
}

func NewMemStore() *MemStore {
	return &MemStore{sessions: make(map[string]models.Session)}
}

func (s *MemStore) Bind(ctx context.Context, b models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ep, existing := range s.sessions {
		if existing.PlayerID == b.PlayerID {
			delete(s.sessions, ep)
		}
	}
	s.sessions[b.Endpoint] = b
	return nil
}

func (s *MemStore) Unbind(ctx context.Context, endpoint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, endpoint)
	return nil
}

func (s *MemStore) Lookup(ctx context.Context, playerID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matches []models.Session
	for _, b := range s.sessions {
		if b.PlayerID == playerID {
			matches = append(matches, b)
		}
	}
	if len(matches) == 0 {
		return "", ErrNotBound
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].OpenedAt > matches[j].OpenedAt })
	return matches[0].Endpoint, nil
}

func (s *MemStore) UnbindPlayer(ctx context.Context, playerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ep, b := range s.sessions {
		if b.PlayerID == playerID {
			delete(s.sessions, ep)
		}
	}
	return nil
}
