package queue

import (
	"context"
	"sync"

	"github.com/playchess/backend/internal/models"
)

// MemStore is an in-memory Store with the same conditional semantics as
// PGStore. It backs unit tests and local development without PostgreSQL.
type MemStore struct {
	mu      sync.Mutex
	buckets map[string]map[string]*models.QueueEntry // bucket_key -> player_id -> entry
	games   map[string]*models.Game

	// OnEvent, when set, observes every mutation in commit order. Tests use
	// it to drive a matcher the way the change feed would.
	OnEvent func(Event)
}

func NewMemStore() *MemStore {
	return &MemStore{
		buckets: make(map[string]map[string]*models.QueueEntry),
		games:   make(map[string]*models.Game),
	}
}

func (s *MemStore) Put(ctx context.Context, entry *models.QueueEntry) error {
	s.mu.Lock()
	for _, bucket := range s.buckets {
		if e, ok := bucket[entry.PlayerID]; ok && e.TimeControl == entry.TimeControl {
			s.mu.Unlock()
			return ErrAlreadyQueued
		}
	}
	bucket := s.buckets[entry.BucketKey]
	if bucket == nil {
		bucket = make(map[string]*models.QueueEntry)
		s.buckets[entry.BucketKey] = bucket
	}
	stored := *entry
	bucket[entry.PlayerID] = &stored
	s.mu.Unlock()

	s.emit(Event{Type: EventInsert, Entry: stored})
	return nil
}

func (s *MemStore) Delete(ctx context.Context, bucketKey, playerID string) error {
	s.mu.Lock()
	bucket := s.buckets[bucketKey]
	e, ok := bucket[playerID]
	if !ok || e.Status != models.StatusWaiting {
		s.mu.Unlock()
		return nil
	}
	removed := *e
	delete(bucket, playerID)
	s.mu.Unlock()

	s.emit(Event{Type: EventRemove, Entry: removed})
	return nil
}

func (s *MemStore) ScanBucket(ctx context.Context, bucketKey string) ([]models.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.QueueEntry
	for _, e := range s.buckets[bucketKey] {
		if e.Status == models.StatusWaiting {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (s *MemStore) PairTxn(ctx context.Context, a, b *models.QueueEntry, game *models.Game) error {
	s.mu.Lock()

	ea := s.waiting(a)
	eb := s.waiting(b)
	if ea == nil || eb == nil {
		s.mu.Unlock()
		return ErrConflictingWaiter
	}
	if _, exists := s.games[game.GameID]; exists {
		s.mu.Unlock()
		return ErrConflictingWaiter
	}

	matchedAt := game.CreatedAt
	for _, e := range []*models.QueueEntry{ea, eb} {
		e.Status = models.StatusMatched
		e.MatchedAt = &matchedAt
	}
	g := *game
	s.games[game.GameID] = &g

	postA, postB := *ea, *eb
	s.mu.Unlock()

	s.emit(Event{Type: EventModify, Entry: postA})
	s.emit(Event{Type: EventModify, Entry: postB})
	return nil
}

// waiting returns the live entry for w iff it is still pairable. Caller
// holds the lock.
func (s *MemStore) waiting(w *models.QueueEntry) *models.QueueEntry {
	e, ok := s.buckets[w.BucketKey][w.PlayerID]
	if !ok || e.Status != models.StatusWaiting || e.MatchedAt != nil {
		return nil
	}
	return e
}

// Entry returns a copy of the stored entry, if present.
func (s *MemStore) Entry(bucketKey, playerID string) (models.QueueEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.buckets[bucketKey][playerID]
	if !ok {
		return models.QueueEntry{}, false
	}
	return *e, true
}

// Games returns a snapshot of all game rows.
func (s *MemStore) Games() []models.Game {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Game, 0, len(s.games))
	for _, g := range s.games {
		out = append(out, *g)
	}
	return out
}

// Len returns the total number of entries across all buckets.
func (s *MemStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.buckets {
		n += len(b)
	}
	return n
}

func (s *MemStore) emit(ev Event) {
	if s.OnEvent != nil {
		s.OnEvent(ev)
	}
}
