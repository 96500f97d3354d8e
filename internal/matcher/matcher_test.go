package matcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/playchess/backend/internal/config"
	"github.com/playchess/backend/internal/models"
	"github.com/playchess/backend/internal/notify"
	"github.com/playchess/backend/internal/queue"
)

func testConfig() *config.Config {
	return &config.Config{
		BucketStep:     50,
		SearchMaxRange: 500,
		DefaultRating:  1200,
		TimeControls:   []string{"bullet", "blitz", "rapid"},
		MatcherShards:  1,
	}
}

// fakeNotifier records every delivery attempt and answers with a
// configurable status per player (Delivered by default).
type fakeNotifier struct {
	mu       sync.Mutex
	sent     map[string][]MatchNotification
	statuses map[string]notify.Status
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{
		sent:     make(map[string][]MatchNotification),
		statuses: make(map[string]notify.Status),
	}
}

func (f *fakeNotifier) Notify(ctx context.Context, playerID string, payload interface{}) notify.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent[playerID] = append(f.sent[playerID], payload.(MatchNotification))
	if st, ok := f.statuses[playerID]; ok {
		return st
	}
	return notify.Delivered
}

func (f *fakeNotifier) sentTo(playerID string) []MatchNotification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]MatchNotification(nil), f.sent[playerID]...)
}

func newTestMatcher(store queue.Store, notif Notifier) *Matcher {
	return New(store, nil, notif, testConfig())
}

// join puts a waiter and returns the INSERT event its admission would have
// produced on the change feed.
func join(t *testing.T, s *queue.MemStore, playerID, tc string, rating int) queue.Event {
	t.Helper()
	entry := &models.QueueEntry{
		BucketKey:   queue.Key(tc, queue.Bucket(rating, 50)),
		PlayerID:    playerID,
		TimeControl: tc,
		Rating:      rating,
		JoinedAt:    time.Now().Unix(),
		Status:      models.StatusWaiting,
	}
	if err := s.Put(context.Background(), entry); err != nil {
		t.Fatalf("put %s failed: %v", playerID, err)
	}
	return queue.Event{Type: queue.EventInsert, Entry: *entry}
}

func waitingCount(t *testing.T, s *queue.MemStore, bucketKeys ...string) int {
	t.Helper()
	n := 0
	for _, bk := range bucketKeys {
		entries, err := s.ScanBucket(context.Background(), bk)
		if err != nil {
			t.Fatalf("scan %s failed: %v", bk, err)
		}
		n += len(entries)
	}
	return n
}

func TestSinglePairing(t *testing.T) {
	ctx := context.Background()
	store := queue.NewMemStore()
	notif := newFakeNotifier()
	m := newTestMatcher(store, notif)

	evA := join(t, store, "alice", "blitz", 1200)
	if err := m.handleEvent(ctx, evA); err != nil {
		t.Fatalf("handle alice: %v", err)
	}
	evB := join(t, store, "bob", "blitz", 1205)
	if err := m.handleEvent(ctx, evB); err != nil {
		t.Fatalf("handle bob: %v", err)
	}

	games := store.Games()
	if len(games) != 1 {
		t.Fatalf("got %d games, want 1", len(games))
	}
	g := games[0]
	if g.Status != models.GameStatusActive || g.TimeControl != "blitz" {
		t.Errorf("unexpected game: %+v", g)
	}
	players := map[string]bool{g.WhitePlayerID: true, g.BlackPlayerID: true}
	if !players["alice"] || !players["bob"] {
		t.Errorf("game does not contain both players: %+v", g)
	}

	aliceMsgs, bobMsgs := notif.sentTo("alice"), notif.sentTo("bob")
	if len(aliceMsgs) != 1 || len(bobMsgs) != 1 {
		t.Fatalf("notification counts: alice=%d bob=%d, want 1 each", len(aliceMsgs), len(bobMsgs))
	}
	am, bm := aliceMsgs[0], bobMsgs[0]
	if am.Action != "game_matched" || bm.Action != "game_matched" {
		t.Errorf("actions: %s / %s", am.Action, bm.Action)
	}
	if am.GameID != g.GameID || bm.GameID != g.GameID {
		t.Errorf("game ids differ from game row: %s / %s / %s", am.GameID, bm.GameID, g.GameID)
	}
	if am.OpponentID != "bob" || bm.OpponentID != "alice" {
		t.Errorf("opponent ids: alice got %s, bob got %s", am.OpponentID, bm.OpponentID)
	}
	if am.Color == bm.Color {
		t.Errorf("colours not complementary: both %s", am.Color)
	}
}

func TestNoMatchWaiterPersists(t *testing.T) {
	ctx := context.Background()
	store := queue.NewMemStore()
	notif := newFakeNotifier()
	m := newTestMatcher(store, notif)

	ev := join(t, store, "alice", "blitz", 1200)
	if err := m.handleEvent(ctx, ev); err != nil {
		t.Fatalf("handle alice: %v", err)
	}

	if len(store.Games()) != 0 {
		t.Errorf("game created with a single waiter")
	}
	if e, ok := store.Entry("blitz#1200", "alice"); !ok || e.Status != models.StatusWaiting {
		t.Errorf("alice not left waiting: %+v present=%v", e, ok)
	}
	if len(notif.sentTo("alice")) != 0 {
		t.Errorf("notification sent without a pairing")
	}
}

func TestRatingGapOutOfRange(t *testing.T) {
	ctx := context.Background()
	store := queue.NewMemStore()
	notif := newFakeNotifier()
	m := newTestMatcher(store, notif)

	evA := join(t, store, "alice", "blitz", 1200)
	evB := join(t, store, "bob", "blitz", 1800)
	for _, ev := range []queue.Event{evA, evB} {
		if err := m.handleEvent(ctx, ev); err != nil {
			t.Fatalf("handle: %v", err)
		}
	}

	if len(store.Games()) != 0 {
		t.Errorf("players 600 apart were paired")
	}
	if n := waitingCount(t, store, "blitz#1200", "blitz#1800"); n != 2 {
		t.Errorf("waiting count = %d, want 2", n)
	}
}

func TestConcurrentInsertsPairExactlyOnce(t *testing.T) {
	ctx := context.Background()
	store := queue.NewMemStore()
	notif := newFakeNotifier()
	m := newTestMatcher(store, notif)

	// All three are admitted before any event is processed, the way three
	// concurrent workers would each see stale post-images.
	evs := []queue.Event{
		join(t, store, "alice", "blitz", 1200),
		join(t, store, "bob", "blitz", 1210),
		join(t, store, "carol", "blitz", 1215),
	}
	for _, ev := range evs {
		if err := m.handleEvent(ctx, ev); err != nil {
			t.Fatalf("handle %s: %v", ev.Entry.PlayerID, err)
		}
	}

	if len(store.Games()) != 1 {
		t.Fatalf("got %d games, want exactly 1", len(store.Games()))
	}
	if n := waitingCount(t, store, "blitz#1200"); n != 1 {
		t.Errorf("waiting count = %d, want the unpaired third player", n)
	}
}

func TestRedeliveredInsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := queue.NewMemStore()
	notif := newFakeNotifier()
	m := newTestMatcher(store, notif)

	evA := join(t, store, "alice", "blitz", 1200)
	evB := join(t, store, "bob", "blitz", 1205)
	for _, ev := range []queue.Event{evA, evB, join(t, store, "carol", "blitz", 1210)} {
		if err := m.handleEvent(ctx, ev); err != nil {
			t.Fatalf("handle: %v", err)
		}
	}
	games := store.Games()
	aliceBefore := len(notif.sentTo("alice"))

	// Redeliver alice's original INSERT. Her stale post-image says waiting,
	// but live state decides: no duplicate game, no duplicate push.
	if err := m.handleEvent(ctx, evA); err != nil {
		t.Fatalf("redelivered handle: %v", err)
	}
	if len(store.Games()) != len(games) {
		t.Errorf("redelivery created a game: %d -> %d", len(games), len(store.Games()))
	}
	if len(notif.sentTo("alice")) != aliceBefore {
		t.Errorf("redelivery re-sent a notification")
	}
}

func TestLeaveWinsRace(t *testing.T) {
	ctx := context.Background()
	store := queue.NewMemStore()
	notif := newFakeNotifier()
	m := newTestMatcher(store, notif)

	join(t, store, "alice", "blitz", 1200)
	evB := join(t, store, "bob", "blitz", 1200)

	// Alice leaves before bob's INSERT is processed.
	if err := store.Delete(ctx, "blitz#1200", "alice"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if err := m.handleEvent(ctx, evB); err != nil {
		t.Fatalf("handle bob: %v", err)
	}

	if len(store.Games()) != 0 {
		t.Errorf("game created against a departed waiter")
	}
	if len(notif.sentTo("alice"))+len(notif.sentTo("bob")) != 0 {
		t.Errorf("notifications sent without a pairing")
	}
	if e, ok := store.Entry("blitz#1200", "bob"); !ok || e.Status != models.StatusWaiting {
		t.Errorf("bob not left waiting: %+v", e)
	}
}

func TestPairWinsThenLeaveIsNoOp(t *testing.T) {
	ctx := context.Background()
	store := queue.NewMemStore()
	notif := newFakeNotifier()
	m := newTestMatcher(store, notif)

	join(t, store, "alice", "blitz", 1200)
	evB := join(t, store, "bob", "blitz", 1200)
	if err := m.handleEvent(ctx, evB); err != nil {
		t.Fatalf("handle bob: %v", err)
	}

	// The late leave sees a matched row and does nothing.
	if err := store.Delete(ctx, "blitz#1200", "alice"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	if len(store.Games()) != 1 {
		t.Fatalf("got %d games, want 1", len(store.Games()))
	}
	if len(notif.sentTo("alice")) != 1 || len(notif.sentTo("bob")) != 1 {
		t.Errorf("both sides should have been notified exactly once")
	}
	if e, ok := store.Entry("blitz#1200", "alice"); !ok || e.Status != models.StatusMatched {
		t.Errorf("alice's matched row mutated by late leave: %+v present=%v", e, ok)
	}
}

func TestDisconnectedRecipientDoesNotAbortPairing(t *testing.T) {
	ctx := context.Background()
	store := queue.NewMemStore()
	notif := newFakeNotifier()
	notif.statuses["alice"] = notify.NotConnected
	m := newTestMatcher(store, notif)

	join(t, store, "alice", "blitz", 1200)
	evB := join(t, store, "bob", "blitz", 1205)
	if err := m.handleEvent(ctx, evB); err != nil {
		t.Fatalf("handle bob: %v", err)
	}

	if len(store.Games()) != 1 {
		t.Fatalf("pairing aborted by a disconnected recipient")
	}
	if len(notif.sentTo("bob")) != 1 {
		t.Errorf("connected side not notified")
	}
}

// flakyStore fails the first pairing transaction with a transient error.
type flakyStore struct {
	*queue.MemStore
	failures int
}

func (s *flakyStore) PairTxn(ctx context.Context, a, b *models.QueueEntry, game *models.Game) error {
	if s.failures > 0 {
		s.failures--
		return queue.Transient(errors.New("store unavailable"))
	}
	return s.MemStore.PairTxn(ctx, a, b, game)
}

func TestTransientPairFailurePropagates(t *testing.T) {
	ctx := context.Background()
	mem := queue.NewMemStore()
	store := &flakyStore{MemStore: mem, failures: 1}
	notif := newFakeNotifier()
	m := newTestMatcher(store, notif)

	join(t, mem, "alice", "blitz", 1200)
	evB := join(t, mem, "bob", "blitz", 1205)

	err := m.handleEvent(ctx, evB)
	if !queue.IsTransient(err) {
		t.Fatalf("got %v, want transient error for stream redelivery", err)
	}
	if len(mem.Games()) != 0 {
		t.Errorf("game created despite failed transaction")
	}

	// Redelivery after the outage pairs them.
	if err := m.handleEvent(ctx, evB); err != nil {
		t.Fatalf("redelivered handle: %v", err)
	}
	if len(mem.Games()) != 1 {
		t.Errorf("redelivery did not complete the pairing")
	}
}

func TestModifyAndRemoveEventsIgnored(t *testing.T) {
	ctx := context.Background()
	store := queue.NewMemStore()
	notif := newFakeNotifier()
	m := newTestMatcher(store, notif)

	join(t, store, "alice", "blitz", 1200)
	evB := join(t, store, "bob", "blitz", 1205)

	for _, typ := range []queue.EventType{queue.EventModify, queue.EventRemove} {
		ev := evB
		ev.Type = typ
		if err := m.handleEvent(ctx, ev); err != nil {
			t.Fatalf("handle %s: %v", typ, err)
		}
	}
	if len(store.Games()) != 0 {
		t.Errorf("non-INSERT event triggered a pairing")
	}
}
