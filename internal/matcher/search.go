package matcher

import (
	"context"
	"math/rand"

	"github.com/playchess/backend/internal/models"
	"github.com/playchess/backend/internal/queue"
)

// findOpponent runs the bucket-expansion search for w: own bucket first,
// then rings of +-step, +-2*step, ... out to the configured max range.
// Candidate picks within a bucket are uniformly random and the expansion
// direction is a coin flip per invocation, so concurrent matchers spread
// across candidates instead of all claiming the same one. Returns nil when
// no bucket within range holds a waiting candidate.
func (m *Matcher) findOpponent(ctx context.Context, w *models.QueueEntry) (*models.QueueEntry, error) {
	step := m.cfg.BucketStep
	base := queue.Bucket(w.Rating, step)

	if c, err := m.pickFrom(ctx, queue.Key(w.TimeControl, base), w.PlayerID); err != nil || c != nil {
		return c, err
	}

	sign := 1
	if rand.Intn(2) == 0 {
		sign = -1
	}

	for k := 1; k*step <= m.cfg.SearchMaxRange; k++ {
		offsets := [2]int{k * step * sign, -k * step * sign}
		if rand.Intn(2) == 0 {
			offsets[0], offsets[1] = offsets[1], offsets[0]
		}
		for _, delta := range offsets {
			c, err := m.pickFrom(ctx, queue.Key(w.TimeControl, base+delta), w.PlayerID)
			if err != nil || c != nil {
				return c, err
			}
		}
	}
	return nil, nil
}

// pickFrom scans one bucket and returns a uniformly random waiting entry
// other than the searcher, or nil if the bucket holds none.
func (m *Matcher) pickFrom(ctx context.Context, bucketKey, selfID string) (*models.QueueEntry, error) {
	entries, err := m.store.ScanBucket(ctx, bucketKey)
	if err != nil {
		return nil, err
	}

	candidates := entries[:0]
	for _, e := range entries {
		if e.PlayerID != selfID && e.Waiting() {
			candidates = append(candidates, e)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	pick := candidates[rand.Intn(len(candidates))]
	return &pick, nil
}
