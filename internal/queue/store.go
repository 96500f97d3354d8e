package queue

import (
	"context"

	"github.com/playchess/backend/internal/models"
)

// Store is the queue index: a bucket-keyed table of waiters with the
// conditional-update and multi-row transaction primitives all cross-worker
// safety is delegated to. Implementations: PGStore (production), MemStore
// (tests and local development).
type Store interface {
	// Put inserts a waiting entry. Fails with ErrAlreadyQueued if the player
	// already has an entry in this time-control, or a TransientError on
	// infrastructure failure.
	Put(ctx context.Context, entry *models.QueueEntry) error

	// Delete removes the entry for (bucketKey, playerID) if it is still
	// waiting. Idempotent: deleting an absent or already-matched row is a
	// no-op.
	Delete(ctx context.Context, bucketKey, playerID string) error

	// ScanBucket returns all waiting entries in a bucket, unordered.
	ScanBucket(ctx context.Context, bucketKey string) ([]models.QueueEntry, error)

	// PairTxn atomically flips both waiters from waiting to matched and
	// inserts the game row, all under condition checks. Fails wholly with
	// ErrConflictingWaiter on any condition miss, or a TransientError on
	// retryable infrastructure failure.
	PairTxn(ctx context.Context, a, b *models.QueueEntry, game *models.Game) error
}
