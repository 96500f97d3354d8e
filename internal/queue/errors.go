package queue

import (
	"errors"
	"fmt"
)

// ErrAlreadyQueued is returned by Put when an entry already exists for the
// player in this time-control.
var ErrAlreadyQueued = errors.New("player already queued")

// ErrConflictingWaiter is returned by PairTxn when one of the two waiters
// (or the game row) failed its condition check. The matcher treats this as
// "somebody else won the race" and re-scans live state.
var ErrConflictingWaiter = errors.New("waiter is no longer waiting")

// TransientError wraps retryable infrastructure failures (connection drops,
// serialization conflicts, timeouts). Stream consumers leave events carrying
// a transient failure unacknowledged so they are redelivered.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("transient: %v", e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as a retryable failure. Returns nil for nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether any error in err's chain is a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
