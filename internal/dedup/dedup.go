// Package dedup implements the attempt-level idempotency guard for the
// upload saga. Each (entity kind, entity id, retry count) attempt is
// marked before side effects run; a redelivered attempt that is already
// marked is dropped without doing any work.
package dedup

import (
	"context"
	"fmt"
)

// Key identifies one logical upload attempt.
type Key struct {
	Kind       string
	EntityID   int64
	RetryCount int
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%d:%d", k.Kind, k.EntityID, k.RetryCount)
}

// Guard is an add-if-absent membership set over attempt keys.
type Guard interface {
	// TryMark atomically marks key as processed. It returns true if the
	// key was not marked before, false for a duplicate.
	TryMark(ctx context.Context, key Key) (bool, error)

	// Unmark removes the mark so the identical attempt can run again.
	// Used only when the attempt hit a storage conflict and will be
	// redelivered with the same retry count.
	Unmark(ctx context.Context, key Key) error
}
