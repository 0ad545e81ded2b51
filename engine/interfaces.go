package engine

import (
	"context"

	"coderhack/core"
)

// Store abstracts persistence for user records.
// Implementations must return copies so callers cannot mutate stored state.
type Store interface {
	Exists(ctx context.Context, id core.UserID) (bool, error)
	// Get returns ok=false, err=nil when the user is absent.
	Get(ctx context.Context, id core.UserID) (user core.User, ok bool, err error)
	// Put inserts or overwrites the record keyed by user.UserID.
	Put(ctx context.Context, user core.User) error
	// Delete is a no-op for absent keys.
	Delete(ctx context.Context, id core.UserID) error
	// ListByScoreAsc returns all users ordered by ascending score.
	ListByScoreAsc(ctx context.Context) ([]core.User, error)
}

// EventHandler consumes domain events published by the service.
type EventHandler func(context.Context, core.Event)
