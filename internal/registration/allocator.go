package registration

import (
	"context"

	"github.com/google/uuid"
)

// Allocator owns the per-session reserved-seat counters. Nothing else writes them.
type Allocator struct {
	store SessionStore
}

// NewAllocator creates a capacity allocator over the session store.
func NewAllocator(store SessionStore) *Allocator {
	return &Allocator{store: store}
}

// Reserve takes one seat. It is a single compare-and-increment in the store, so two
// callers racing for the last seat cannot both succeed.
func (a *Allocator) Reserve(ctx context.Context, sessionID uuid.UUID) error {
	return a.store.IncrementReserved(ctx, sessionID)
}

// Release gives one seat back. Callers must only release a session the member's own
// assignment points at.
func (a *Allocator) Release(ctx context.Context, sessionID uuid.UUID) error {
	return a.store.DecrementReserved(ctx, sessionID)
}

// Move reserves to and then releases from. Run it inside a transaction so a failed
// reservation keeps the old seat.
func (a *Allocator) Move(ctx context.Context, from *uuid.UUID, to uuid.UUID) error {
	if from != nil && *from == to {
		return nil
	}
	if err := a.Reserve(ctx, to); err != nil {
		return err
	}
	if from != nil {
		return a.Release(ctx, *from)
	}
	return nil
}
