package approval

import (
	"context"
	"time"
)

// Store persists approval requests. Approve and Expire must be atomic per
// transaction identifier.
type Store interface {
	// Insert stores a new pending request or returns ErrDuplicateID.
	Insert(ctx context.Context, req Request) error
	// Get returns the stored request or ErrNotFound.
	Get(ctx context.Context, id string) (Request, error)
	// Approve moves a pending request to approved at the given instant. It
	// returns the stored request and whether it had already been approved.
	// ErrExpired is returned when at is past the expiry.
	Approve(ctx context.Context, id string, at time.Time) (Request, bool, error)
	// Expire pulls the expiry of a pending request forward to at.
	Expire(ctx context.Context, id string, at time.Time) error
	// PurgeExpired deletes requests that expired before the cutoff.
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
}
