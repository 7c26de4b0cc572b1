// AngelaMos | 2026
// store.go

package onboarding

import (
	"context"
)

// Store persists sessions keyed by token. Save is a compare-and-swap on
// the version column; it is the only cross-request coordination primitive
// the state machine needs.
type Store interface {
	// Create inserts a fresh session. A duplicate token returns
	// ErrTokenCollision.
	Create(ctx context.Context, s *Session) error

	// Load returns the session for token, core.ErrNotFound when it does
	// not exist, or ErrExpired when its TTL has passed.
	Load(ctx context.Context, token string) (*Session, error)

	// Save writes s only if the stored version still equals
	// expectedVersion, then increments it. A mismatch returns
	// ErrVersionConflict and the caller must reload and re-evaluate,
	// never blindly overwrite.
	Save(ctx context.Context, s *Session, expectedVersion int) error
}
