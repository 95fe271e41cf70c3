package storage

import (
	"context"
	"time"
)

// StateStore records OAuth states that have already been redeemed, so a
// replayed state cookie cannot drive a second token exchange.
type StateStore interface {
	// Consume marks state as used. It returns false when the state had
	// already been consumed, even past expiresAt: an entry keeps blocking
	// until CleanupExpired removes it.
	Consume(ctx context.Context, state string, expiresAt time.Time) (bool, error)

	// CleanupExpired removes entries past their expiry and returns how many
	// were removed.
	CleanupExpired(ctx context.Context) (int, error)

	// Close releases backend resources.
	Close() error
}
