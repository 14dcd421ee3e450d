package quota

import (
	"context"

	id "verifyd/pkg/domain"
)

// Store persists usage records. Implementations must make Increment
// linearizable per identity: concurrent commits for the same identity may
// never lose an update.
type Store interface {
	// Get returns the record for an identity, or sentinel.ErrNotFound.
	Get(ctx context.Context, identity id.Identity) (*UsageRecord, error)

	// Ensure returns the record for an identity, creating it with zero
	// usage if it does not exist yet.
	Ensure(ctx context.Context, identity id.Identity) (*UsageRecord, error)

	// Increment adds exactly one upload to the identity's counter,
	// creating the record if needed, and returns the updated record.
	Increment(ctx context.Context, identity id.Identity) (*UsageRecord, error)

	// SetSubscribed marks the identity as subscribed. Idempotent; creates
	// unknown identities.
	SetSubscribed(ctx context.Context, identity id.Identity) error
}
