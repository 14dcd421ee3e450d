// Package quota implements the per-identity upload ledger that gates
// admission of new submissions.
package quota

import (
	"time"

	id "verifyd/pkg/domain"
)

// UsageRecord tracks one identity's consumption of the free tier.
// UploadsUsed only ever grows; there is no un-subscribe path.
type UsageRecord struct {
	Identity    id.Identity
	UploadsUsed int
	Subscribed  bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Remaining returns how many free uploads are left under the given limit.
// Subscribed identities report -1 (unlimited).
func (r *UsageRecord) Remaining(freeLimit int) int {
	if r.Subscribed {
		return -1
	}
	remaining := freeLimit - r.UploadsUsed
	if remaining < 0 {
		return 0
	}
	return remaining
}
