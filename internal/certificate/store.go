package certificate

import (
	"context"
	"time"

	id "verifyd/pkg/domain"
)

// Store persists certificate records. Implementations must make Create
// and Certify atomic per id: a reader never observes a partially written
// record, and never observes CERTIFIED paired with a stale artifact ref.
type Store interface {
	// Create persists a new record. Returns sentinel.ErrConflict if a
	// record with the same id already exists; never overwrites.
	Create(ctx context.Context, cert *Certificate) error

	// Get returns the record for an id, or sentinel.ErrNotFound.
	Get(ctx context.Context, certID id.CertificateID) (*Certificate, error)

	// Certify transitions REVIEW to CERTIFIED and swaps the artifact ref
	// in one atomic step. Returns sentinel.ErrNotFound for unknown ids and
	// sentinel.ErrInvalidState if the record is already CERTIFIED.
	Certify(ctx context.Context, certID id.CertificateID, ref id.ArtifactRef, certifiedAt time.Time) (*Certificate, error)

	// Delete removes a record. Returns sentinel.ErrNotFound for unknown ids.
	Delete(ctx context.Context, certID id.CertificateID) error
}
