// Package certificate owns certificate records and their REVIEW to
// CERTIFIED state machine. All reads and writes to certificate state go
// through the Registry.
package certificate

import (
	"time"

	id "verifyd/pkg/domain"
)

// Status is the lifecycle state of a certificate.
type Status string

const (
	// StatusReview marks a certificate parked for manual approval because
	// its score fell below the certification threshold.
	StatusReview Status = "REVIEW"

	// StatusCertified marks a certificate whose artifact has been stamped
	// and is releasable for download.
	StatusCertified Status = "CERTIFIED"
)

// Certificate is the persistent record for one submission.
//
// ArtifactRef points at the releasable stamped artifact once the
// certificate is CERTIFIED. While the certificate is in REVIEW it points
// at the staged raw upload kept for a later approval.
type Certificate struct {
	ID               id.CertificateID
	OwnerIdentity    id.Identity
	OriginalFilename string
	Fingerprint      string
	Score            int
	Status           Status
	ArtifactRef      id.ArtifactRef
	CreatedAt        time.Time
	CertifiedAt      *time.Time
}

// Certified reports whether the artifact is releasable.
func (c *Certificate) Certified() bool {
	return c.Status == StatusCertified
}
