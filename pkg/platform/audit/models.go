// Package audit defines the transport-agnostic audit event model.
// Domain services emit events through a Publisher; stores and sinks fan out.
package audit

import (
	"context"
	"time"

	id "verifyd/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with legal significance: certificate
	// issuance, approval, and subscription changes.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers events relevant to abuse monitoring:
	// quota denials, rejected admin tokens.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers events useful for debugging and operational
	// visibility: downloads, verifications, oracle failures.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category      EventCategory    `json:"category"`
	Timestamp     time.Time        `json:"timestamp"`
	Action        string           `json:"action"`
	CertificateID id.CertificateID `json:"certificate_id,omitempty"`
	Identity      id.Identity      `json:"identity,omitempty"`
	Reason        string           `json:"reason,omitempty"`
	// RequestID correlates the event with the HTTP request that caused it.
	RequestID string `json:"request_id,omitempty"`
}

// AuditEvent names the actions verifyd emits.
type AuditEvent string

const (
	EventSubmissionReceived    AuditEvent = "submission_received"
	EventCertificateIssued     AuditEvent = "certificate_issued"
	EventCertificateParked     AuditEvent = "certificate_parked"
	EventCertificateApproved   AuditEvent = "certificate_approved"
	EventCertificateDownloaded AuditEvent = "certificate_downloaded"
	EventQuotaExceeded         AuditEvent = "quota_exceeded"
	EventStampingFailed        AuditEvent = "stamping_failed"
	EventSubscriptionActivated AuditEvent = "subscription_activated"
)

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByCertificate(ctx context.Context, certID id.CertificateID) ([]Event, error)
}

// Sink receives a copy of every event for external delivery (e.g. Kafka).
// Sinks must not block the hot path for long; delivery is best effort.
type Sink interface {
	Deliver(ctx context.Context, event Event) error
}
