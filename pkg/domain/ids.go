// Package domain holds typed identifiers shared across verifyd modules.
//
// IDs are distinct named types over uuid.UUID so the compiler rejects
// cross-type assignment (a CertificateID can never be passed where an
// ArtifactRef is expected). Parse functions enforce the trust boundary
// rule that IDs must be valid, non-nil UUIDs.
package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "verifyd/pkg/domain-errors"
)

// CertificateID identifies a certificate record. 128-bit random UUIDs make
// collision probability negligible and ids are never reused.
type CertificateID uuid.UUID

// NewCertificateID generates a fresh random certificate id.
func NewCertificateID() CertificateID {
	return CertificateID(uuid.New())
}

// ParseCertificateID validates and parses an id received at a trust boundary.
func ParseCertificateID(s string) (CertificateID, error) {
	parsed, err := parseUUID(s, "certificate_id")
	if err != nil {
		return CertificateID{}, err
	}
	return CertificateID(parsed), nil
}

func (id CertificateID) String() string {
	return uuid.UUID(id).String()
}

// IsNil reports whether the id is the zero value.
func (id CertificateID) IsNil() bool {
	return uuid.UUID(id) == uuid.Nil
}

// MarshalText renders the id as its canonical UUID string, so JSON bodies,
// audit events, and structured logs never see the raw byte array. A nil id
// renders empty.
func (id CertificateID) MarshalText() ([]byte, error) {
	if id.IsNil() {
		return []byte(""), nil
	}
	return []byte(id.String()), nil
}

// UnmarshalText parses an id with the same validation as ParseCertificateID.
func (id *CertificateID) UnmarshalText(text []byte) error {
	parsed, err := ParseCertificateID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Identity is the opaque owner identity (email-like) attached to a
// submission. Deployments without quota enforcement use the empty identity.
type Identity string

// NormalizeIdentity canonicalizes an identity for use as a ledger key.
func NormalizeIdentity(s string) Identity {
	return Identity(strings.ToLower(strings.TrimSpace(s)))
}

func (i Identity) String() string {
	return string(i)
}

// IsAnonymous reports whether the identity is empty (quota not enforced).
func (i Identity) IsAnonymous() bool {
	return i == ""
}

// ArtifactRef is an opaque reference to a stored file, resolved through the
// artifact store. Refs are logical: the registry never touches paths.
type ArtifactRef string

func (r ArtifactRef) String() string {
	return string(r)
}

// IsZero reports whether the ref is unset (no releasable artifact).
func (r ArtifactRef) IsZero() bool {
	return r == ""
}

func parseUUID(s, field string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s is required", field)
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s is not a valid UUID", field)
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s must not be the nil UUID", field)
	}
	return parsed, nil
}
