package certificate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	id "verifyd/pkg/domain"
	dErrors "verifyd/pkg/domain-errors"
	"verifyd/pkg/platform/sentinel"
)

// Registry is the exclusive owner of certificate records. It owns the
// certification threshold policy and serializes mutations per id, so
// two approvals of the same certificate can never interleave while
// operations on unrelated ids proceed without contention.
type Registry struct {
	store     Store
	threshold int
	locks     idLocks
	logger    *slog.Logger
}

type Option func(*Registry)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger.With("component", "certificate_registry")
	}
}

func NewRegistry(store Store, threshold int, opts ...Option) (*Registry, error) {
	if store == nil {
		return nil, fmt.Errorf("certificate store is required")
	}
	if threshold < 0 || threshold > 100 {
		return nil, fmt.Errorf("certify threshold must be within [0,100], got %d", threshold)
	}

	registry := &Registry{
		store:     store,
		threshold: threshold,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(registry)
	}
	return registry, nil
}

// CreateParams carries the inputs for a new certificate record. ArtifactRef
// points at the staged raw upload at creation time. ID is optional: the
// lifecycle engine pre-generates it to key the staging area, and the
// registry assigns a fresh one when it is left nil.
type CreateParams struct {
	ID               id.CertificateID
	OwnerIdentity    id.Identity
	OriginalFilename string
	Fingerprint      string
	Score            int
	ArtifactRef      id.ArtifactRef
}

// Create persists a new record parked in REVIEW, holding the staged
// upload ref. Certification always flows through Approve so the status
// flip and the releasable artifact ref land in one atomic update and a
// CERTIFIED record can never be seen pointing at the raw upload.
func (r *Registry) Create(ctx context.Context, params CreateParams) (*Certificate, error) {
	if params.Fingerprint == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "fingerprint is required")
	}
	if params.ArtifactRef.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "artifact reference is required")
	}
	if params.Score < 0 || params.Score > 100 {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "score %d outside [0,100]", params.Score)
	}

	certID := params.ID
	if certID.IsNil() {
		certID = id.NewCertificateID()
	}

	now := time.Now().UTC()
	cert := &Certificate{
		ID:               certID,
		OwnerIdentity:    params.OwnerIdentity,
		OriginalFilename: params.OriginalFilename,
		Fingerprint:      params.Fingerprint,
		Score:            params.Score,
		Status:           StatusReview,
		ArtifactRef:      params.ArtifactRef,
		CreatedAt:        now,
	}
	if err := r.store.Create(ctx, cert); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			// A 128-bit random id collided; do not overwrite.
			return nil, dErrors.Wrap(err, dErrors.CodeConflict, "certificate id collision")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create certificate")
	}

	r.logger.InfoContext(ctx, "certificate created",
		"certificate_id", cert.ID,
		"status", cert.Status,
		"score", cert.Score,
	)
	return cert, nil
}

// Get returns the record for an id.
func (r *Registry) Get(ctx context.Context, certID id.CertificateID) (*Certificate, error) {
	cert, err := r.store.Get(ctx, certID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "certificate not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load certificate")
	}
	return cert, nil
}

// Approve transitions a REVIEW certificate to CERTIFIED. The produce
// callback runs under the per-id lock and supplies the stamped artifact
// ref; the status flip and the ref swap then land in one atomic store
// update. Approving an already-CERTIFIED certificate returns the current
// record unchanged without invoking produce.
func (r *Registry) Approve(ctx context.Context, certID id.CertificateID, produce func(context.Context, *Certificate) (id.ArtifactRef, error)) (*Certificate, error) {
	r.locks.lock(certID)
	defer r.locks.unlock(certID)

	cert, err := r.Get(ctx, certID)
	if err != nil {
		return nil, err
	}
	if cert.Certified() {
		return cert, nil
	}

	ref, err := produce(ctx, cert)
	if err != nil {
		return nil, err
	}

	updated, err := r.store.Certify(ctx, certID, ref, time.Now().UTC())
	if err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.New(dErrors.CodeNotFound, "certificate not found")
		case errors.Is(err, sentinel.ErrInvalidState):
			return nil, dErrors.New(dErrors.CodeAlreadyCertified, "certificate is already certified")
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to certify certificate")
		}
	}

	r.logger.InfoContext(ctx, "certificate approved", "certificate_id", certID)
	return updated, nil
}

// Delete removes a record. Used to roll back a submission whose stamping
// failed, so no half-certified record survives.
func (r *Registry) Delete(ctx context.Context, certID id.CertificateID) error {
	r.locks.lock(certID)
	defer r.locks.unlock(certID)

	if err := r.store.Delete(ctx, certID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "certificate not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete certificate")
	}
	return nil
}

// AutoCertifies reports whether a score clears the certification
// threshold, entitling the submission to immediate certification.
func (r *Registry) AutoCertifies(score int) bool {
	return score >= r.threshold
}

// Threshold returns the configured certification threshold.
func (r *Registry) Threshold() int {
	return r.threshold
}

// idLocks hands out one mutex per certificate id. Entries are reference
// counted and removed once the last holder releases, so the table stays
// proportional to in-flight operations rather than total certificates.
type idLocks struct {
	mu      sync.Mutex
	entries map[id.CertificateID]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func (l *idLocks) lock(certID id.CertificateID) {
	l.mu.Lock()
	if l.entries == nil {
		l.entries = make(map[id.CertificateID]*lockEntry)
	}
	entry, ok := l.entries[certID]
	if !ok {
		entry = &lockEntry{}
		l.entries[certID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
}

func (l *idLocks) unlock(certID id.CertificateID) {
	l.mu.Lock()
	entry := l.entries[certID]
	entry.refs--
	if entry.refs == 0 {
		delete(l.entries, certID)
	}
	l.mu.Unlock()

	entry.mu.Unlock()
}
