package quota

import (
	"context"
	"fmt"
	"log/slog"

	id "verifyd/pkg/domain"
	dErrors "verifyd/pkg/domain-errors"
	"verifyd/pkg/platform/audit"
)

// AuditPublisher emits audit events for quota decisions.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Ledger enforces the admission contract: Admit before any work, Commit
// only after the caller's operation fully succeeded. Committing before
// success would overcharge failed submissions, so the split is part of the
// contract, not an implementation detail.
type Ledger struct {
	store          Store
	freeLimit      int
	auditPublisher AuditPublisher
	logger         *slog.Logger
}

type Option func(*Ledger)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger.With("component", "quota_ledger")
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(l *Ledger) {
		l.auditPublisher = publisher
	}
}

func NewLedger(store Store, freeLimit int, opts ...Option) (*Ledger, error) {
	if store == nil {
		return nil, fmt.Errorf("quota store is required")
	}
	if freeLimit < 0 {
		return nil, fmt.Errorf("free limit must not be negative")
	}

	ledger := &Ledger{
		store:     store,
		freeLimit: freeLimit,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(ledger)
	}
	return ledger, nil
}

// Admit decides whether an identity may start a new submission. The record
// is created lazily for unknown identities. Admit never increments.
// Anonymous identities bypass quota entirely (deployment without identity).
func (l *Ledger) Admit(ctx context.Context, identity id.Identity) error {
	if identity.IsAnonymous() {
		return nil
	}

	record, err := l.store.Ensure(ctx, identity)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load usage record")
	}

	if record.Subscribed || record.UploadsUsed < l.freeLimit {
		return nil
	}

	l.logger.InfoContext(ctx, "submission denied by quota",
		"identity", identity,
		"uploads_used", record.UploadsUsed,
		"free_limit", l.freeLimit,
	)
	return dErrors.Newf(dErrors.CodeQuotaExceeded,
		"free upload limit of %d reached; subscribe to continue", l.freeLimit)
}

// Commit charges one upload to the identity. Callers invoke it exactly
// once, only after the admitted submission fully succeeded.
func (l *Ledger) Commit(ctx context.Context, identity id.Identity) (*UsageRecord, error) {
	if identity.IsAnonymous() {
		return nil, nil
	}

	record, err := l.store.Increment(ctx, identity)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to charge upload")
	}
	return record, nil
}

// SetSubscribed lifts the quota ceiling for an identity. Idempotent and
// valid for identities that have never submitted.
func (l *Ledger) SetSubscribed(ctx context.Context, identity id.Identity) error {
	if identity.IsAnonymous() {
		return dErrors.New(dErrors.CodeBadRequest, "identity is required")
	}

	if err := l.store.SetSubscribed(ctx, identity); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to activate subscription")
	}

	l.emit(ctx, audit.Event{
		Category: audit.CategoryCompliance,
		Action:   string(audit.EventSubscriptionActivated),
		Identity: identity,
	})
	return nil
}

// Usage returns the identity's current record, or nil for anonymous
// identities. Read-only.
func (l *Ledger) Usage(ctx context.Context, identity id.Identity) (*UsageRecord, error) {
	if identity.IsAnonymous() {
		return nil, nil
	}
	record, err := l.store.Ensure(ctx, identity)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load usage record")
	}
	return record, nil
}

// FreeLimit exposes the configured ceiling for API responses.
func (l *Ledger) FreeLimit() int {
	return l.freeLimit
}

func (l *Ledger) emit(ctx context.Context, event audit.Event) {
	if l.auditPublisher == nil {
		return
	}
	if err := l.auditPublisher.Emit(ctx, event); err != nil {
		l.logger.WarnContext(ctx, "failed to emit audit event", "action", event.Action, "error", err)
	}
}
