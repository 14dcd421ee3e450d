// Package lifecycle orchestrates a submission from raw upload to releasable
// certificate: admit, stage, fingerprint, score, create, stamp, commit.
package lifecycle

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"verifyd/internal/artifact"
	"verifyd/internal/certificate"
	"verifyd/internal/oracle"
	"verifyd/internal/quota"
	id "verifyd/pkg/domain"
	dErrors "verifyd/pkg/domain-errors"
	"verifyd/pkg/platform/audit"
	"verifyd/pkg/platform/middleware/request"
)

// allowedExtensions lists the upload formats the stamping profile accepts.
var allowedExtensions = map[string]bool{
	".mp4": true,
	".mov": true,
	".avi": true,
	".m4v": true,
}

// AuditPublisher emits audit events for lifecycle transitions.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service drives the certification lifecycle. Each submission runs on its
// own goroutine; the only shared state is the ledger, the registry and the
// artifact store. Stamping is gated by a weighted semaphore so transcodes
// queue instead of spawning unbounded workers.
type Service struct {
	ledger         *quota.Ledger
	registry       *certificate.Registry
	artifacts      *artifact.Store
	scorer         oracle.Scorer
	stamper        oracle.Stamper
	stampSem       *semaphore.Weighted
	auditPublisher AuditPublisher
	metrics        *Metrics
	logger         *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger.With("component", "lifecycle")
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(metrics *Metrics) Option {
	return func(s *Service) {
		s.metrics = metrics
	}
}

func NewService(
	ledger *quota.Ledger,
	registry *certificate.Registry,
	artifacts *artifact.Store,
	scorer oracle.Scorer,
	stamper oracle.Stamper,
	stampConcurrency int,
	opts ...Option,
) (*Service, error) {
	if ledger == nil {
		return nil, fmt.Errorf("quota ledger is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("certificate registry is required")
	}
	if artifacts == nil {
		return nil, fmt.Errorf("artifact store is required")
	}
	if scorer == nil {
		return nil, fmt.Errorf("scoring oracle is required")
	}
	if stamper == nil {
		return nil, fmt.Errorf("stamping oracle is required")
	}
	if stampConcurrency < 1 {
		return nil, fmt.Errorf("stamp concurrency must be at least 1, got %d", stampConcurrency)
	}

	service := &Service{
		ledger:    ledger,
		registry:  registry,
		artifacts: artifacts,
		scorer:    scorer,
		stamper:   stamper,
		stampSem:  semaphore.NewWeighted(int64(stampConcurrency)),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// SubmitRequest is one upload to certify.
type SubmitRequest struct {
	Identity id.Identity
	Filename string
	Body     io.Reader
}

// SubmitResult reports the created certificate and, for quota-tracked
// identities, the usage after commit. Usage is nil for anonymous uploads.
type SubmitResult struct {
	Certificate *certificate.Certificate
	Usage       *quota.UsageRecord
}

// Submit runs the full submission pipeline. Nothing is persisted when
// admission fails, and a failed stamping leaves neither a certificate
// record nor any file behind.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	ext := strings.ToLower(filepath.Ext(req.Filename))
	if !allowedExtensions[ext] {
		s.countSubmission(outcomeInvalidInput)
		return nil, dErrors.Newf(dErrors.CodeInvalidInput,
			"unsupported file type %q; accepted: .mp4, .mov, .avi, .m4v", ext)
	}

	if err := s.ledger.Admit(ctx, req.Identity); err != nil {
		if dErrors.HasCode(err, dErrors.CodeQuotaExceeded) {
			s.countSubmission(outcomeQuotaExceeded)
			s.emit(ctx, audit.Event{
				Category: audit.CategorySecurity,
				Action:   string(audit.EventQuotaExceeded),
				Identity: req.Identity,
			})
		}
		return nil, err
	}

	certID := id.NewCertificateID()
	staged, err := s.artifacts.Stage(certID, ext, req.Body)
	if err != nil {
		s.countSubmission(outcomeInvalidInput)
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "failed to read upload")
	}

	score, err := s.scorer.Score(ctx, s.artifacts.Path(staged.Ref))
	if err != nil {
		s.discardStaged(ctx, staged.Ref)
		s.countSubmission(outcomeError)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "scoring failed")
	}

	cert, err := s.registry.Create(ctx, certificate.CreateParams{
		ID:               certID,
		OwnerIdentity:    req.Identity,
		OriginalFilename: req.Filename,
		Fingerprint:      staged.Fingerprint,
		Score:            score,
		ArtifactRef:      staged.Ref,
	})
	if err != nil {
		s.discardStaged(ctx, staged.Ref)
		s.countSubmission(outcomeError)
		return nil, err
	}

	s.emit(ctx, audit.Event{
		Category:      audit.CategoryOperations,
		Action:        string(audit.EventSubmissionReceived),
		CertificateID: cert.ID,
		Identity:      req.Identity,
	})

	if s.registry.AutoCertifies(cert.Score) {
		cert, err = s.autoCertify(ctx, cert, staged.Ref)
		if err != nil {
			return nil, err
		}
		s.countSubmission(outcomeCertified)
		s.emit(ctx, audit.Event{
			Category:      audit.CategoryCompliance,
			Action:        string(audit.EventCertificateIssued),
			CertificateID: cert.ID,
			Identity:      req.Identity,
		})
	} else {
		s.countSubmission(outcomeReview)
		s.emit(ctx, audit.Event{
			Category:      audit.CategoryCompliance,
			Action:        string(audit.EventCertificateParked),
			CertificateID: cert.ID,
			Identity:      req.Identity,
			Reason:        fmt.Sprintf("score %d below threshold %d", score, s.registry.Threshold()),
		})
	}

	usage, err := s.ledger.Commit(ctx, req.Identity)
	if err != nil {
		// The certificate already exists; an uncharged upload beats a
		// user-visible failure for a completed submission.
		s.logger.WarnContext(ctx, "failed to commit quota after successful submission",
			"certificate_id", cert.ID, "identity", req.Identity, "error", err)
	}

	s.logger.InfoContext(ctx, "submission completed",
		"certificate_id", cert.ID,
		"status", cert.Status,
		"score", cert.Score,
		"size_bytes", staged.Size,
	)
	return &SubmitResult{Certificate: cert, Usage: usage}, nil
}

// autoCertify stamps the staged upload of a submission that cleared the
// threshold. The record stays in REVIEW while the stamper runs, so a
// concurrent download can never release the raw upload; the flip to
// CERTIFIED lands atomically with the stamped ref. On failure the record
// and all files are rolled back, so the attempted id resolves to nothing
// afterwards.
func (s *Service) autoCertify(ctx context.Context, cert *certificate.Certificate, stagedRef id.ArtifactRef) (*certificate.Certificate, error) {
	certifiedRef := s.artifacts.CertifiedRef(cert.ID)
	updated, err := s.registry.Approve(ctx, cert.ID, func(ctx context.Context, _ *certificate.Certificate) (id.ArtifactRef, error) {
		if err := s.stamp(ctx, stagedRef, certifiedRef, cert.ID); err != nil {
			return "", err
		}
		return certifiedRef, nil
	})
	if err != nil {
		s.rollback(ctx, cert.ID, stagedRef, certifiedRef)
		if dErrors.HasCode(err, dErrors.CodeStampingFailed) {
			s.countSubmission(outcomeStampingFailed)
			s.emit(ctx, audit.Event{
				Category:      audit.CategoryOperations,
				Action:        string(audit.EventStampingFailed),
				CertificateID: cert.ID,
				Identity:      cert.OwnerIdentity,
			})
		} else {
			s.countSubmission(outcomeError)
		}
		return nil, err
	}

	s.discardStaged(ctx, stagedRef)
	return updated, nil
}

// Approve certifies a parked certificate. Idempotent: an already-CERTIFIED
// certificate is returned unchanged. The per-id lock inside the registry
// serializes concurrent approvals, so the stamping oracle runs at most once.
func (s *Service) Approve(ctx context.Context, certID id.CertificateID) (*certificate.Certificate, error) {
	var stagedRef id.ArtifactRef

	cert, err := s.registry.Approve(ctx, certID, func(ctx context.Context, current *certificate.Certificate) (id.ArtifactRef, error) {
		stagedRef = current.ArtifactRef
		if !s.artifacts.Exists(stagedRef) {
			return "", dErrors.New(dErrors.CodeSourceMissing,
				"original upload is no longer available; submit the video again")
		}

		certifiedRef := s.artifacts.CertifiedRef(certID)
		if err := s.stamp(ctx, stagedRef, certifiedRef, certID); err != nil {
			s.emit(ctx, audit.Event{
				Category:      audit.CategoryOperations,
				Action:        string(audit.EventStampingFailed),
				CertificateID: certID,
			})
			return "", err
		}
		return certifiedRef, nil
	})
	if err != nil {
		return nil, err
	}

	if !stagedRef.IsZero() {
		s.discardStaged(ctx, stagedRef)
		s.emit(ctx, audit.Event{
			Category:      audit.CategoryCompliance,
			Action:        string(audit.EventCertificateApproved),
			CertificateID: certID,
			Identity:      cert.OwnerIdentity,
		})
	}
	return cert, nil
}

// Verify is a pure read of certificate state. It never mutates anything.
func (s *Service) Verify(ctx context.Context, certID id.CertificateID) (*certificate.Certificate, error) {
	return s.registry.Get(ctx, certID)
}

// Download opens the releasable artifact for a CERTIFIED certificate. The
// caller closes the file. Status is checked here as well as at write time:
// a REVIEW certificate is never served regardless of what is on disk.
func (s *Service) Download(ctx context.Context, certID id.CertificateID) (*certificate.Certificate, *os.File, error) {
	cert, err := s.registry.Get(ctx, certID)
	if err != nil {
		return nil, nil, err
	}
	if !cert.Certified() {
		return nil, nil, dErrors.New(dErrors.CodeNotCertified, "certificate is not yet certified")
	}
	if !s.artifacts.Exists(cert.ArtifactRef) {
		return nil, nil, dErrors.New(dErrors.CodeSourceMissing, "certified artifact is no longer available")
	}

	f, err := s.artifacts.Open(cert.ArtifactRef)
	if err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to open artifact")
	}

	if s.metrics != nil {
		s.metrics.DownloadsTotal.Inc()
	}
	s.emit(ctx, audit.Event{
		Category:      audit.CategoryOperations,
		Action:        string(audit.EventCertificateDownloaded),
		CertificateID: certID,
		Identity:      cert.OwnerIdentity,
	})
	return cert, f, nil
}

// stamp runs the stamping oracle under the concurrency gate.
func (s *Service) stamp(ctx context.Context, srcRef, dstRef id.ArtifactRef, certID id.CertificateID) error {
	if err := s.stampSem.Acquire(ctx, 1); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "submission cancelled while queued for stamping")
	}
	defer s.stampSem.Release(1)

	if s.metrics != nil {
		s.metrics.StampInFlight.Inc()
		defer s.metrics.StampInFlight.Dec()
	}

	start := time.Now()
	err := s.stamper.Stamp(ctx, s.artifacts.Path(srcRef), s.artifacts.Path(dstRef), certID.String())
	if s.metrics != nil {
		s.metrics.StampDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeStampingFailed, "video stamping failed")
	}
	return nil
}

// rollback undoes a failed auto-certification: the record and any files
// written for this id are removed so the submission leaves no trace.
func (s *Service) rollback(ctx context.Context, certID id.CertificateID, refs ...id.ArtifactRef) {
	if err := s.registry.Delete(ctx, certID); err != nil && !dErrors.HasCode(err, dErrors.CodeNotFound) {
		s.logger.ErrorContext(ctx, "failed to roll back certificate record",
			"certificate_id", certID, "error", err)
	}
	for _, ref := range refs {
		s.discardStaged(ctx, ref)
	}
}

func (s *Service) discardStaged(ctx context.Context, ref id.ArtifactRef) {
	if err := s.artifacts.Remove(ref); err != nil {
		s.logger.WarnContext(ctx, "failed to remove artifact file", "ref", ref, "error", err)
	}
}

func (s *Service) countSubmission(outcome string) {
	if s.metrics != nil {
		s.metrics.SubmissionsTotal.WithLabelValues(outcome).Inc()
	}
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditPublisher == nil {
		return
	}
	event.RequestID = request.GetRequestID(ctx)
	if err := s.auditPublisher.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event", "action", event.Action, "error", err)
	}
}
