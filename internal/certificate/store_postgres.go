package certificate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	id "verifyd/pkg/domain"
	"verifyd/pkg/platform/sentinel"
)

// PostgresStore persists certificate records in PostgreSQL. Single-row
// inserts and conditional updates give the per-id atomicity the Registry
// relies on.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the certificates table if missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS certificates (
			id                UUID PRIMARY KEY,
			owner_identity    TEXT NOT NULL DEFAULT '',
			original_filename TEXT NOT NULL,
			fingerprint       TEXT NOT NULL,
			score             INTEGER NOT NULL,
			status            TEXT NOT NULL,
			artifact_ref      TEXT NOT NULL,
			created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
			certified_at      TIMESTAMPTZ
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure certificates schema: %w", err)
	}
	return nil
}

const certificateColumns = `id, owner_identity, original_filename, fingerprint, score, status, artifact_ref, created_at, certified_at`

func (s *PostgresStore) Create(ctx context.Context, cert *Certificate) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO certificates
			(id, owner_identity, original_filename, fingerprint, score, status, artifact_ref, created_at, certified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		cert.ID.String(), cert.OwnerIdentity.String(), cert.OriginalFilename,
		cert.Fingerprint, cert.Score, string(cert.Status), cert.ArtifactRef.String(),
		cert.CreatedAt, cert.CertifiedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create certificate: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, certID id.CertificateID) (*Certificate, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+certificateColumns+`
		FROM certificates WHERE id = $1
	`, certID.String())
	return scanCertificate(row)
}

func (s *PostgresStore) Certify(ctx context.Context, certID id.CertificateID, ref id.ArtifactRef, certifiedAt time.Time) (*Certificate, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE certificates SET
			status       = $2,
			artifact_ref = $3,
			certified_at = $4
		WHERE id = $1 AND status = $5
		RETURNING `+certificateColumns+`
	`, certID.String(), string(StatusCertified), ref.String(), certifiedAt, string(StatusReview))

	cert, err := scanCertificate(row)
	if err == nil {
		return cert, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, fmt.Errorf("certify certificate: %w", err)
	}

	// Either the id is unknown or the record has already left REVIEW.
	if _, getErr := s.Get(ctx, certID); getErr == nil {
		return nil, sentinel.ErrInvalidState
	}
	return nil, sentinel.ErrNotFound
}

func (s *PostgresStore) Delete(ctx context.Context, certID id.CertificateID) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM certificates WHERE id = $1`, certID.String())
	if err != nil {
		return fmt.Errorf("delete certificate: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete certificate: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func scanCertificate(row *sql.Row) (*Certificate, error) {
	var (
		cert        Certificate
		rawID       string
		identity    string
		status      string
		artifactRef string
		certifiedAt sql.NullTime
	)
	err := row.Scan(
		&rawID, &identity, &cert.OriginalFilename, &cert.Fingerprint,
		&cert.Score, &status, &artifactRef, &cert.CreatedAt, &certifiedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan certificate: %w", err)
	}

	certID, err := id.ParseCertificateID(rawID)
	if err != nil {
		return nil, fmt.Errorf("scan certificate id: %w", err)
	}
	cert.ID = certID
	cert.OwnerIdentity = id.Identity(identity)
	cert.Status = Status(status)
	cert.ArtifactRef = id.ArtifactRef(artifactRef)
	if certifiedAt.Valid {
		t := certifiedAt.Time
		cert.CertifiedAt = &t
	}
	return &cert, nil
}
