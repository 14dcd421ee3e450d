package quota

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	id "verifyd/pkg/domain"
	"verifyd/pkg/platform/sentinel"
)

// PostgresStore persists usage records in PostgreSQL. The upsert-based
// increment is linearizable per identity: the row lock taken by
// ON CONFLICT DO UPDATE serializes concurrent commits.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the usage_records table if missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS usage_records (
			identity     TEXT PRIMARY KEY,
			uploads_used INTEGER NOT NULL DEFAULT 0,
			subscribed   BOOLEAN NOT NULL DEFAULT FALSE,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure usage_records schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, identity id.Identity) (*UsageRecord, error) {
	record := &UsageRecord{}
	err := s.db.QueryRowContext(ctx, `
		SELECT identity, uploads_used, subscribed, created_at, updated_at
		FROM usage_records WHERE identity = $1
	`, identity.String()).Scan(
		&record.Identity, &record.UploadsUsed, &record.Subscribed,
		&record.CreatedAt, &record.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get usage record: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) Ensure(ctx context.Context, identity id.Identity) (*UsageRecord, error) {
	record := &UsageRecord{}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO usage_records (identity)
		VALUES ($1)
		ON CONFLICT (identity) DO UPDATE SET identity = EXCLUDED.identity
		RETURNING identity, uploads_used, subscribed, created_at, updated_at
	`, identity.String()).Scan(
		&record.Identity, &record.UploadsUsed, &record.Subscribed,
		&record.CreatedAt, &record.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("ensure usage record: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) Increment(ctx context.Context, identity id.Identity) (*UsageRecord, error) {
	record := &UsageRecord{}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO usage_records (identity, uploads_used)
		VALUES ($1, 1)
		ON CONFLICT (identity) DO UPDATE SET
			uploads_used = usage_records.uploads_used + 1,
			updated_at   = now()
		RETURNING identity, uploads_used, subscribed, created_at, updated_at
	`, identity.String()).Scan(
		&record.Identity, &record.UploadsUsed, &record.Subscribed,
		&record.CreatedAt, &record.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("increment usage record: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) SetSubscribed(ctx context.Context, identity id.Identity) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usage_records (identity, subscribed)
		VALUES ($1, TRUE)
		ON CONFLICT (identity) DO UPDATE SET
			subscribed = TRUE,
			updated_at = now()
	`, identity.String())
	if err != nil {
		return fmt.Errorf("set subscribed: %w", err)
	}
	return nil
}
