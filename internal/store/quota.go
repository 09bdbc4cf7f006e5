package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rowforge/rowforge/internal/conversion"
)

// QuotaStore enforces per-organization admission limits in the database.
//
// The concurrency reservation is a single-row atomic UPDATE guarded on the
// current counter, not a read-modify-write: two concurrent admissions racing
// on one remaining slot cannot both pass because only one UPDATE matches the
// guard.
type QuotaStore struct {
	db DBTX
}

// NewQuotaStore creates a store backed by db.
func NewQuotaStore(db DBTX) *QuotaStore {
	return &QuotaStore{db: db}
}

var _ conversion.Quota = (*QuotaStore)(nil)

// CheckAndReserve admits one conversion for the organization, atomically
// incrementing its active counter, or rejects with the matching admission
// error. Organizations without a quota row are rejected as over quota.
func (s *QuotaStore) CheckAndReserve(ctx context.Context, orgID uuid.UUID, fileSize int64) error {
	const q = `
		UPDATE org_quotas
		SET active_conversions = active_conversions + 1
		WHERE organization_id = $1
		  AND active_conversions < max_concurrent
		  AND $2 <= max_file_bytes
		  AND monthly_bytes_used + $2 <= monthly_byte_limit
		RETURNING active_conversions`

	var active int
	err := s.db.QueryRow(ctx, q, orgID, fileSize).Scan(&active)
	if !errors.Is(err, pgx.ErrNoRows) {
		if err != nil {
			return fmt.Errorf("quota reserve: %w", err)
		}
		return nil
	}

	// The guarded update matched nothing; re-read to report which limit the
	// request hit. The reservation itself stays atomic, this is diagnostics.
	const why = `
		SELECT active_conversions >= max_concurrent,
		       $2 > max_file_bytes,
		       monthly_bytes_used + $2 > monthly_byte_limit
		FROM org_quotas
		WHERE organization_id = $1`

	var overConcurrency, overFileSize, overMonthly bool
	err = s.db.QueryRow(ctx, why, orgID, fileSize).Scan(&overConcurrency, &overFileSize, &overMonthly)
	if errors.Is(err, pgx.ErrNoRows) {
		return conversion.ErrQuotaExceeded
	}
	if err != nil {
		return fmt.Errorf("quota check: %w", err)
	}

	switch {
	case overFileSize:
		return conversion.ErrFileTooLarge
	case overConcurrency:
		return conversion.ErrTooManyConversions
	default:
		return conversion.ErrQuotaExceeded
	}
}

// Release frees one reservation.
func (s *QuotaStore) Release(ctx context.Context, orgID uuid.UUID) error {
	const q = `
		UPDATE org_quotas
		SET active_conversions = GREATEST(active_conversions - 1, 0)
		WHERE organization_id = $1`

	if _, err := s.db.Exec(ctx, q, orgID); err != nil {
		return fmt.Errorf("quota release: %w", err)
	}
	return nil
}

// AddUsage records post-hoc usage after a completed conversion.
func (s *QuotaStore) AddUsage(ctx context.Context, orgID uuid.UUID, rows int, bytes int64) error {
	const q = `
		UPDATE org_quotas
		SET monthly_rows_used = monthly_rows_used + $2,
		    monthly_bytes_used = monthly_bytes_used + $3
		WHERE organization_id = $1`

	if _, err := s.db.Exec(ctx, q, orgID, rows, bytes); err != nil {
		return fmt.Errorf("usage increment: %w", err)
	}
	return nil
}
