package conversion

import (
	"context"

	"github.com/google/uuid"
)

// Quota is the admission-time policy check. CheckAndReserve must be atomic
// with respect to concurrent admissions: two callers racing on a limit of
// N-1 remaining must not both pass. Every successful reservation is released
// exactly once when the job reaches a terminal state.
type Quota interface {
	// CheckAndReserve admits a conversion of fileSize bytes for the
	// organization or rejects it with ErrTooManyConversions,
	// ErrQuotaExceeded, or ErrFileTooLarge.
	CheckAndReserve(ctx context.Context, orgID uuid.UUID, fileSize int64) error

	// Release frees a reservation taken by CheckAndReserve.
	Release(ctx context.Context, orgID uuid.UUID) error

	// AddUsage records post-hoc usage for billing after a completed run.
	AddUsage(ctx context.Context, orgID uuid.UUID, rows int, bytes int64) error
}

// MemoryQuota enforces the per-organization concurrency limit and max file
// size in process, with no persistence. Used by the CLI and tests; service
// deployments use the database-backed implementation in internal/store.
type MemoryQuota struct {
	limiter     *Limiter
	maxFileSize int64
}

// NewMemoryQuota creates an in-process quota. maxFileSize <= 0 disables the
// size check.
func NewMemoryQuota(maxConcurrent int, maxFileSize int64) *MemoryQuota {
	return &MemoryQuota{limiter: NewLimiter(maxConcurrent), maxFileSize: maxFileSize}
}

func (q *MemoryQuota) CheckAndReserve(_ context.Context, orgID uuid.UUID, fileSize int64) error {
	if q.maxFileSize > 0 && fileSize > q.maxFileSize {
		return ErrFileTooLarge
	}
	if !q.limiter.TryAcquire(orgID.String()) {
		return ErrTooManyConversions
	}
	return nil
}

func (q *MemoryQuota) Release(_ context.Context, orgID uuid.UUID) error {
	q.limiter.Release(orgID.String())
	return nil
}

func (q *MemoryQuota) AddUsage(context.Context, uuid.UUID, int, int64) error {
	return nil
}
