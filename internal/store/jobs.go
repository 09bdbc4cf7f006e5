package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rowforge/rowforge/internal/conversion"
)

// JobStore persists conversion jobs. Every status update is a single-row
// atomic UPDATE guarded on the current status, so the monotonic state
// machine cannot be violated by a racing writer: a transition whose guard
// does not hold affects zero rows and is reported as a conflict.
type JobStore struct {
	db DBTX
}

// NewJobStore creates a store backed by db.
func NewJobStore(db DBTX) *JobStore {
	return &JobStore{db: db}
}

// ErrStaleTransition is returned when a status update's guard did not match,
// meaning another owner already moved the job.
var ErrStaleTransition = errors.New("job status transition conflicts with current state")

// Create inserts a new job row with its initial status.
func (s *JobStore) Create(ctx context.Context, job *conversion.Job) error {
	const q = `
		INSERT INTO jobs (id, organization_id, configuration_id, status, file_name, started_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.db.Exec(ctx, q,
		job.ID, job.OrganizationID, job.ConfigurationID, string(job.Status),
		job.FileName, job.StartedAt, job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// Get returns a job scoped to its organization.
func (s *JobStore) Get(ctx context.Context, orgID, jobID uuid.UUID) (*conversion.Job, error) {
	const q = `
		SELECT id, organization_id, configuration_id, status, file_name,
		       started_at, completed_at, error_message, output_ref, created_at
		FROM jobs
		WHERE id = $1 AND organization_id = $2`

	var (
		job    conversion.Job
		status string
		errMsg *string
		ref    *string
	)
	err := s.db.QueryRow(ctx, q, jobID, orgID).Scan(
		&job.ID, &job.OrganizationID, &job.ConfigurationID, &status, &job.FileName,
		&job.StartedAt, &job.CompletedAt, &errMsg, &ref, &job.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, conversion.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}

	job.Status = conversion.Status(status)
	if errMsg != nil {
		job.ErrorMessage = *errMsg
	}
	if ref != nil {
		job.OutputRef = *ref
	}
	return &job, nil
}

// MarkProcessing moves a pending job to processing.
func (s *JobStore) MarkProcessing(ctx context.Context, jobID uuid.UUID) error {
	const q = `
		UPDATE jobs
		SET status = 'processing', started_at = now()
		WHERE id = $1 AND status = 'pending'`
	return s.transition(ctx, q, jobID)
}

// MarkCompleted moves a processing job to completed with its output
// reference and execution log.
func (s *JobStore) MarkCompleted(ctx context.Context, jobID uuid.UUID, outputRef string, log *conversion.ExecutionLog) error {
	rawLog, err := marshalLog(log)
	if err != nil {
		return err
	}
	const q = `
		UPDATE jobs
		SET status = 'completed', completed_at = now(), output_ref = $2, execution_log = $3
		WHERE id = $1 AND status = 'processing'`
	return s.transition(ctx, q, jobID, outputRef, rawLog)
}

// MarkFailed moves a non-terminal job to failed with an error message.
func (s *JobStore) MarkFailed(ctx context.Context, jobID uuid.UUID, errMsg string, log *conversion.ExecutionLog) error {
	rawLog, err := marshalLog(log)
	if err != nil {
		return err
	}
	const q = `
		UPDATE jobs
		SET status = 'failed', completed_at = now(), error_message = $2, execution_log = $3
		WHERE id = $1 AND status IN ('pending', 'processing')`
	return s.transition(ctx, q, jobID, errMsg, rawLog)
}

// ExecutionLog returns a job's stored execution log, or nil if none was
// recorded.
func (s *JobStore) ExecutionLog(ctx context.Context, orgID, jobID uuid.UUID) (*conversion.ExecutionLog, error) {
	const q = `
		SELECT execution_log
		FROM jobs
		WHERE id = $1 AND organization_id = $2`

	var raw []byte
	err := s.db.QueryRow(ctx, q, jobID, orgID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, conversion.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get execution log: %w", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	var log conversion.ExecutionLog
	if err := json.Unmarshal(raw, &log); err != nil {
		return nil, fmt.Errorf("decode execution log: %w", err)
	}
	return &log, nil
}

func (s *JobStore) transition(ctx context.Context, q string, jobID uuid.UUID, args ...any) error {
	tag, err := s.db.Exec(ctx, q, append([]any{jobID}, args...)...)
	if err != nil {
		return fmt.Errorf("job transition: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleTransition
	}
	return nil
}

func marshalLog(log *conversion.ExecutionLog) ([]byte, error) {
	if log == nil {
		return nil, nil
	}
	raw, err := json.Marshal(log)
	if err != nil {
		return nil, fmt.Errorf("marshal execution log: %w", err)
	}
	return raw, nil
}
