package conversion

// service.go wires admission, the rule interpreter, and the CSV serializer
// into the job lifecycle.
//
// Admission order matters: configuration lookup (validation error, no state),
// then quota reservation (policy error, no state), and only then job
// creation. A rejected request leaves nothing behind.

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/rowforge/rowforge/internal/engine"
	"github.com/rowforge/rowforge/internal/sheet"
)

// DefaultSyncThreshold is the file size at or above which a conversion is
// queued instead of run inline: 10 MiB.
const DefaultSyncThreshold = 10 << 20

// Configuration is a named, versioned, ordered rule list plus an output
// format, owned by an organization. It is immutable during a run; every run
// executes against a snapshot.
type Configuration struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	Name           string
	Description    string
	Rules          []engine.Rule
	Output         engine.OutputFormat
	Version        int
	IsActive       bool
}

// ConfigurationSource looks up configurations, enforcing organization
// scoping and active-only visibility.
type ConfigurationSource interface {
	Get(ctx context.Context, orgID, configID uuid.UUID) (*Configuration, error)
}

// JobStore persists jobs. Status updates must be guarded so the state
// machine in job.go cannot be violated by concurrent writers.
type JobStore interface {
	Create(ctx context.Context, job *Job) error
	Get(ctx context.Context, orgID, jobID uuid.UUID) (*Job, error)
	MarkProcessing(ctx context.Context, jobID uuid.UUID) error
	MarkCompleted(ctx context.Context, jobID uuid.UUID, outputRef string, log *ExecutionLog) error
	MarkFailed(ctx context.Context, jobID uuid.UUID, errMsg string, log *ExecutionLog) error
}

// ArtifactStore holds serialized CSV output keyed by an opaque reference.
// Open enforces the store's download expiry.
type ArtifactStore interface {
	Save(ctx context.Context, jobID uuid.UUID, csv string) (ref string, err error)
	Open(ctx context.Context, orgID uuid.UUID, ref string) (csv string, err error)
}

// Task is the queued unit of work for asynchronous conversions. Delivery and
// retry policy belong to the queue transport.
type Task struct {
	JobID           uuid.UUID `json:"jobId"`
	OrganizationID  uuid.UUID `json:"organizationId"`
	ConfigurationID uuid.UUID `json:"configurationId"`
	FileData        []byte    `json:"fileData"`
	FileName        string    `json:"fileName"`
	CallbackURL     string    `json:"callbackUrl,omitempty"`
	UID             string    `json:"uid,omitempty"`
}

// TaskQueue publishes tasks for worker consumption.
type TaskQueue interface {
	Publish(ctx context.Context, task Task) error
}

// Service runs conversions. Construct with NewService; the zero value is not
// usable.
type Service struct {
	configs   ConfigurationSource
	jobs      JobStore
	artifacts ArtifactStore
	quota     Quota
	queue     TaskQueue // nil disables the queued path

	syncThreshold int64
}

// NewService creates a conversion service. queue may be nil for deployments
// without a worker (CLI, tests); requests that would queue then fail
// admission with ErrQueueUnavailable. syncThreshold <= 0 uses the default.
func NewService(configs ConfigurationSource, jobs JobStore, artifacts ArtifactStore, quota Quota, queue TaskQueue, syncThreshold int64) *Service {
	if syncThreshold <= 0 {
		syncThreshold = DefaultSyncThreshold
	}
	return &Service{
		configs:       configs,
		jobs:          jobs,
		artifacts:     artifacts,
		quota:         quota,
		queue:         queue,
		syncThreshold: syncThreshold,
	}
}

// Request is one conversion invocation.
type Request struct {
	OrganizationID  uuid.UUID
	ConfigurationID uuid.UUID
	FileName        string
	FileData        []byte
	Async           bool
	CallbackURL     string
	UID             string
}

// SubmitResult is what the caller gets back. Queued runs carry only the
// pending Job; synchronous runs also carry the inline CSV and execution log.
type SubmitResult struct {
	Job *Job

	// Set on the synchronous path only.
	CSV string
	Log *ExecutionLog
}

// Submit admits and executes one conversion. The run is synchronous only if
// the async flag is unset AND the file is below the sync threshold AND no
// callback was requested; any of those queues it.
func (s *Service) Submit(ctx context.Context, req Request) (*SubmitResult, error) {
	if len(req.FileData) == 0 {
		return nil, ErrNoFile
	}

	cfg, err := s.configs.Get(ctx, req.OrganizationID, req.ConfigurationID)
	if err != nil {
		return nil, err
	}

	if err := s.quota.CheckAndReserve(ctx, req.OrganizationID, int64(len(req.FileData))); err != nil {
		return nil, err
	}

	queued := req.Async || int64(len(req.FileData)) >= s.syncThreshold || req.CallbackURL != ""
	if queued {
		return s.submitQueued(ctx, req)
	}
	return s.runSync(ctx, req, cfg)
}

// submitQueued creates the job in pending and enqueues a task. A publish
// failure transitions the job to failed; the caller observes the status, not
// the cause.
func (s *Service) submitQueued(ctx context.Context, req Request) (*SubmitResult, error) {
	if s.queue == nil {
		s.releaseQuota(ctx, req.OrganizationID)
		return nil, ErrQueueUnavailable
	}

	job := &Job{
		ID:              uuid.New(),
		OrganizationID:  req.OrganizationID,
		ConfigurationID: req.ConfigurationID,
		Status:          StatusPending,
		FileName:        req.FileName,
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		s.releaseQuota(ctx, req.OrganizationID)
		return nil, fmt.Errorf("create job: %w", err)
	}

	task := Task{
		JobID:           job.ID,
		OrganizationID:  req.OrganizationID,
		ConfigurationID: req.ConfigurationID,
		FileData:        req.FileData,
		FileName:        req.FileName,
		CallbackURL:     req.CallbackURL,
		UID:             req.UID,
	}
	if err := s.queue.Publish(ctx, task); err != nil {
		slog.Error("task publish failed", "job_id", job.ID, "error", err)
		s.failJob(ctx, job, fmt.Sprintf("queue publish failed: %v", err), nil)
		s.releaseQuota(ctx, req.OrganizationID)
		return &SubmitResult{Job: job}, nil
	}

	slog.Info("conversion queued",
		"job_id", job.ID,
		"organization_id", req.OrganizationID,
		"file_name", req.FileName,
		"file_bytes", len(req.FileData),
	)
	return &SubmitResult{Job: job}, nil
}

// runSync executes the pipeline inline. The job is created already in
// processing and reaches a terminal state before this returns.
func (s *Service) runSync(ctx context.Context, req Request, cfg *Configuration) (*SubmitResult, error) {
	defer s.releaseQuota(ctx, req.OrganizationID)

	now := time.Now().UTC()
	job := &Job{
		ID:              uuid.New(),
		OrganizationID:  req.OrganizationID,
		ConfigurationID: req.ConfigurationID,
		Status:          StatusProcessing,
		FileName:        req.FileName,
		StartedAt:       &now,
		CreatedAt:       now,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	csv, log, err := s.execute(ctx, job, cfg, req.FileData)
	if err != nil {
		s.failJob(ctx, job, err.Error(), log)
		return &SubmitResult{Job: job, Log: log}, nil
	}

	return &SubmitResult{Job: job, CSV: csv, Log: log}, nil
}

// ProcessTask runs one dequeued task to a terminal state. The calling worker
// must be the task's sole owner; the job's transitions for its lifetime
// happen here and nowhere else.
func (s *Service) ProcessTask(ctx context.Context, task Task) error {
	defer s.releaseQuota(ctx, task.OrganizationID)

	job, err := s.jobs.Get(ctx, task.OrganizationID, task.JobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", task.JobID, err)
	}
	if job.Status.IsTerminal() {
		slog.Warn("task for terminal job ignored", "job_id", job.ID, "status", job.Status)
		return nil
	}

	if err := s.jobs.MarkProcessing(ctx, job.ID); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	cfg, err := s.configs.Get(ctx, task.OrganizationID, task.ConfigurationID)
	if err != nil {
		s.failJob(ctx, job, err.Error(), nil)
		return nil
	}

	if _, _, err := s.execute(ctx, job, cfg, task.FileData); err != nil {
		s.failJob(ctx, job, err.Error(), nil)
	}
	return nil
}

// execute runs read -> interpret -> serialize -> store for one job and marks
// it completed on success. The returned error is the failure to record on
// the job; it is never re-thrown past the job boundary by callers.
func (s *Service) execute(ctx context.Context, job *Job, cfg *Configuration, fileData []byte) (string, *ExecutionLog, error) {
	start := time.Now()

	wb, err := sheet.ReadWorkbook(fileData)
	if err != nil {
		return "", nil, err
	}

	res, err := engine.Run(wb, cfg.Rules)
	if err != nil {
		return "", nil, err
	}

	log := &ExecutionLog{Applied: res.Applied, Warnings: res.Warnings, Notify: res.Notify}
	if res.Aborted {
		return "", log, fmt.Errorf("transformation aborted: column validation failed")
	}

	csv := engine.Serialize(res.Matrix, cfg.Output)

	ref, err := s.artifacts.Save(ctx, job.ID, csv)
	if err != nil {
		return "", log, fmt.Errorf("store output: %w", err)
	}

	if err := s.jobs.MarkCompleted(ctx, job.ID, ref, log); err != nil {
		return "", log, fmt.Errorf("mark completed: %w", err)
	}
	job.Status = StatusCompleted
	job.OutputRef = ref

	if err := s.quota.AddUsage(ctx, job.OrganizationID, res.RowCount, int64(len(csv))); err != nil {
		slog.Warn("usage increment failed", "job_id", job.ID, "error", err)
	}

	slog.Info("conversion completed",
		"job_id", job.ID,
		"rows", res.RowCount,
		"cols", res.ColCount,
		"warnings", len(res.Warnings),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return csv, log, nil
}

// Job returns a job scoped to its organization.
func (s *Service) Job(ctx context.Context, orgID, jobID uuid.UUID) (*Job, error) {
	return s.jobs.Get(ctx, orgID, jobID)
}

// Download returns the stored CSV for a completed job's output reference.
func (s *Service) Download(ctx context.Context, orgID uuid.UUID, ref string) (string, error) {
	return s.artifacts.Open(ctx, orgID, ref)
}

// failJob records a failure, logging rather than failing when the store
// update itself errors.
func (s *Service) failJob(ctx context.Context, job *Job, msg string, log *ExecutionLog) {
	if err := s.jobs.MarkFailed(ctx, job.ID, msg, log); err != nil {
		slog.Error("mark failed errored", "job_id", job.ID, "error", err)
	}
	job.Status = StatusFailed
	job.ErrorMessage = msg
	slog.Info("conversion failed", "job_id", job.ID, "error", msg)
}

func (s *Service) releaseQuota(ctx context.Context, orgID uuid.UUID) {
	if err := s.quota.Release(ctx, orgID); err != nil {
		slog.Warn("quota release failed", "organization_id", orgID, "error", err)
	}
}
