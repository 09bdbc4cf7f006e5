package conversion

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/rowforge/rowforge/internal/engine"
)

// ----------------------------------------------------------------------------
// Fakes
// ----------------------------------------------------------------------------

type fakeConfigs struct {
	cfg *Configuration
	err error
}

func (f *fakeConfigs) Get(_ context.Context, orgID, configID uuid.UUID) (*Configuration, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.cfg, nil
}

type fakeJobs struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*Job
}

func newFakeJobs() *fakeJobs {
	return &fakeJobs{jobs: make(map[uuid.UUID]*Job)}
}

func (f *fakeJobs) Create(_ context.Context, job *Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *job
	f.jobs[job.ID] = &copied
	return nil
}

func (f *fakeJobs) Get(_ context.Context, orgID, jobID uuid.UUID) (*Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[jobID]
	if !ok || job.OrganizationID != orgID {
		return nil, ErrJobNotFound
	}
	copied := *job
	return &copied, nil
}

func (f *fakeJobs) setStatus(jobID uuid.UUID, from []Status, to Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	for _, s := range from {
		if job.Status == s {
			job.Status = to
			return nil
		}
	}
	return errors.New("stale status transition")
}

func (f *fakeJobs) MarkProcessing(_ context.Context, jobID uuid.UUID) error {
	return f.setStatus(jobID, []Status{StatusPending}, StatusProcessing)
}

func (f *fakeJobs) MarkCompleted(_ context.Context, jobID uuid.UUID, outputRef string, _ *ExecutionLog) error {
	if err := f.setStatus(jobID, []Status{StatusProcessing}, StatusCompleted); err != nil {
		return err
	}
	f.mu.Lock()
	f.jobs[jobID].OutputRef = outputRef
	f.mu.Unlock()
	return nil
}

func (f *fakeJobs) MarkFailed(_ context.Context, jobID uuid.UUID, errMsg string, _ *ExecutionLog) error {
	if err := f.setStatus(jobID, []Status{StatusPending, StatusProcessing}, StatusFailed); err != nil {
		return err
	}
	f.mu.Lock()
	f.jobs[jobID].ErrorMessage = errMsg
	f.mu.Unlock()
	return nil
}

func (f *fakeJobs) status(jobID uuid.UUID) Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.jobs[jobID].Status
}

type fakeArtifacts struct {
	mu    sync.Mutex
	saved map[string]string
}

func newFakeArtifacts() *fakeArtifacts {
	return &fakeArtifacts{saved: make(map[string]string)}
}

func (f *fakeArtifacts) Save(_ context.Context, jobID uuid.UUID, csv string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ref := uuid.NewString()
	f.saved[ref] = csv
	return ref, nil
}

func (f *fakeArtifacts) Open(_ context.Context, _ uuid.UUID, ref string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	csv, ok := f.saved[ref]
	if !ok {
		return "", ErrArtifactExpired
	}
	return csv, nil
}

type fakeQuota struct {
	mu       sync.Mutex
	reserved int
	released int
	err      error
}

func (f *fakeQuota) CheckAndReserve(_ context.Context, _ uuid.UUID, _ int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.reserved++
	return nil
}

func (f *fakeQuota) Release(_ context.Context, _ uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released++
	return nil
}

func (f *fakeQuota) AddUsage(context.Context, uuid.UUID, int, int64) error { return nil }

func (f *fakeQuota) held() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reserved - f.released
}

type fakeQueue struct {
	mu    sync.Mutex
	tasks []Task
	err   error
}

func (f *fakeQueue) Publish(_ context.Context, task Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.tasks = append(f.tasks, task)
	return nil
}

// ----------------------------------------------------------------------------
// Fixtures
// ----------------------------------------------------------------------------

// smallWorkbook builds a valid in-memory xlsx with a header and two rows.
func smallWorkbook(t *testing.T) []byte {
	t.Helper()
	f := excelize.NewFile()
	f.SetCellValue("Sheet1", "A1", "Name")
	f.SetCellValue("Sheet1", "B1", "Amount")
	f.SetCellValue("Sheet1", "A2", "Alice")
	f.SetCellValue("Sheet1", "B2", "100")
	f.SetCellValue("Sheet1", "A3", "Bob")
	f.SetCellValue("Sheet1", "B3", "200")
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	f.Close()
	return buf.Bytes()
}

func testConfiguration(rules []engine.Rule) *Configuration {
	return &Configuration{
		ID:       uuid.New(),
		Name:     "test",
		Rules:    rules,
		Output:   engine.DefaultOutputFormat(),
		Version:  1,
		IsActive: true,
	}
}

type serviceEnv struct {
	service   *Service
	configs   *fakeConfigs
	jobs      *fakeJobs
	artifacts *fakeArtifacts
	quota     *fakeQuota
	queue     *fakeQueue
}

func newServiceEnv(cfg *Configuration, threshold int64) *serviceEnv {
	env := &serviceEnv{
		configs:   &fakeConfigs{cfg: cfg},
		jobs:      newFakeJobs(),
		artifacts: newFakeArtifacts(),
		quota:     &fakeQuota{},
		queue:     &fakeQueue{},
	}
	env.service = NewService(env.configs, env.jobs, env.artifacts, env.quota, env.queue, threshold)
	return env
}

// ----------------------------------------------------------------------------
// Submit
// ----------------------------------------------------------------------------

func TestSubmitNoFile(t *testing.T) {
	env := newServiceEnv(testConfiguration(nil), 0)
	_, err := env.service.Submit(context.Background(), Request{OrganizationID: uuid.New()})
	if !errors.Is(err, ErrNoFile) {
		t.Fatalf("err = %v, want ErrNoFile", err)
	}
}

func TestSubmitConfigurationNotFound(t *testing.T) {
	env := newServiceEnv(nil, 0)
	env.configs.err = ErrConfigurationNotFound

	_, err := env.service.Submit(context.Background(), Request{
		OrganizationID: uuid.New(),
		FileData:       []byte("x"),
	})
	if !errors.Is(err, ErrConfigurationNotFound) {
		t.Fatalf("err = %v, want ErrConfigurationNotFound", err)
	}
	if env.quota.reserved != 0 {
		t.Error("quota must not be reserved when config lookup fails")
	}
}

func TestSubmitQuotaRejected(t *testing.T) {
	env := newServiceEnv(testConfiguration(nil), 0)
	env.quota.err = ErrTooManyConversions

	_, err := env.service.Submit(context.Background(), Request{
		OrganizationID: uuid.New(),
		FileData:       []byte("x"),
	})
	if !errors.Is(err, ErrTooManyConversions) {
		t.Fatalf("err = %v, want ErrTooManyConversions", err)
	}
	if len(env.jobs.jobs) != 0 {
		t.Error("no job should exist after a rejected admission")
	}
}

func TestSubmitSyncCompletes(t *testing.T) {
	env := newServiceEnv(testConfiguration([]engine.Rule{
		&engine.DeleteColumns{ID: "r1", Columns: []string{"Amount"}},
	}), 0)

	res, err := env.service.Submit(context.Background(), Request{
		OrganizationID: uuid.New(),
		FileData:       smallWorkbook(t),
		FileName:       "report.xlsx",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if res.Job.Status != StatusCompleted {
		t.Fatalf("status = %s, want completed", res.Job.Status)
	}
	if want := "Name\nAlice\nBob"; res.CSV != want {
		t.Errorf("csv = %q, want %q", res.CSV, want)
	}
	if res.Log == nil || len(res.Log.Applied) != 1 {
		t.Errorf("log = %+v, want one applied entry", res.Log)
	}
	if res.Job.OutputRef == "" {
		t.Error("completed job must carry an output reference")
	}
	if env.quota.held() != 0 {
		t.Error("sync run must release its reservation")
	}
	if env.jobs.status(res.Job.ID) != StatusCompleted {
		t.Error("stored job should be completed")
	}
}

func TestSubmitSyncUnreadableFileFails(t *testing.T) {
	env := newServiceEnv(testConfiguration(nil), 0)

	res, err := env.service.Submit(context.Background(), Request{
		OrganizationID: uuid.New(),
		FileData:       []byte("definitely not a workbook"),
	})
	if err != nil {
		t.Fatalf("execution failures surface on the job, not as errors: %v", err)
	}
	if res.Job.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", res.Job.Status)
	}
	if res.Job.ErrorMessage == "" {
		t.Error("failed job should record an error message")
	}
	if env.quota.held() != 0 {
		t.Error("failed sync run must release its reservation")
	}
}

func TestSubmitSyncValidationAbort(t *testing.T) {
	env := newServiceEnv(testConfiguration([]engine.Rule{
		&engine.ValidateColumns{ID: "v", ExpectedCount: 9, OnFailure: engine.FailureStop},
	}), 0)

	res, err := env.service.Submit(context.Background(), Request{
		OrganizationID: uuid.New(),
		FileData:       smallWorkbook(t),
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Job.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", res.Job.Status)
	}
	if !strings.Contains(res.Job.ErrorMessage, "column validation failed") {
		t.Errorf("error message = %q", res.Job.ErrorMessage)
	}
	if res.Log == nil || len(res.Log.Warnings) == 0 {
		t.Error("abort should still return the execution log with warnings")
	}
}

func TestSubmitQueuedPaths(t *testing.T) {
	data := smallWorkbook(t)

	tests := []struct {
		name      string
		threshold int64
		req       Request
	}{
		{"async flag", 0, Request{Async: true}},
		{"file at threshold", int64(len(data)), Request{}},
		{"callback requested", 0, Request{CallbackURL: "https://example.com/done"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newServiceEnv(testConfiguration(nil), tt.threshold)

			req := tt.req
			req.OrganizationID = uuid.New()
			req.FileData = data

			res, err := env.service.Submit(context.Background(), req)
			if err != nil {
				t.Fatalf("Submit: %v", err)
			}
			if res.Job.Status != StatusPending {
				t.Fatalf("status = %s, want pending", res.Job.Status)
			}
			if res.CSV != "" {
				t.Error("queued run must not return inline CSV")
			}
			if len(env.queue.tasks) != 1 {
				t.Fatalf("published tasks = %d, want 1", len(env.queue.tasks))
			}
			if env.queue.tasks[0].JobID != res.Job.ID {
				t.Error("task should reference the created job")
			}
			// The reservation is held until the worker finishes.
			if env.quota.held() != 1 {
				t.Errorf("held reservations = %d, want 1", env.quota.held())
			}
		})
	}
}

func TestSubmitQueuedWithoutQueue(t *testing.T) {
	cfg := testConfiguration(nil)
	env := newServiceEnv(cfg, 0)
	service := NewService(env.configs, env.jobs, env.artifacts, env.quota, nil, 0)

	_, err := service.Submit(context.Background(), Request{
		OrganizationID: uuid.New(),
		FileData:       smallWorkbook(t),
		Async:          true,
	})
	if !errors.Is(err, ErrQueueUnavailable) {
		t.Fatalf("err = %v, want ErrQueueUnavailable", err)
	}
	if env.quota.held() != 0 {
		t.Error("reservation must be released when queueing is impossible")
	}
}

func TestSubmitPublishFailure(t *testing.T) {
	env := newServiceEnv(testConfiguration(nil), 0)
	env.queue.err = errors.New("broker down")

	res, err := env.service.Submit(context.Background(), Request{
		OrganizationID: uuid.New(),
		FileData:       smallWorkbook(t),
		Async:          true,
	})
	if err != nil {
		t.Fatalf("publish failures surface on the job, not as errors: %v", err)
	}
	if res.Job.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", res.Job.Status)
	}
	if env.quota.held() != 0 {
		t.Error("reservation must be released after a failed publish")
	}
}

// ----------------------------------------------------------------------------
// ProcessTask
// ----------------------------------------------------------------------------

func TestProcessTask(t *testing.T) {
	env := newServiceEnv(testConfiguration(nil), 0)
	orgID := uuid.New()

	res, err := env.service.Submit(context.Background(), Request{
		OrganizationID: orgID,
		FileData:       smallWorkbook(t),
		Async:          true,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	task := env.queue.tasks[0]
	if err := env.service.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("ProcessTask: %v", err)
	}

	job, err := env.service.Job(context.Background(), orgID, res.Job.ID)
	if err != nil {
		t.Fatalf("Job: %v", err)
	}
	if job.Status != StatusCompleted {
		t.Fatalf("status = %s, want completed", job.Status)
	}

	csv, err := env.service.Download(context.Background(), orgID, job.OutputRef)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if !strings.HasPrefix(csv, "Name,Amount") {
		t.Errorf("csv = %q", csv)
	}
	if env.quota.held() != 0 {
		t.Error("worker must release the reservation")
	}
}

func TestProcessTaskTerminalJobIgnored(t *testing.T) {
	env := newServiceEnv(testConfiguration(nil), 0)
	orgID := uuid.New()

	job := &Job{ID: uuid.New(), OrganizationID: orgID, Status: StatusCompleted}
	env.jobs.Create(context.Background(), job)

	err := env.service.ProcessTask(context.Background(), Task{
		JobID:          job.ID,
		OrganizationID: orgID,
		FileData:       smallWorkbook(t),
	})
	if err != nil {
		t.Fatalf("ProcessTask on terminal job: %v", err)
	}
	if env.jobs.status(job.ID) != StatusCompleted {
		t.Error("terminal job must not change")
	}
}

func TestProcessTaskUnknownJob(t *testing.T) {
	env := newServiceEnv(testConfiguration(nil), 0)

	err := env.service.ProcessTask(context.Background(), Task{
		JobID:          uuid.New(),
		OrganizationID: uuid.New(),
	})
	if err == nil {
		t.Fatal("unknown job should error so the delivery is not acked silently")
	}
}
