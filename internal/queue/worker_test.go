package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/rowforge/rowforge/internal/conversion"
)

// ackRecorder stands in for the broker channel and records how a delivery
// was settled.
type ackRecorder struct {
	acked   bool
	nacked  bool
	requeue bool
}

func (a *ackRecorder) Ack(tag uint64, multiple bool) error { a.acked = true; return nil }

func (a *ackRecorder) Nack(tag uint64, multiple, requeue bool) error {
	a.nacked = true
	a.requeue = requeue
	return nil
}

func (a *ackRecorder) Reject(tag uint64, requeue bool) error { return nil }

type stubConfigs struct{}

func (stubConfigs) Get(ctx context.Context, orgID, configID uuid.UUID) (*conversion.Configuration, error) {
	return nil, errors.New("not used")
}

type stubJobs struct {
	job *conversion.Job
	err error
}

func (s stubJobs) Create(ctx context.Context, job *conversion.Job) error { return nil }

func (s stubJobs) Get(ctx context.Context, orgID, jobID uuid.UUID) (*conversion.Job, error) {
	return s.job, s.err
}

func (s stubJobs) MarkProcessing(ctx context.Context, jobID uuid.UUID) error { return nil }

func (s stubJobs) MarkCompleted(ctx context.Context, jobID uuid.UUID, outputRef string, log *conversion.ExecutionLog) error {
	return nil
}

func (s stubJobs) MarkFailed(ctx context.Context, jobID uuid.UUID, errMsg string, log *conversion.ExecutionLog) error {
	return nil
}

type stubArtifacts struct{}

func (stubArtifacts) Save(ctx context.Context, jobID uuid.UUID, csv string) (string, error) {
	return "", errors.New("not used")
}

func (stubArtifacts) Open(ctx context.Context, orgID uuid.UUID, ref string) (string, error) {
	return "", errors.New("not used")
}

type stubQuota struct{}

func (stubQuota) CheckAndReserve(ctx context.Context, orgID uuid.UUID, fileSize int64) error {
	return nil
}

func (stubQuota) Release(ctx context.Context, orgID uuid.UUID) error { return nil }

func (stubQuota) AddUsage(ctx context.Context, orgID uuid.UUID, rows int, bytes int64) error {
	return nil
}

func workerWith(jobs conversion.JobStore) *Worker {
	svc := conversion.NewService(stubConfigs{}, jobs, stubArtifacts{}, stubQuota{}, nil, 0)
	return &Worker{service: svc}
}

func taskBody(t *testing.T) []byte {
	t.Helper()
	body, err := json.Marshal(conversion.Task{JobID: uuid.New(), OrganizationID: uuid.New()})
	if err != nil {
		t.Fatal(err)
	}
	return body
}

func TestHandleAcksSettledTask(t *testing.T) {
	w := workerWith(stubJobs{job: &conversion.Job{Status: conversion.StatusCompleted}})
	ack := &ackRecorder{}

	w.handle(context.Background(), amqp.Delivery{Acknowledger: ack, Body: taskBody(t)})

	if !ack.acked || ack.nacked {
		t.Fatalf("acked=%v nacked=%v, want ack only", ack.acked, ack.nacked)
	}
}

func TestHandleDropsUndecodableTask(t *testing.T) {
	w := workerWith(stubJobs{})
	ack := &ackRecorder{}

	w.handle(context.Background(), amqp.Delivery{Acknowledger: ack, Body: []byte("{not json")})

	if ack.acked || !ack.nacked || ack.requeue {
		t.Fatalf("acked=%v nacked=%v requeue=%v, want nack without requeue", ack.acked, ack.nacked, ack.requeue)
	}
}

// A store failure must not strand the job: the first failure requeues the
// delivery, and only a failure on the redelivered copy drops it.
func TestHandleRequeuesStoreFailureOnce(t *testing.T) {
	w := workerWith(stubJobs{err: errors.New("connection reset")})
	body := taskBody(t)

	first := &ackRecorder{}
	w.handle(context.Background(), amqp.Delivery{Acknowledger: first, Body: body})
	if !first.nacked || !first.requeue {
		t.Fatalf("nacked=%v requeue=%v, want requeue on first failure", first.nacked, first.requeue)
	}

	second := &ackRecorder{}
	w.handle(context.Background(), amqp.Delivery{Acknowledger: second, Body: body, Redelivered: true})
	if !second.nacked || second.requeue {
		t.Fatalf("nacked=%v requeue=%v, want drop after redelivery", second.nacked, second.requeue)
	}
}
