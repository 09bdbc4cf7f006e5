// Package conversion provides the business logic for running transformation
// configurations against uploaded workbooks: admission, quota, the job
// lifecycle, and the synchronous and queued execution paths. This package has
// no HTTP dependencies and can be driven by any frontend or worker.
package conversion

import (
	"time"

	"github.com/google/uuid"
)

// Status is a job's lifecycle state. Transitions are one-directional:
//
//	pending -> processing -> completed
//	pending -> processing -> failed
//
// Synchronous runs start directly in processing, skipping pending. A terminal
// state is never re-entered or reversed.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// validTransitions encodes the monotonic state machine above.
var validTransitions = map[Status][]Status{
	StatusPending:    {StatusProcessing},
	StatusProcessing: {StatusCompleted, StatusFailed},
	StatusCompleted:  {},
	StatusFailed:     {},
}

// CanTransition reports whether moving from s to next is legal.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status is completed or failed.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job is one tracked invocation of the pipeline against a specific file.
// A job is created once per invocation and never reused.
type Job struct {
	ID              uuid.UUID  `json:"id"`
	OrganizationID  uuid.UUID  `json:"organizationId"`
	ConfigurationID uuid.UUID  `json:"configurationId"`
	Status          Status     `json:"status"`
	FileName        string     `json:"fileName,omitempty"`
	StartedAt       *time.Time `json:"startedAt,omitempty"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
	ErrorMessage    string     `json:"errorMessage,omitempty"`
	OutputRef       string     `json:"outputRef,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// ExecutionLog is the ordered record of what a run actually did, stored with
// the job and returned to callers alongside every result.
type ExecutionLog struct {
	Applied  []string `json:"applied"`
	Warnings []string `json:"warnings"`
	Notify   bool     `json:"notify,omitempty"`
}
