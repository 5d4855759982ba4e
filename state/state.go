// Package state tracks the lifecycle of asynchronous report jobs.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a job id is unknown.
var ErrNotFound = errors.New("job not found")

// JobStatus is the lifecycle stage of a job.
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
)

// IsTerminal reports whether no further transitions happen.
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// JobState is the externally visible record of a report job.
type JobState struct {
	ID          string          `json:"id"`
	Topic       string          `json:"topic"`
	Status      JobStatus       `json:"status"`
	Attempts    int             `json:"attempts"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// Store persists job states.
type Store interface {
	SaveJob(ctx context.Context, st *JobState) error
	// GetJob returns ErrNotFound for unknown ids.
	GetJob(ctx context.Context, id string) (*JobState, error)
	// ListJobs returns jobs with the given status, or all when status is empty.
	ListJobs(ctx context.Context, status JobStatus) ([]*JobState, error)
}

// NewJobState returns a pending job.
func NewJobState(id, topic string, now time.Time) *JobState {
	return &JobState{ID: id, Topic: topic, Status: StatusPending, CreatedAt: now, UpdatedAt: now}
}

// MarkRunning records a delivery attempt.
func (s *JobState) MarkRunning(attempt int, now time.Time) {
	s.Status = StatusRunning
	s.Attempts = attempt
	s.Error = ""
	s.UpdatedAt = now
}

// MarkCompleted stores the JSON encoding of result.
func (s *JobState) MarkCompleted(result any, now time.Time) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return err
	}
	s.Status = StatusCompleted
	s.Result = raw
	s.Error = ""
	s.UpdatedAt = now
	s.CompletedAt = &now
	return nil
}

// MarkFailed records a terminal failure.
func (s *JobState) MarkFailed(cause error, now time.Time) {
	s.Status = StatusFailed
	if cause != nil {
		s.Error = cause.Error()
	}
	s.UpdatedAt = now
	s.CompletedAt = &now
}

// MarkRetrying puts a job back to pending after a retryable failure.
func (s *JobState) MarkRetrying(cause error, now time.Time) {
	s.Status = StatusPending
	if cause != nil {
		s.Error = cause.Error()
	}
	s.UpdatedAt = now
}
