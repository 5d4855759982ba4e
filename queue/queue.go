// Package queue distributes asynchronous report jobs to workers.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultName is the queue report jobs are published on.
const DefaultName = "reports"

// ErrEmpty is returned by DequeueWithTimeout when no job became available.
var ErrEmpty = errors.New("queue: no job available")

// ErrClosed is returned by operations on a closed queue.
var ErrClosed = errors.New("queue: closed")

// JobKind names the work a job carries.
type JobKind string

const (
	KindFullReport JobKind = "full_report"
)

// Job is a unit of asynchronous work.
type Job struct {
	ID          string            `json:"id"`
	Kind        JobKind           `json:"kind"`
	Payload     json.RawMessage   `json:"payload"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	EnqueueTime time.Time         `json:"enqueue_time"`
	// Attempts counts deliveries, including the current one.
	Attempts int `json:"attempts"`
}

// Queue is a work queue with at-least-once delivery.
type Queue interface {
	// Enqueue adds a job to the named queue.
	Enqueue(ctx context.Context, queueName string, job *Job) error

	// DequeueWithTimeout waits up to timeout for a job. It returns ErrEmpty
	// when none arrives in time.
	DequeueWithTimeout(ctx context.Context, queueName string, timeout time.Duration) (*Job, error)

	// Ack marks a delivered job as done.
	Ack(ctx context.Context, queueName string, jobID string) error

	// Nack gives a delivered job back; with requeue it becomes visible again.
	Nack(ctx context.Context, queueName string, jobID string, requeue bool) error

	// Len returns the number of jobs waiting for delivery.
	Len(ctx context.Context, queueName string) (int, error)

	Close() error
}

// NewJob creates a job with a fresh id and the JSON encoding of payload.
func NewJob(kind JobKind, payload any) (*Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	return &Job{
		ID:          uuid.NewString(),
		Kind:        kind,
		Payload:     raw,
		Metadata:    make(map[string]string),
		EnqueueTime: time.Now().UTC(),
	}, nil
}

// Decode unmarshals the job payload into v.
func (j *Job) Decode(v any) error {
	if len(j.Payload) == 0 {
		return fmt.Errorf("job %s has no payload", j.ID)
	}
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return fmt.Errorf("decode job %s: %w", j.ID, err)
	}
	return nil
}
