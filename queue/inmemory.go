package queue

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// inflight tracks a delivered job and when it becomes visible again.
type inflight struct {
	job      *Job
	deadline time.Time
}

// Hooks are optional instrumentation callbacks.
type Hooks struct {
	OnEnqueue   func(queueName string, job *Job)
	OnDequeue   func(queueName string, job *Job)
	OnAck       func(queueName string, job *Job)
	OnNack      func(queueName string, job *Job, requeue bool)
	OnRedeliver func(queueName string, job *Job)
}

// Options configures the in-memory queue.
type Options struct {
	// VisibilityTimeout is how long a delivered job stays hidden before it
	// is redelivered if not Ack'ed.
	VisibilityTimeout time.Duration
	// Capacity bounds each named queue's ready buffer.
	Capacity int
	// EnableDLQ keeps jobs Nack'ed without requeue for inspection.
	EnableDLQ bool
	Hooks     Hooks
}

// InMemoryQueue is a channel-backed Queue for single-process deployments.
type InMemoryQueue struct {
	mu      sync.RWMutex
	ready   map[string]chan *Job
	pending map[string]map[string]*inflight
	dlq     map[string][]*Job
	closed  bool
	opts    Options
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewInMemoryQueue creates a queue with a 30s visibility timeout.
func NewInMemoryQueue() *InMemoryQueue {
	return NewInMemoryQueueWithOptions(Options{VisibilityTimeout: 30 * time.Second})
}

// NewInMemoryQueueWithOptions creates a queue and starts its redelivery scanner.
func NewInMemoryQueueWithOptions(opts Options) *InMemoryQueue {
	if opts.VisibilityTimeout <= 0 {
		opts.VisibilityTimeout = 30 * time.Second
	}
	if opts.Capacity <= 0 {
		opts.Capacity = 100
	}
	q := &InMemoryQueue{
		ready:   make(map[string]chan *Job),
		pending: make(map[string]map[string]*inflight),
		dlq:     make(map[string][]*Job),
		opts:    opts,
		stopCh:  make(chan struct{}),
	}
	q.wg.Add(1)
	go q.scanLoop()
	return q
}

func (q *InMemoryQueue) channel(queueName string) (chan *Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, ErrClosed
	}
	ch, ok := q.ready[queueName]
	if !ok {
		ch = make(chan *Job, q.opts.Capacity)
		q.ready[queueName] = ch
		q.pending[queueName] = make(map[string]*inflight)
	}
	return ch, nil
}

// Enqueue implements Queue. It blocks while the named queue is full.
func (q *InMemoryQueue) Enqueue(ctx context.Context, queueName string, job *Job) error {
	if job == nil {
		return fmt.Errorf("enqueue: nil job")
	}
	ch, err := q.channel(queueName)
	if err != nil {
		return err
	}
	select {
	case ch <- job:
		if q.opts.Hooks.OnEnqueue != nil {
			q.opts.Hooks.OnEnqueue(queueName, job)
		}
		return nil
	case <-q.stopCh:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DequeueWithTimeout implements Queue. A zero timeout waits on ctx only.
func (q *InMemoryQueue) DequeueWithTimeout(ctx context.Context, queueName string, timeout time.Duration) (*Job, error) {
	ch, err := q.channel(queueName)
	if err != nil {
		return nil, err
	}
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case job := <-ch:
		job.Attempts++
		q.mu.Lock()
		if p, ok := q.pending[queueName]; ok {
			p[job.ID] = &inflight{job: job, deadline: time.Now().Add(q.opts.VisibilityTimeout)}
		}
		q.mu.Unlock()
		if q.opts.Hooks.OnDequeue != nil {
			q.opts.Hooks.OnDequeue(queueName, job)
		}
		return job, nil
	case <-expired:
		return nil, ErrEmpty
	case <-q.stopCh:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *InMemoryQueue) take(queueName, jobID string) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	rec, ok := q.pending[queueName][jobID]
	if !ok {
		return nil, fmt.Errorf("job %s is not in flight on %q", jobID, queueName)
	}
	delete(q.pending[queueName], jobID)
	return rec.job, nil
}

// Ack implements Queue.
func (q *InMemoryQueue) Ack(ctx context.Context, queueName string, jobID string) error {
	job, err := q.take(queueName, jobID)
	if err != nil {
		return err
	}
	if q.opts.Hooks.OnAck != nil {
		q.opts.Hooks.OnAck(queueName, job)
	}
	return nil
}

// Nack implements Queue.
func (q *InMemoryQueue) Nack(ctx context.Context, queueName string, jobID string, requeue bool) error {
	job, err := q.take(queueName, jobID)
	if err != nil {
		return err
	}
	if q.opts.Hooks.OnNack != nil {
		q.opts.Hooks.OnNack(queueName, job, requeue)
	}
	if requeue {
		return q.Enqueue(ctx, queueName, job)
	}
	if q.opts.EnableDLQ {
		q.mu.Lock()
		q.dlq[queueName] = append(q.dlq[queueName], job)
		q.mu.Unlock()
	}
	return nil
}

// DeadLetters returns the jobs dropped from queueName when the DLQ is enabled.
func (q *InMemoryQueue) DeadLetters(queueName string) []*Job {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return append([]*Job(nil), q.dlq[queueName]...)
}

// Len implements Queue. In-flight jobs are not counted.
func (q *InMemoryQueue) Len(ctx context.Context, queueName string) (int, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.ready[queueName]), nil
}

// Close implements Queue. Blocked consumers receive ErrClosed.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.stopCh)
	q.mu.Unlock()

	q.wg.Wait()
	return nil
}

func (q *InMemoryQueue) scanLoop() {
	defer q.wg.Done()
	t := time.NewTicker(100 * time.Millisecond)
	defer t.Stop()
	for {
		select {
		case <-q.stopCh:
			return
		case now := <-t.C:
			q.redeliverExpired(now)
		}
	}
}

// redeliverExpired moves jobs whose visibility deadline passed back to ready.
func (q *InMemoryQueue) redeliverExpired(now time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for queueName, p := range q.pending {
		ch := q.ready[queueName]
		for id, rec := range p {
			if !now.After(rec.deadline) {
				continue
			}
			select {
			case ch <- rec.job:
				delete(p, id)
				if q.opts.Hooks.OnRedeliver != nil {
					q.opts.Hooks.OnRedeliver(queueName, rec.job)
				}
			default:
				// full; retry on a later tick
				rec.deadline = now.Add(100 * time.Millisecond)
			}
		}
	}
}
