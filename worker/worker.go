// Package worker runs queued report jobs on a pool of goroutines.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/KamdynS/sentiant/llm"
	"github.com/KamdynS/sentiant/queue"
	"github.com/KamdynS/sentiant/report"
	"github.com/KamdynS/sentiant/state"
)

// Runner produces a full report.
type Runner interface {
	FullReport(ctx context.Context, req report.FullReportRequest) (report.FullReport, error)
}

// Worker polls jobs from a queue and runs them.
type Worker struct {
	id            string
	queue         queue.Queue
	queueName     string
	runner        Runner
	stateStore    state.Store
	pollInterval  time.Duration
	maxConcurrent int
	maxAttempts   int
	jobTimeout    time.Duration
	log           *zap.Logger
	now           func() time.Time

	stopCh  chan struct{}
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

// Config holds worker configuration.
type Config struct {
	ID            string
	Queue         queue.Queue
	QueueName     string
	Runner        Runner
	StateStore    state.Store
	PollInterval  time.Duration
	MaxConcurrent int
	// MaxAttempts is the number of deliveries before a job is failed.
	MaxAttempts int
	JobTimeout  time.Duration
	Logger      *zap.Logger
}

// DefaultConfig returns a default worker configuration.
func DefaultConfig() Config {
	return Config{
		ID:            fmt.Sprintf("worker-%d", time.Now().UnixNano()),
		QueueName:     queue.DefaultName,
		PollInterval:  time.Second,
		MaxConcurrent: 2,
		MaxAttempts:   3,
		JobTimeout:    5 * time.Minute,
	}
}

// New creates a worker.
func New(cfg Config) (*Worker, error) {
	if cfg.Queue == nil {
		return nil, fmt.Errorf("queue is required")
	}
	if cfg.Runner == nil {
		return nil, fmt.Errorf("report runner is required")
	}
	if cfg.StateStore == nil {
		return nil, fmt.Errorf("state store is required")
	}
	def := DefaultConfig()
	if cfg.QueueName == "" {
		cfg.QueueName = def.QueueName
	}
	if cfg.ID == "" {
		cfg.ID = def.ID
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = def.JobTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Worker{
		id:            cfg.ID,
		queue:         cfg.Queue,
		queueName:     cfg.QueueName,
		runner:        cfg.Runner,
		stateStore:    cfg.StateStore,
		pollInterval:  cfg.PollInterval,
		maxConcurrent: cfg.MaxConcurrent,
		maxAttempts:   cfg.MaxAttempts,
		jobTimeout:    cfg.JobTimeout,
		log:           cfg.Logger.With(zap.String("worker", cfg.ID), zap.String("queue", cfg.QueueName)),
		now:           func() time.Time { return time.Now().UTC() },
		stopCh:        make(chan struct{}),
	}, nil
}

// Start begins polling.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("worker already running")
	}
	w.running = true
	w.mu.Unlock()

	w.log.Info("worker starting", zap.Int("concurrency", w.maxConcurrent))
	for i := 0; i < w.maxConcurrent; i++ {
		w.wg.Add(1)
		go w.pollLoop(ctx, i)
	}
	return nil
}

// Stop waits for in-flight jobs to finish or ctx to expire.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.log.Info("worker stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("worker stop timeout: %w", ctx.Err())
	}
}

func (w *Worker) pollLoop(ctx context.Context, slot int) {
	defer w.wg.Done()
	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		default:
			w.pollOnce(ctx, slot)
		}
	}
}

func (w *Worker) pollOnce(ctx context.Context, slot int) {
	job, err := w.queue.DequeueWithTimeout(ctx, w.queueName, w.pollInterval)
	if err != nil {
		if !errors.Is(err, queue.ErrEmpty) && ctx.Err() == nil {
			w.log.Warn("dequeue failed", zap.Error(err))
			// avoid spinning on a broken backend
			select {
			case <-time.After(w.pollInterval):
			case <-w.stopCh:
			case <-ctx.Done():
			}
		}
		return
	}
	if job == nil {
		return
	}
	w.handle(ctx, slot, job)
}

// errPermanent marks failures that a redelivery cannot fix.
var errPermanent = errors.New("permanent job failure")

func (w *Worker) handle(ctx context.Context, slot int, job *queue.Job) {
	log := w.log.With(zap.Int("slot", slot), zap.String("job_id", job.ID), zap.Int("attempt", job.Attempts))
	start := time.Now()

	var req report.FullReportRequest
	st, err := w.loadState(ctx, job)
	if err != nil {
		log.Error("load job state", zap.Error(err))
		w.nack(ctx, log, job, true)
		return
	}
	if st.Status == state.StatusCompleted {
		// redelivered after a completed run whose ack was lost
		w.ack(ctx, log, job)
		return
	}

	err = w.decode(job, &req)
	if err == nil {
		st.Topic = req.Topic
		st.MarkRunning(job.Attempts, w.now())
		w.save(ctx, log, st)
		err = w.run(ctx, req, st)
	}

	if err == nil {
		log.Info("job completed", zap.Duration("duration", time.Since(start)))
		w.save(ctx, log, st)
		w.ack(ctx, log, job)
		return
	}

	if ctx.Err() != nil {
		// shutting down; leave the job for redelivery
		st.MarkRetrying(err, w.now())
		w.save(context.WithoutCancel(ctx), log, st)
		w.nack(context.WithoutCancel(ctx), log, job, true)
		return
	}

	retry := !isPermanent(err) && job.Attempts < w.maxAttempts
	if retry {
		log.Warn("job failed, requeueing", zap.Error(err))
		st.MarkRetrying(err, w.now())
	} else {
		log.Error("job failed", zap.Error(err), zap.Duration("duration", time.Since(start)))
		st.MarkFailed(err, w.now())
	}
	w.save(ctx, log, st)
	w.nack(ctx, log, job, retry)
}

func (w *Worker) decode(job *queue.Job, req *report.FullReportRequest) error {
	if job.Kind != queue.KindFullReport {
		return fmt.Errorf("%w: unknown job kind %q", errPermanent, job.Kind)
	}
	if err := job.Decode(req); err != nil {
		return fmt.Errorf("%w: %v", errPermanent, err)
	}
	return nil
}

func (w *Worker) run(ctx context.Context, req report.FullReportRequest, st *state.JobState) error {
	runCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()
	out, err := w.runner.FullReport(runCtx, req)
	if err != nil {
		return err
	}
	return st.MarkCompleted(out, w.now())
}

func (w *Worker) loadState(ctx context.Context, job *queue.Job) (*state.JobState, error) {
	st, err := w.stateStore.GetJob(ctx, job.ID)
	if errors.Is(err, state.ErrNotFound) {
		return state.NewJobState(job.ID, "", w.now()), nil
	}
	return st, err
}

func (w *Worker) save(ctx context.Context, log *zap.Logger, st *state.JobState) {
	if err := w.stateStore.SaveJob(ctx, st); err != nil {
		log.Error("save job state", zap.Error(err))
	}
}

func (w *Worker) ack(ctx context.Context, log *zap.Logger, job *queue.Job) {
	if err := w.queue.Ack(ctx, w.queueName, job.ID); err != nil {
		log.Error("ack job", zap.Error(err))
	}
}

func (w *Worker) nack(ctx context.Context, log *zap.Logger, job *queue.Job, requeue bool) {
	if err := w.queue.Nack(ctx, w.queueName, job.ID, requeue); err != nil {
		log.Error("nack job", zap.Error(err), zap.Bool("requeue", requeue))
	}
}

func isPermanent(err error) bool {
	return errors.Is(err, errPermanent) ||
		errors.Is(err, report.ErrInvalidRequest) ||
		errors.Is(err, llm.ErrFatal) ||
		errors.Is(err, llm.ErrFormat)
}
