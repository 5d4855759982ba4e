package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/KamdynS/sentiant/llm"
	"github.com/KamdynS/sentiant/queue"
	"github.com/KamdynS/sentiant/report"
	"github.com/KamdynS/sentiant/state"
)

type runnerFunc func(ctx context.Context, req report.FullReportRequest) (report.FullReport, error)

func (f runnerFunc) FullReport(ctx context.Context, req report.FullReportRequest) (report.FullReport, error) {
	return f(ctx, req)
}

func newWorker(t *testing.T, q queue.Queue, st state.Store, r Runner) *Worker {
	t.Helper()
	w, err := New(Config{
		Queue:         q,
		Runner:        r,
		StateStore:    st,
		MaxConcurrent: 1,
		PollInterval:  20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("failed to create worker: %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("failed to start worker: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = w.Stop(ctx)
	})
	return w
}

func enqueue(t *testing.T, q queue.Queue, req report.FullReportRequest) *queue.Job {
	t.Helper()
	job, err := queue.NewJob(queue.KindFullReport, req)
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	if err := q.Enqueue(context.Background(), queue.DefaultName, job); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	return job
}

func waitFor(t *testing.T, st state.Store, id string, want state.JobStatus) *state.JobState {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		js, err := st.GetJob(context.Background(), id)
		if err == nil && js.Status == want {
			return js
		}
		time.Sleep(10 * time.Millisecond)
	}
	js, _ := st.GetJob(context.Background(), id)
	t.Fatalf("job %s never reached %s (last: %+v)", id, want, js)
	return nil
}

func TestNew_Validates(t *testing.T) {
	q := queue.NewInMemoryQueue()
	defer q.Close()
	if _, err := New(Config{Runner: runnerFunc(nil), StateStore: state.NewInMemoryStore()}); err == nil {
		t.Fatal("expected error without queue")
	}
	if _, err := New(Config{Queue: q, StateStore: state.NewInMemoryStore()}); err == nil {
		t.Fatal("expected error without runner")
	}
	w, err := New(Config{Queue: q, Runner: runnerFunc(nil), StateStore: state.NewInMemoryStore()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w.queueName != queue.DefaultName || w.maxAttempts != 3 {
		t.Errorf("defaults not applied: queue=%s attempts=%d", w.queueName, w.maxAttempts)
	}
}

func TestWorker_CompletesJob(t *testing.T) {
	q := queue.NewInMemoryQueue()
	defer q.Close()
	st := state.NewInMemoryStore()
	newWorker(t, q, st, runnerFunc(func(_ context.Context, req report.FullReportRequest) (report.FullReport, error) {
		return report.FullReport{Report: "about " + req.Topic, AnalyzedComments: []report.ScoredItem{}}, nil
	}))

	job := enqueue(t, q, report.FullReportRequest{Topic: "golang"})
	js := waitFor(t, st, job.ID, state.StatusCompleted)

	if js.Topic != "golang" || js.Attempts != 1 || js.CompletedAt == nil {
		t.Errorf("unexpected state: %+v", js)
	}
	var out report.FullReport
	if err := json.Unmarshal(js.Result, &out); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if out.Report != "about golang" {
		t.Errorf("unexpected report %q", out.Report)
	}
}

func TestWorker_RetriesTransientThenSucceeds(t *testing.T) {
	q := queue.NewInMemoryQueue()
	defer q.Close()
	st := state.NewInMemoryStore()
	var calls atomic.Int32
	newWorker(t, q, st, runnerFunc(func(context.Context, report.FullReportRequest) (report.FullReport, error) {
		if calls.Add(1) < 3 {
			return report.FullReport{}, &llm.ExhaustionError{Reason: llm.ReasonModelsExhausted}
		}
		return report.FullReport{Report: "ok"}, nil
	}))

	job := enqueue(t, q, report.FullReportRequest{Topic: "x"})
	js := waitFor(t, st, job.ID, state.StatusCompleted)
	if js.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", js.Attempts)
	}
}

func TestWorker_FailsAfterMaxAttempts(t *testing.T) {
	q := queue.NewInMemoryQueueWithOptions(queue.Options{EnableDLQ: true})
	defer q.Close()
	st := state.NewInMemoryStore()
	var calls atomic.Int32
	newWorker(t, q, st, runnerFunc(func(context.Context, report.FullReportRequest) (report.FullReport, error) {
		calls.Add(1)
		return report.FullReport{}, errors.New("upstream timeout")
	}))

	job := enqueue(t, q, report.FullReportRequest{Topic: "x"})
	js := waitFor(t, st, job.ID, state.StatusFailed)
	if js.Error != "upstream timeout" {
		t.Errorf("unexpected error %q", js.Error)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("expected 3 runs, got %d", got)
	}
	if n := len(q.DeadLetters(queue.DefaultName)); n != 1 {
		t.Errorf("expected job in DLQ, got %d", n)
	}
}

func TestWorker_PermanentErrorsAreNotRetried(t *testing.T) {
	q := queue.NewInMemoryQueue()
	defer q.Close()
	st := state.NewInMemoryStore()
	var calls atomic.Int32
	newWorker(t, q, st, runnerFunc(func(context.Context, report.FullReportRequest) (report.FullReport, error) {
		calls.Add(1)
		return report.FullReport{}, &llm.ProviderError{Provider: "gemini", StatusCode: 401, Message: "bad key"}
	}))

	job := enqueue(t, q, report.FullReportRequest{Topic: "x"})
	waitFor(t, st, job.ID, state.StatusFailed)
	if got := calls.Load(); got != 1 {
		t.Errorf("expected a single run, got %d", got)
	}
}

func TestWorker_UnknownKindFails(t *testing.T) {
	q := queue.NewInMemoryQueue()
	defer q.Close()
	st := state.NewInMemoryStore()
	newWorker(t, q, st, runnerFunc(func(context.Context, report.FullReportRequest) (report.FullReport, error) {
		t.Error("runner must not be called")
		return report.FullReport{}, nil
	}))

	job := &queue.Job{ID: "odd", Kind: "resize_image", Payload: json.RawMessage(`{}`)}
	if err := q.Enqueue(context.Background(), queue.DefaultName, job); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	js := waitFor(t, st, "odd", state.StatusFailed)
	if js.Error == "" {
		t.Error("expected an error message")
	}
}

func TestWorker_SkipsAlreadyCompleted(t *testing.T) {
	q := queue.NewInMemoryQueue()
	defer q.Close()
	st := state.NewInMemoryStore()

	job, _ := queue.NewJob(queue.KindFullReport, report.FullReportRequest{Topic: "x"})
	done := state.NewJobState(job.ID, "x", time.Now())
	_ = done.MarkCompleted(map[string]string{"report": "cached"}, time.Now())
	_ = st.SaveJob(context.Background(), done)

	var calls atomic.Int32
	newWorker(t, q, st, runnerFunc(func(context.Context, report.FullReportRequest) (report.FullReport, error) {
		calls.Add(1)
		return report.FullReport{}, nil
	}))
	_ = q.Enqueue(context.Background(), queue.DefaultName, job)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if n, _ := q.Len(context.Background(), queue.DefaultName); n == 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	if calls.Load() != 0 {
		t.Error("completed job was run again")
	}
}

func TestWorker_StartTwice(t *testing.T) {
	q := queue.NewInMemoryQueue()
	defer q.Close()
	w := newWorker(t, q, state.NewInMemoryStore(), runnerFunc(nil))
	if err := w.Start(context.Background()); err == nil {
		t.Error("expected error on second start")
	}
}
