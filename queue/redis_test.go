package queue

import (
	"context"
	"errors"
	"os"
	"strconv"
	"testing"
	"time"
)

func newRedisQueue(t *testing.T) *RedisQueue {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set; skipping Redis queue tests")
	}
	q, err := NewRedisQueue(RedisConfig{
		Addr:              addr,
		Namespace:         "sentiant-test-" + strconv.FormatInt(time.Now().UnixNano(), 10),
		VisibilityTimeout: 200 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new redis queue: %v", err)
	}
	t.Cleanup(func() { _ = q.Close() })
	return q
}

func TestRedisQueue_AckNack(t *testing.T) {
	q := newRedisQueue(t)
	ctx := context.Background()
	job := newJob(t, "redis")
	if err := q.Enqueue(ctx, DefaultName, job); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	got, err := q.DequeueWithTimeout(ctx, DefaultName, time.Second)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if got.ID != job.ID || got.Attempts != 1 {
		t.Fatalf("got %s/%d", got.ID, got.Attempts)
	}
	if err := q.Nack(ctx, DefaultName, got.ID, true); err != nil {
		t.Fatalf("nack: %v", err)
	}
	again, err := q.DequeueWithTimeout(ctx, DefaultName, time.Second)
	if err != nil {
		t.Fatalf("dequeue again: %v", err)
	}
	if again.Attempts != 2 {
		t.Fatalf("want attempts=2 got %d", again.Attempts)
	}
	if err := q.Ack(ctx, DefaultName, again.ID); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if err := q.Ack(ctx, DefaultName, again.ID); err == nil {
		t.Fatal("expected error acking twice")
	}
	if _, err := q.DequeueWithTimeout(ctx, DefaultName, time.Second); !errors.Is(err, ErrEmpty) {
		t.Fatalf("want ErrEmpty, got %v", err)
	}
}

func TestRedisQueue_RedeliversExpired(t *testing.T) {
	q := newRedisQueue(t)
	ctx := context.Background()
	_ = q.Enqueue(ctx, DefaultName, newJob(t, "redis"))
	if _, err := q.DequeueWithTimeout(ctx, DefaultName, time.Second); err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	time.Sleep(300 * time.Millisecond)
	got, err := q.DequeueWithTimeout(ctx, DefaultName, time.Second)
	if err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if got.Attempts != 2 {
		t.Fatalf("want attempts=2 got %d", got.Attempts)
	}
}
