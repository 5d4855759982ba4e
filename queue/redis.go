package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisQueue is a LIST-backed Queue shared across processes.
//
// Ready jobs live in a list (LPUSH/BRPOP). Delivered jobs are parked in a
// hash keyed by id, with their visibility deadlines in a sorted set, until
// they are Ack'ed, Nack'ed, or found expired on a later dequeue.
type RedisQueue struct {
	rdb        redis.UniversalClient
	ns         string
	popTO      time.Duration
	visibility time.Duration
	ownsClient bool
}

// RedisConfig configures a RedisQueue that owns its client.
type RedisConfig struct {
	Addr              string
	Username          string
	Password          string
	DB                int
	Namespace         string
	PopTimeout        time.Duration
	VisibilityTimeout time.Duration
}

// NewRedisQueue dials Redis and creates a queue.
func NewRedisQueue(cfg RedisConfig) (*RedisQueue, error) {
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Addr, Username: cfg.Username, Password: cfg.Password, DB: cfg.DB})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	q := NewRedisQueueFromClient(rdb, cfg.Namespace, cfg.PopTimeout, cfg.VisibilityTimeout)
	q.ownsClient = true
	return q, nil
}

// NewRedisQueueFromClient wraps a caller-managed client; Close leaves it open.
func NewRedisQueueFromClient(rdb redis.UniversalClient, namespace string, popTimeout, visibility time.Duration) *RedisQueue {
	if namespace == "" {
		namespace = "sentiant"
	}
	if popTimeout <= 0 {
		popTimeout = 5 * time.Second
	}
	if visibility <= 0 {
		visibility = 5 * time.Minute
	}
	return &RedisQueue{rdb: rdb, ns: namespace, popTO: popTimeout, visibility: visibility}
}

func (q *RedisQueue) keyReady(name string) string { return fmt.Sprintf("%s:queue:%s", q.ns, name) }
func (q *RedisQueue) keyInflight(name string) string {
	return fmt.Sprintf("%s:inflight:%s", q.ns, name)
}
func (q *RedisQueue) keyDeadlines(name string) string {
	return fmt.Sprintf("%s:deadlines:%s", q.ns, name)
}
func (q *RedisQueue) keyDead(name string) string { return fmt.Sprintf("%s:dead:%s", q.ns, name) }

// Enqueue implements Queue.
func (q *RedisQueue) Enqueue(ctx context.Context, queueName string, job *Job) error {
	if job == nil {
		return fmt.Errorf("enqueue: nil job")
	}
	b, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.rdb.LPush(ctx, q.keyReady(queueName), b).Err(); err != nil {
		return fmt.Errorf("redis lpush: %w", err)
	}
	return nil
}

// DequeueWithTimeout implements Queue.
func (q *RedisQueue) DequeueWithTimeout(ctx context.Context, queueName string, timeout time.Duration) (*Job, error) {
	if timeout <= 0 {
		timeout = q.popTO
	}
	if _, err := q.RedeliverExpired(ctx, queueName); err != nil {
		return nil, err
	}
	res, err := q.rdb.BRPop(ctx, timeout, q.keyReady(queueName)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("redis brpop: %w", err)
	}
	if len(res) != 2 {
		return nil, fmt.Errorf("unexpected BRPOP reply of %d elements", len(res))
	}
	var job Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}
	job.Attempts++
	b, err := json.Marshal(&job)
	if err != nil {
		return nil, fmt.Errorf("marshal job: %w", err)
	}
	deadline := time.Now().Add(q.visibility)
	_, err = q.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, q.keyInflight(queueName), job.ID, b)
		p.ZAdd(ctx, q.keyDeadlines(queueName), redis.Z{Score: float64(deadline.UnixMilli()), Member: job.ID})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis park inflight: %w", err)
	}
	return &job, nil
}

// Ack implements Queue.
func (q *RedisQueue) Ack(ctx context.Context, queueName string, jobID string) error {
	var del *redis.IntCmd
	_, err := q.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		del = p.HDel(ctx, q.keyInflight(queueName), jobID)
		p.ZRem(ctx, q.keyDeadlines(queueName), jobID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis ack: %w", err)
	}
	if del.Val() == 0 {
		return fmt.Errorf("job %s is not in flight on %q", jobID, queueName)
	}
	return nil
}

// Nack implements Queue. Jobs dropped without requeue go to a dead list.
func (q *RedisQueue) Nack(ctx context.Context, queueName string, jobID string, requeue bool) error {
	payload, err := q.rdb.HGet(ctx, q.keyInflight(queueName), jobID).Result()
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("job %s is not in flight on %q", jobID, queueName)
	}
	if err != nil {
		return fmt.Errorf("redis hget: %w", err)
	}
	dest := q.keyDead(queueName)
	if requeue {
		dest = q.keyReady(queueName)
	}
	_, err = q.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HDel(ctx, q.keyInflight(queueName), jobID)
		p.ZRem(ctx, q.keyDeadlines(queueName), jobID)
		p.LPush(ctx, dest, payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis nack: %w", err)
	}
	return nil
}

// RedeliverExpired returns in-flight jobs past their deadline to the ready list.
func (q *RedisQueue) RedeliverExpired(ctx context.Context, queueName string) (int, error) {
	now := fmt.Sprintf("%d", time.Now().UnixMilli())
	ids, err := q.rdb.ZRangeByScore(ctx, q.keyDeadlines(queueName), &redis.ZRangeBy{Min: "-inf", Max: now}).Result()
	if err != nil {
		return 0, fmt.Errorf("redis zrangebyscore: %w", err)
	}
	moved := 0
	for _, id := range ids {
		if err := q.Nack(ctx, queueName, id, true); err != nil {
			// raced with an Ack; drop the stale deadline
			_ = q.rdb.ZRem(ctx, q.keyDeadlines(queueName), id).Err()
			continue
		}
		moved++
	}
	return moved, nil
}

// Len implements Queue.
func (q *RedisQueue) Len(ctx context.Context, queueName string) (int, error) {
	n, err := q.rdb.LLen(ctx, q.keyReady(queueName)).Result()
	return int(n), err
}

// Close implements Queue.
func (q *RedisQueue) Close() error {
	if q.ownsClient {
		return q.rdb.Close()
	}
	return nil
}
