package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/KamdynS/sentiant/state"
)

var _ state.Store = (*JobStore)(nil)

var allStatuses = []state.JobStatus{
	state.StatusPending, state.StatusRunning, state.StatusCompleted, state.StatusFailed,
}

// JobStore persists report job state as JSON strings with per-status
// index sets.
type JobStore struct {
	c   *Client
	ttl time.Duration
}

// NewJobStore creates a job store. Job records expire after ttl; zero keeps
// them forever.
func NewJobStore(c *Client, ttl time.Duration) *JobStore {
	return &JobStore{c: c, ttl: ttl}
}

func (s *JobStore) jobKey(id string) string             { return s.c.key("job", id) }
func (s *JobStore) statusKey(st state.JobStatus) string { return s.c.key("idx", "status", string(st)) }

// SaveJob implements state.Store.
func (s *JobStore) SaveJob(ctx context.Context, st *state.JobState) error {
	var prev *state.JobStatus
	old, err := s.c.rdb.Get(ctx, s.jobKey(st.ID)).Bytes()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis get job: %w", err)
	}
	if len(old) > 0 {
		var o state.JobState
		if json.Unmarshal(old, &o) == nil {
			prev = &o.Status
		}
	}
	b, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal job state: %w", err)
	}
	pipe := s.c.rdb.TxPipeline()
	pipe.Set(ctx, s.jobKey(st.ID), b, s.ttl)
	if prev != nil && *prev != st.Status {
		pipe.SRem(ctx, s.statusKey(*prev), st.ID)
	}
	pipe.SAdd(ctx, s.statusKey(st.Status), st.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis save job: %w", err)
	}
	return nil
}

// GetJob implements state.Store.
func (s *JobStore) GetJob(ctx context.Context, id string) (*state.JobState, error) {
	v, err := s.c.rdb.Get(ctx, s.jobKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, state.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get job: %w", err)
	}
	var st state.JobState
	if err := json.Unmarshal(v, &st); err != nil {
		return nil, fmt.Errorf("unmarshal job state: %w", err)
	}
	return &st, nil
}

// ListJobs implements state.Store. Ids whose records expired are pruned
// from the index.
func (s *JobStore) ListJobs(ctx context.Context, status state.JobStatus) ([]*state.JobState, error) {
	statuses := allStatuses
	if status != "" {
		statuses = []state.JobStatus{status}
	}
	var out []*state.JobState
	for _, st := range statuses {
		ids, err := s.c.rdb.SMembers(ctx, s.statusKey(st)).Result()
		if err != nil {
			return nil, fmt.Errorf("redis smembers %s: %w", st, err)
		}
		if len(ids) == 0 {
			continue
		}
		keys := make([]string, len(ids))
		for i, id := range ids {
			keys[i] = s.jobKey(id)
		}
		vals, err := s.c.rdb.MGet(ctx, keys...).Result()
		if err != nil {
			return nil, fmt.Errorf("redis mget jobs: %w", err)
		}
		var stale []any
		for i, v := range vals {
			raw, ok := v.(string)
			if !ok {
				stale = append(stale, ids[i])
				continue
			}
			var js state.JobState
			if json.Unmarshal([]byte(raw), &js) == nil {
				out = append(out, &js)
			}
		}
		if len(stale) > 0 {
			_ = s.c.rdb.SRem(ctx, s.statusKey(st), stale...).Err()
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
