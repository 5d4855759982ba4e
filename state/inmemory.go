package state

import (
	"context"
	"sort"
	"sync"
)

// InMemoryStore is a process-local Store.
type InMemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*JobState
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{jobs: make(map[string]*JobState)}
}

// SaveJob implements Store.
func (s *InMemoryStore) SaveJob(ctx context.Context, st *JobState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[st.ID] = clone(st)
	return nil
}

// GetJob implements Store.
func (s *InMemoryStore) GetJob(ctx context.Context, id string) (*JobState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(st), nil
}

// ListJobs implements Store. Results are ordered oldest first.
func (s *InMemoryStore) ListJobs(ctx context.Context, status JobStatus) ([]*JobState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*JobState, 0, len(s.jobs))
	for _, st := range s.jobs {
		if status == "" || st.Status == status {
			out = append(out, clone(st))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// clone copies st so callers can't mutate stored state.
func clone(st *JobState) *JobState {
	c := *st
	if st.Result != nil {
		c.Result = append([]byte(nil), st.Result...)
	}
	if st.CompletedAt != nil {
		t := *st.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}
