package store

import (
	"context"
	"sync"
)

// MemoryStore keeps everything in process memory. Useful for tests and
// deployments without a database.
type MemoryStore struct {
	mu      sync.RWMutex
	posts   []Post
	reports []Report
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (m *MemoryStore) SaveBatch(ctx context.Context, posts []Post) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posts = append(m.posts, posts...)
	return nil
}

func (m *MemoryStore) SaveReport(ctx context.Context, r Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, r)
	return nil
}

// Posts returns a snapshot of saved posts.
func (m *MemoryStore) Posts() []Post {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Post(nil), m.posts...)
}

// Reports returns a snapshot of saved reports.
func (m *MemoryStore) Reports() []Report {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Report(nil), m.reports...)
}

func (m *MemoryStore) Close() error { return nil }
