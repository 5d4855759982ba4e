package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps sessions in process memory. Expired sessions are
// swept lazily on each call.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	policy   Policy
	now      func() time.Time
	newID    func() string
}

// NewMemoryStore creates a store using policy (zero fields take defaults).
func NewMemoryStore(policy Policy) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		policy:   policy.withDefaults(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// CreateSession implements Store.
func (m *MemoryStore) CreateSession(ctx context.Context) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.sweep(now)
	s := &Session{
		ID:               m.newID(),
		CreditsRemaining: m.policy.InitialCredits,
		CreatedAt:        now,
		LastUsed:         now,
	}
	m.sessions[s.ID] = s
	return *s, nil
}

// GetSession implements Store.
func (m *MemoryStore) GetSession(ctx context.Context, id string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweep(m.now())
	s, ok := m.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	return *s, nil
}

// UseCredit implements Store.
func (m *MemoryStore) UseCredit(ctx context.Context, id string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.sweep(now)
	s, ok := m.sessions[id]
	if !ok {
		return 0, ErrNotFound
	}
	if s.CreditsRemaining <= 0 {
		return 0, ErrNoCredits
	}
	s.CreditsRemaining--
	s.LastUsed = now
	return s.CreditsRemaining, nil
}

// sweep drops sessions idle longer than the TTL. Callers hold mu.
func (m *MemoryStore) sweep(now time.Time) {
	for id, s := range m.sessions {
		if now.Sub(s.LastUsed) > m.policy.TTL {
			delete(m.sessions, id)
		}
	}
}
