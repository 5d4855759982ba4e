package redisstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/KamdynS/sentiant/session"
)

var _ session.Store = (*SessionStore)(nil)

// SessionStore keeps each session in a HASH whose key expires after the
// idle TTL.
type SessionStore struct {
	c      *Client
	policy session.Policy
	now    func() time.Time
}

// NewSessionStore creates a session store. Zero policy fields take defaults.
func NewSessionStore(c *Client, policy session.Policy) *SessionStore {
	def := session.DefaultPolicy()
	if policy.InitialCredits <= 0 {
		policy.InitialCredits = def.InitialCredits
	}
	if policy.TTL <= 0 {
		policy.TTL = def.TTL
	}
	return &SessionStore{c: c, policy: policy, now: time.Now}
}

func (s *SessionStore) sessionKey(id string) string { return s.c.key("session", id) }

// CreateSession implements session.Store.
func (s *SessionStore) CreateSession(ctx context.Context) (session.Session, error) {
	now := s.now().UTC()
	sess := session.Session{
		ID:               uuid.NewString(),
		CreditsRemaining: s.policy.InitialCredits,
		CreatedAt:        now,
		LastUsed:         now,
	}
	key := s.sessionKey(sess.ID)
	_, err := s.c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key,
			"credits", sess.CreditsRemaining,
			"created_at", now.Format(time.RFC3339Nano),
			"last_used", now.Format(time.RFC3339Nano),
		)
		p.PExpire(ctx, key, s.policy.TTL)
		return nil
	})
	if err != nil {
		return session.Session{}, fmt.Errorf("redis create session: %w", err)
	}
	return sess, nil
}

// GetSession implements session.Store.
func (s *SessionStore) GetSession(ctx context.Context, id string) (session.Session, error) {
	fields, err := s.c.rdb.HGetAll(ctx, s.sessionKey(id)).Result()
	if err != nil {
		return session.Session{}, fmt.Errorf("redis get session: %w", err)
	}
	if len(fields) == 0 {
		return session.Session{}, session.ErrNotFound
	}
	credits, err := strconv.Atoi(fields["credits"])
	if err != nil {
		return session.Session{}, fmt.Errorf("session %s: bad credits field %q", id, fields["credits"])
	}
	created, _ := time.Parse(time.RFC3339Nano, fields["created_at"])
	lastUsed, _ := time.Parse(time.RFC3339Nano, fields["last_used"])
	return session.Session{ID: id, CreditsRemaining: credits, CreatedAt: created, LastUsed: lastUsed}, nil
}

// UseCredit implements session.Store.
func (s *SessionStore) UseCredit(ctx context.Context, id string) (int, error) {
	now := s.now().UTC().Format(time.RFC3339Nano)
	left, err := useCreditScript.Run(ctx, s.c.rdb, []string{s.sessionKey(id)}, now, s.policy.TTL.Milliseconds()).Int()
	if err != nil {
		return 0, fmt.Errorf("redis use credit: %w", err)
	}
	switch left {
	case -2:
		return 0, session.ErrNotFound
	case -1:
		return 0, session.ErrNoCredits
	}
	return left, nil
}
