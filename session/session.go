// Package session implements anonymous guest sessions with a small budget
// of report credits.
package session

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound means the session never existed or has expired.
	ErrNotFound = errors.New("session not found or expired")
	// ErrNoCredits means the session exists but its budget is spent.
	ErrNoCredits = errors.New("no credits remaining")
)

// Session is a guest session.
type Session struct {
	ID               string    `json:"session_id"`
	CreditsRemaining int       `json:"credits_remaining"`
	CreatedAt        time.Time `json:"created_at"`
	LastUsed         time.Time `json:"last_used"`
}

// Policy sets the credit budget and idle lifetime of new sessions.
type Policy struct {
	InitialCredits int
	// TTL is measured from the last credit use (or creation).
	TTL time.Duration
}

// DefaultPolicy grants 5 credits that expire after 24h of inactivity.
func DefaultPolicy() Policy {
	return Policy{InitialCredits: 5, TTL: 24 * time.Hour}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.InitialCredits <= 0 {
		p.InitialCredits = d.InitialCredits
	}
	if p.TTL <= 0 {
		p.TTL = d.TTL
	}
	return p
}

// Store manages sessions and their credits.
type Store interface {
	CreateSession(ctx context.Context) (Session, error)
	// GetSession returns ErrNotFound for unknown or expired ids.
	GetSession(ctx context.Context, id string) (Session, error)
	// UseCredit atomically spends one credit and returns how many remain.
	// It returns ErrNotFound or ErrNoCredits when nothing was spent.
	UseCredit(ctx context.Context, id string) (int, error)
}

// GetCredits returns the remaining credits of a live session.
func GetCredits(ctx context.Context, s Store, id string) (int, error) {
	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return 0, err
	}
	return sess.CreditsRemaining, nil
}
