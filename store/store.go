// Package store persists scored posts and generated reports.
package store

import (
	"context"
	"time"
)

// Post is one scored piece of user content.
type Post struct {
	ID             string            `json:"id"`
	Platform       string            `json:"platform"`
	Content        string            `json:"content"`
	UserHandle     string            `json:"user_handle,omitempty"`
	Timestamp      time.Time         `json:"timestamp"`
	SentimentScore *float64          `json:"sentiment_score,omitempty"`
	Emotion        string            `json:"emotion,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// Report is a generated analysis.
type Report struct {
	ID        string         `json:"id"`
	Topic     string         `json:"topic"`
	CreatedAt time.Time      `json:"created_at"`
	Summary   string         `json:"summary"`
	Metrics   map[string]any `json:"metrics,omitempty"`
}

// Store writes posts and reports.
type Store interface {
	// SaveBatch stores posts atomically: all or none.
	SaveBatch(ctx context.Context, posts []Post) error
	SaveReport(ctx context.Context, r Report) error
	Close() error
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*RetryingStore)(nil)
)
