package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists to a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and applies
// the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("sqlite store: path is required")
	}
	if path != ":memory:" {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("resolve sqlite path: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
		path = abs
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer avoids SQLITE_BUSY between our own connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	initCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := initSchema(initCtx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func initSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA synchronous=NORMAL;`,
		`PRAGMA busy_timeout=5000;`,
		`CREATE TABLE IF NOT EXISTS post (
  id TEXT PRIMARY KEY,
  platform TEXT NOT NULL,
  content TEXT NOT NULL,
  user_handle TEXT,
  timestamp TEXT NOT NULL,
  sentiment_score REAL,
  emotion TEXT,
  metadata TEXT
);`,
		`CREATE INDEX IF NOT EXISTS idx_post_platform_ts ON post(platform, timestamp DESC);`,
		`CREATE TABLE IF NOT EXISTS report (
  id TEXT PRIMARY KEY,
  topic TEXT NOT NULL,
  created_at TEXT NOT NULL,
  summary TEXT,
  metrics TEXT
);`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init sqlite schema: %w", err)
		}
	}
	return nil
}

// SaveBatch inserts posts in one transaction.
func (s *SQLiteStore) SaveBatch(ctx context.Context, posts []Post) (err error) {
	if len(posts) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO post
  (id, platform, content, user_handle, timestamp, sentiment_score, emotion, metadata)
  VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert post: %w", err)
	}
	defer stmt.Close()

	for _, p := range posts {
		meta, err := marshalNullable(p.Metadata)
		if err != nil {
			return fmt.Errorf("post %s metadata: %w", p.ID, err)
		}
		var score sql.NullFloat64
		if p.SentimentScore != nil {
			score = sql.NullFloat64{Float64: *p.SentimentScore, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx,
			p.ID, p.Platform, p.Content, nullString(p.UserHandle),
			p.Timestamp.UTC().Format(time.RFC3339Nano), score, nullString(p.Emotion), meta,
		); err != nil {
			return fmt.Errorf("insert post %s: %w", p.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit posts: %w", err)
	}
	return nil
}

// SaveReport inserts or replaces a report.
func (s *SQLiteStore) SaveReport(ctx context.Context, r Report) error {
	metrics, err := marshalNullable(r.Metrics)
	if err != nil {
		return fmt.Errorf("report %s metrics: %w", r.ID, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO report (id, topic, created_at, summary, metrics) VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.Topic, r.CreatedAt.UTC().Format(time.RFC3339Nano), r.Summary, metrics,
	)
	if err != nil {
		return fmt.Errorf("insert report %s: %w", r.ID, err)
	}
	return nil
}

// CountPosts returns how many posts are stored for platform ("" for all).
func (s *SQLiteStore) CountPosts(ctx context.Context, platform string) (int, error) {
	q := `SELECT COUNT(*) FROM post`
	var args []any
	if platform != "" {
		q += ` WHERE platform = ?`
		args = append(args, platform)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count posts: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func marshalNullable[T any](v map[string]T) (sql.NullString, error) {
	if len(v) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}
