// Package store persists the set of already-delivered submission identifiers.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Store is the durable dedup set. The full identifier set is loaded into
// memory at open; Contains never touches the database. Commit writes
// durably before the in-memory set is mutated, so a failed write leaves
// the identifier uncommitted and eligible for retry.
type Store struct {
	db *sql.DB

	mu   sync.RWMutex
	seen map[string]struct{}
}

// Delivery records one delivered submission.
type Delivery struct {
	Name        string // submission fullname, e.g. "t3_abc123"
	Subreddit   string
	Category    string
	Title       string
	DeliveredAt time.Time
}

// SubredditStats is one aggregate row of delivered submissions.
type SubredditStats struct {
	Subreddit string
	Category  string
	Total     int
	LastSeen  time.Time
}

func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("path is required")
	}

	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	ctx := context.Background()
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	seen, err := loadSeen(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, seen: seen}, nil
}

func loadSeen(ctx context.Context, db *sql.DB) (map[string]struct{}, error) {
	rows, err := db.QueryContext(ctx, "SELECT name FROM delivered")
	if err != nil {
		return nil, fmt.Errorf("load delivered set: %w", err)
	}
	defer func() { _ = rows.Close() }()

	seen := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan delivered name: %w", err)
		}
		seen[name] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate delivered set: %w", err)
	}

	return seen, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Contains reports whether the identifier has already been delivered.
func (s *Store) Contains(name string) bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.seen[name]
	return ok
}

// Len returns the number of identifiers known to this process.
func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.seen)
}

// Commit durably records a delivered submission. Idempotent: committing an
// identifier twice is a no-op. The in-memory set is only updated after the
// database write succeeds.
func (s *Store) Commit(ctx context.Context, d Delivery) error {
	if s == nil || s.db == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(d.Name) == "" {
		return errors.New("name is required")
	}
	if strings.TrimSpace(d.Subreddit) == "" {
		return errors.New("subreddit is required")
	}

	deliveredAt := d.DeliveredAt
	if deliveredAt.IsZero() {
		deliveredAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO delivered (name, subreddit, category, title, delivered_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO NOTHING
	`,
		d.Name,
		d.Subreddit,
		d.Category,
		d.Title,
		formatTime(deliveredAt),
	)
	if err != nil {
		return fmt.Errorf("commit %s: %w", d.Name, err)
	}

	s.mu.Lock()
	s.seen[d.Name] = struct{}{}
	s.mu.Unlock()

	return nil
}

// Cap trims the durable set to at most max entries, deleting oldest-first by
// delivery time. The in-memory set is deliberately left intact: an identifier
// seen during this process lifetime can never be re-delivered, regardless of
// the cap. A max of zero or less disables capping.
func (s *Store) Cap(ctx context.Context, max int) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if max <= 0 {
		return 0, nil
	}

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM delivered WHERE name NOT IN (
			SELECT name FROM delivered ORDER BY delivered_at DESC, name DESC LIMIT ?
		)
	`, max)
	if err != nil {
		return 0, fmt.Errorf("cap delivered set: %w", err)
	}

	n, _ := res.RowsAffected()
	return n, nil
}

// Stats returns delivered-submission aggregates grouped by subreddit and category.
func (s *Store) Stats(ctx context.Context) ([]SubredditStats, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT subreddit, category, COUNT(*) AS total, MAX(delivered_at) AS last_seen
		FROM delivered
		GROUP BY subreddit, category
		ORDER BY subreddit, category
	`)
	if err != nil {
		return nil, fmt.Errorf("get stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var stats []SubredditStats
	for rows.Next() {
		var st SubredditStats
		var lastSeen string
		if err := rows.Scan(&st.Subreddit, &st.Category, &st.Total, &lastSeen); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		st.LastSeen, err = parseTime(lastSeen)
		if err != nil {
			return nil, fmt.Errorf("parse last_seen: %w", err)
		}
		stats = append(stats, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stats: %w", err)
	}

	return stats, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts, nil
	}
	return time.Parse(time.RFC3339, value)
}
