// Package history persists one summary row per build cycle to SQLite, so
// operators can ask what recent builds did and why pages were rebuilt
// without digging through logs.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Cycle is one build cycle's summary row.
type Cycle struct {
	ID         string
	Trigger    string // cli|watch|schedule
	Outcome    string // success|partial|failed
	StartedAt  time.Time
	FinishedAt time.Time
	Total      int
	Rendered   int
	Reused     int
	Failed     int
	// Reasons counts stale decisions by reason for this cycle.
	Reasons map[string]int
}

// Store is a SQLite-backed cycle log. Use ":memory:" for tests.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open creates or opens the history database and ensures the schema.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	s := &Store{db: db}
	if err := s.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize history schema: %w", err)
	}
	return s, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS build_cycles (
		id TEXT PRIMARY KEY,
		triggered_by TEXT NOT NULL,
		outcome TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL,
		total INTEGER NOT NULL,
		rendered INTEGER NOT NULL,
		reused INTEGER NOT NULL,
		failed INTEGER NOT NULL,
		reasons TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_started_at ON build_cycles(started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Append records a completed cycle.
func (s *Store) Append(ctx context.Context, c Cycle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var reasonsJSON []byte
	if len(c.Reasons) > 0 {
		var err error
		reasonsJSON, err = json.Marshal(c.Reasons)
		if err != nil {
			return fmt.Errorf("marshal reasons: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO build_cycles (id, triggered_by, outcome, started_at, finished_at, total, rendered, reused, failed, reasons)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Trigger, c.Outcome, c.StartedAt.UnixMilli(), c.FinishedAt.UnixMilli(),
		c.Total, c.Rendered, c.Reused, c.Failed, reasonsJSON,
	)
	if err != nil {
		return fmt.Errorf("insert cycle: %w", err)
	}
	return nil
}

// Recent returns the most recent cycles, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Cycle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, triggered_by, outcome, started_at, finished_at, total, rendered, reused, failed, reasons
		 FROM build_cycles ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query cycles: %w", err)
	}
	defer rows.Close()

	var out []Cycle
	for rows.Next() {
		var c Cycle
		var started, finished int64
		var reasonsJSON sql.NullString
		if err := rows.Scan(&c.ID, &c.Trigger, &c.Outcome, &started, &finished,
			&c.Total, &c.Rendered, &c.Reused, &c.Failed, &reasonsJSON); err != nil {
			return nil, fmt.Errorf("scan cycle: %w", err)
		}
		c.StartedAt = time.UnixMilli(started).UTC()
		c.FinishedAt = time.UnixMilli(finished).UTC()
		if reasonsJSON.Valid && reasonsJSON.String != "" {
			if err := json.Unmarshal([]byte(reasonsJSON.String), &c.Reasons); err != nil {
				return nil, fmt.Errorf("unmarshal reasons: %w", err)
			}
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
