// Package runlog persists finished agent runs to a local sqlite database.
// The store is optional: a nil *Store drops writes and lists nothing, so
// callers never branch on whether persistence is configured.
package runlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"fleetd/internal/common/fsutil"
	"fleetd/pkg/types"
)

const defaultRecentLimit = 50

// Run is one persisted agent run.
type Run struct {
	ID               string            `json:"id"`
	Task             string            `json:"task"`
	Success          bool              `json:"success"`
	FinalAnswer      string            `json:"final_answer,omitempty"`
	TerminatedReason string            `json:"terminated_reason"`
	TotalSteps       int               `json:"total_steps"`
	Steps            []types.AgentStep `json:"steps,omitempty"`
	CreatedAtUnix    int64             `json:"created_at_unix"`
}

// Store is a sqlite-backed run log.
type Store struct {
	db    *sql.DB
	limit int
}

// Open opens (creating if needed) the run database at path. recentLimit
// bounds Recent listings; zero selects the default of 50.
func Open(path string, recentLimit int) (*Store, error) {
	path, err := fsutil.ExpandHome(path)
	if err != nil {
		return nil, fmt.Errorf("run log path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("run log dir: %w", err)
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open run log: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping run log: %w", err)
	}
	if recentLimit <= 0 {
		recentLimit = defaultRecentLimit
	}
	s := &Store{db: db, limit: recentLimit}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate run log: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS agent_runs (
		id TEXT PRIMARY KEY,
		task TEXT NOT NULL,
		success INTEGER NOT NULL,
		terminated_reason TEXT NOT NULL,
		total_steps INTEGER NOT NULL,
		final_answer TEXT NOT NULL DEFAULT '',
		steps TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_agent_runs_created ON agent_runs(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close releases the database. Safe on nil.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	return s.db.Close()
}

// Save records one finished run. Safe on nil.
func (s *Store) Save(ctx context.Context, task string, run types.AgentRunResponse) error {
	if s == nil {
		return nil
	}
	steps, err := json.Marshal(run.Steps)
	if err != nil {
		return fmt.Errorf("marshal steps: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO agent_runs (id, task, success, terminated_reason, total_steps, final_answer, steps, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, task, run.Success, run.TerminatedReason, run.TotalSteps, run.FinalAnswer, string(steps), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// Recent returns the newest runs, most recent first. limit values of zero or
// beyond the store's configured bound fall back to that bound. Safe on nil.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	if s == nil {
		return nil, nil
	}
	if limit <= 0 || limit > s.limit {
		limit = s.limit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task, success, terminated_reason, total_steps, final_answer, steps, created_at
		FROM agent_runs
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			r         Run
			stepsJSON string
			createdAt time.Time
		)
		if err := rows.Scan(&r.ID, &r.Task, &r.Success, &r.TerminatedReason, &r.TotalSteps, &r.FinalAnswer, &stepsJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if err := json.Unmarshal([]byte(stepsJSON), &r.Steps); err != nil {
			return nil, fmt.Errorf("unmarshal steps: %w", err)
		}
		r.CreatedAtUnix = createdAt.Unix()
		out = append(out, r)
	}
	return out, rows.Err()
}
