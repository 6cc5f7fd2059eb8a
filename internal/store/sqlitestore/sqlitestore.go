// Package sqlitestore is the durable Store implementation, backed by the
// pure-Go modernc.org/sqlite driver so the binary stays cgo-free. Domain
// entities are stored as JSON blobs alongside the indexed columns the
// store.Store query methods need — the audience cursor, the
// (project_id, event_name) waiting-event lookup, and the activity feed's
// time-range scans — rather than a fully normalized relational schema,
// since the core's own mutation surface already treats each entity as an
// opaque aggregate.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/driaug/plunk/internal/domain"
	"github.com/driaug/plunk/internal/perr"
)

// Store is the sqlite-backed implementation of store.Store.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the sqlite database at path and
// applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &perr.ConfigError{Key: "store_path", Reason: "failed to open sqlite database", Cause: err}
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite: single-writer discipline

	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS workflows (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			trigger_event_name TEXT NOT NULL,
			enabled INTEGER NOT NULL,
			data TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_workflows_trigger ON workflows(project_id, trigger_event_name, enabled)`,

		`CREATE TABLE IF NOT EXISTS executions (
			id TEXT PRIMARY KEY,
			workflow_id TEXT NOT NULL,
			contact_id TEXT NOT NULL,
			status TEXT NOT NULL,
			started_at INTEGER NOT NULL,
			data TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_executions_wf_contact ON executions(workflow_id, contact_id, status)`,

		`CREATE TABLE IF NOT EXISTS step_executions (
			id TEXT PRIMARY KEY,
			execution_id TEXT NOT NULL,
			step_id TEXT NOT NULL,
			status TEXT NOT NULL,
			project_id TEXT NOT NULL DEFAULT '',
			event_name TEXT NOT NULL DEFAULT '',
			data TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_stepexec_nonterm ON step_executions(execution_id, step_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_stepexec_waiting ON step_executions(project_id, event_name, status)`,

		`CREATE TABLE IF NOT EXISTS emails (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			contact_id TEXT NOT NULL,
			ts INTEGER NOT NULL DEFAULT 0,
			data TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_emails_project_contact_ts ON emails(project_id, contact_id, ts)`,

		`CREATE TABLE IF NOT EXISTS campaigns (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			data TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS segments (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			data TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			contact_id TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			data TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_project_contact_ts ON events(project_id, contact_id, created_at)`,

		`CREATE TABLE IF NOT EXISTS contacts (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			subscribed INTEGER NOT NULL,
			data TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_contacts_project_id ON contacts(project_id, subscribed, id)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlitestore: migrate: %w", err)
		}
	}
	return nil
}

func marshal(v any) (string, error) {
	b, err := json.Marshal(v)
	return string(b), err
}
