package sqlitestore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/driaug/plunk/internal/domain"
)

func (s *Store) AppendEvent(ctx context.Context, e domain.Event) error {
	data, err := marshal(e)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO events (id, project_id, contact_id, created_at, data) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET data=excluded.data`,
		e.ID, e.ProjectID, e.ContactID, e.CreatedAt.Unix(), data)
	return err
}

func (s *Store) RecentEvents(ctx context.Context, projectID, contactID string, start, end time.Time, limit int) ([]domain.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM events
		 WHERE project_id = ? AND (? = '' OR contact_id = ?) AND created_at >= ? AND created_at <= ?
		 ORDER BY created_at DESC LIMIT ?`,
		projectID, contactID, contactID, start.Unix(), end.Unix(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var e domain.Event
		if err := json.Unmarshal([]byte(data), &e); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) RecentExecutions(ctx context.Context, projectID, contactID string, start, end time.Time, limit int) ([]domain.WorkflowExecution, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT e.data FROM executions e
		 JOIN workflows w ON w.id = e.workflow_id
		 WHERE w.project_id = ? AND (? = '' OR e.contact_id = ?) AND e.started_at >= ? AND e.started_at <= ?
		 ORDER BY e.started_at DESC LIMIT ?`,
		projectID, contactID, contactID, start.Unix(), end.Unix(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.WorkflowExecution
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var e domain.WorkflowExecution
		if err := json.Unmarshal([]byte(data), &e); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
