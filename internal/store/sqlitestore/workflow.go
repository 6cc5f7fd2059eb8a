package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/driaug/plunk/internal/domain"
	"github.com/driaug/plunk/internal/perr"
)

func (s *Store) GetWorkflow(ctx context.Context, id string) (*domain.Workflow, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM workflows WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &perr.NotFoundError{Resource: "workflow", ID: id}
	}
	if err != nil {
		return nil, err
	}
	var w domain.Workflow
	if err := json.Unmarshal([]byte(data), &w); err != nil {
		return nil, err
	}
	return &w, nil
}

func (s *Store) EnabledByTrigger(ctx context.Context, projectID, eventName string) ([]domain.Workflow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM workflows WHERE project_id = ? AND trigger_event_name = ? AND enabled = 1`,
		projectID, eventName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Workflow
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var w domain.Workflow
		if err := json.Unmarshal([]byte(data), &w); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *Store) PutWorkflow(ctx context.Context, w domain.Workflow) error {
	data, err := marshal(w)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workflows (id, project_id, trigger_event_name, enabled, data) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET project_id=excluded.project_id, trigger_event_name=excluded.trigger_event_name,
		 	enabled=excluded.enabled, data=excluded.data`,
		w.ID, w.ProjectID, w.TriggerEventName, boolToInt(w.Enabled), data)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
