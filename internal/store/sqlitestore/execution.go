package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/driaug/plunk/internal/domain"
	"github.com/driaug/plunk/internal/perr"
)

func (s *Store) GetExecution(ctx context.Context, id string) (*domain.WorkflowExecution, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM executions WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &perr.NotFoundError{Resource: "execution", ID: id}
	}
	if err != nil {
		return nil, err
	}
	var e domain.WorkflowExecution
	if err := json.Unmarshal([]byte(data), &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Store) PutExecution(ctx context.Context, e domain.WorkflowExecution) error {
	data, err := marshal(e)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO executions (id, workflow_id, contact_id, status, started_at, data) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET status=excluded.status, data=excluded.data`,
		e.ID, e.WorkflowID, e.ContactID, string(e.Status), e.StartedAt.Unix(), data)
	return err
}

func (s *Store) RunningExecution(ctx context.Context, workflowID, contactID string) (*domain.WorkflowExecution, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM executions WHERE workflow_id = ? AND contact_id = ? AND status = ? LIMIT 1`,
		workflowID, contactID, string(domain.ExecutionRunning)).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var e domain.WorkflowExecution
	if err := json.Unmarshal([]byte(data), &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Store) AnyExecution(ctx context.Context, workflowID, contactID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM executions WHERE workflow_id = ? AND contact_id = ?`,
		workflowID, contactID).Scan(&count)
	return count > 0, err
}

func (s *Store) GetStepExecution(ctx context.Context, id string) (*domain.StepExecution, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM step_executions WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &perr.NotFoundError{Resource: "step_execution", ID: id}
	}
	if err != nil {
		return nil, err
	}
	var se domain.StepExecution
	if err := json.Unmarshal([]byte(data), &se); err != nil {
		return nil, err
	}
	return &se, nil
}

func (s *Store) StepExecutionFor(ctx context.Context, executionID, stepID string) (*domain.StepExecution, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM step_executions WHERE execution_id = ? AND step_id = ? AND status IN (?, ?, ?) LIMIT 1`,
		executionID, stepID, string(domain.StepPending), string(domain.StepRunning), string(domain.StepWaiting))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	var data string
	if err := rows.Scan(&data); err != nil {
		return nil, err
	}
	var se domain.StepExecution
	if err := json.Unmarshal([]byte(data), &se); err != nil {
		return nil, err
	}
	return &se, nil
}

// PutStepExecution persists se with empty waiting-event index columns; used
// for step types other than WAIT_FOR_EVENT.
func (s *Store) PutStepExecution(ctx context.Context, se domain.StepExecution) error {
	return s.putStepExecution(ctx, se, "", "")
}

// PutWaitingStepExecution persists se with its (projectID, eventName)
// index columns populated so WaitingForEvent's indexed query can find it;
// the indexed columns themselves are the side-index, so there is no
// separate in-process map to maintain the way memstore needs one.
func (s *Store) PutWaitingStepExecution(ctx context.Context, se domain.StepExecution, projectID, eventName string) error {
	return s.putStepExecution(ctx, se, projectID, eventName)
}

func (s *Store) putStepExecution(ctx context.Context, se domain.StepExecution, projectID, eventName string) error {
	data, err := marshal(se)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO step_executions (id, execution_id, step_id, status, project_id, event_name, data)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET status=excluded.status, project_id=excluded.project_id,
		 	event_name=excluded.event_name, data=excluded.data`,
		se.ID, se.ExecutionID, se.StepID, string(se.Status), projectID, eventName, data)
	return err
}

// TryAdvance atomically transitions a step_executions row from `from` to
// `to` using a conditional UPDATE; RowsAffected()==0 means the row wasn't
// in the expected state (already claimed by another worker, or terminal).
func (s *Store) TryAdvance(ctx context.Context, stepExecutionID string, from, to domain.StepExecutionStatus) (bool, error) {
	row, err := s.GetStepExecution(ctx, stepExecutionID)
	if err != nil {
		return false, err
	}
	if row.Status != from {
		return false, nil
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE step_executions SET status = ? WHERE id = ? AND status = ?`,
		string(to), stepExecutionID, string(from))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	row.Status = to
	data, err := marshal(row)
	if err != nil {
		return true, err
	}
	_, err = s.db.ExecContext(ctx, `UPDATE step_executions SET data = ? WHERE id = ?`, data, stepExecutionID)
	return true, err
}

func (s *Store) WaitingForEvent(ctx context.Context, projectID, eventName, contactID string) ([]domain.StepExecution, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT se.data FROM step_executions se
		 JOIN executions e ON e.id = se.execution_id
		 WHERE se.project_id = ? AND se.event_name = ? AND se.status = ?
		   AND (? = '' OR e.contact_id = ?)`,
		projectID, eventName, string(domain.StepWaiting), contactID, contactID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.StepExecution
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var se domain.StepExecution
		if err := json.Unmarshal([]byte(data), &se); err != nil {
			return nil, err
		}
		out = append(out, se)
	}
	return out, rows.Err()
}
