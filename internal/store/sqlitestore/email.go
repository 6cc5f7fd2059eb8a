package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/driaug/plunk/internal/domain"
	"github.com/driaug/plunk/internal/perr"
)

func (s *Store) GetEmail(ctx context.Context, id string) (*domain.Email, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM emails WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &perr.NotFoundError{Resource: "email", ID: id}
	}
	if err != nil {
		return nil, err
	}
	var e domain.Email
	if err := json.Unmarshal([]byte(data), &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Store) PutEmail(ctx context.Context, e domain.Email) error {
	data, err := marshal(e)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO emails (id, project_id, contact_id, ts, data) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET ts=excluded.ts, data=excluded.data`,
		e.ID, e.ProjectID, e.ContactID, emailTimestampUnix(e), data)
	return err
}

func emailTimestampUnix(e domain.Email) int64 {
	switch {
	case e.ClickedAt != nil:
		return e.ClickedAt.Unix()
	case e.OpenedAt != nil:
		return e.OpenedAt.Unix()
	case e.DeliveredAt != nil:
		return e.DeliveredAt.Unix()
	case e.BouncedAt != nil:
		return e.BouncedAt.Unix()
	case e.SentAt != nil:
		return e.SentAt.Unix()
	default:
		return 0
	}
}

func (s *Store) RecentEmails(ctx context.Context, projectID, contactID string, start, end time.Time, limit int) ([]domain.Email, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM emails
		 WHERE project_id = ? AND (? = '' OR contact_id = ?) AND ts >= ? AND ts <= ? AND ts > 0
		 ORDER BY ts DESC LIMIT ?`,
		projectID, contactID, contactID, start.Unix(), end.Unix(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Email
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var e domain.Email
		if err := json.Unmarshal([]byte(data), &e); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
