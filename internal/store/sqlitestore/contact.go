package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/driaug/plunk/internal/domain"
	"github.com/driaug/plunk/internal/perr"
)

func (s *Store) GetContact(ctx context.Context, id string) (*domain.Contact, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM contacts WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &perr.NotFoundError{Resource: "contact", ID: id}
	}
	if err != nil {
		return nil, err
	}
	var c domain.Contact
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// PutContact is a seed/test helper, not part of store.Store — contacts are
// owned by an external collaborator and reach this store only through
// GetContact/MergeContactData in production use.
func (s *Store) PutContact(ctx context.Context, c domain.Contact) error {
	data, err := marshal(c)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO contacts (id, project_id, subscribed, data) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET project_id=excluded.project_id, subscribed=excluded.subscribed, data=excluded.data`,
		c.ID, c.ProjectID, boolToInt(c.Subscribed), data)
	return err
}

// MergeContactData shallow-merges updates into the contact's Data map,
// used by the UPDATE_CONTACT step. Missing keys in updates leave the
// existing value untouched; a nil value in updates deletes the key.
func (s *Store) MergeContactData(ctx context.Context, id string, updates map[string]any) error {
	c, err := s.GetContact(ctx, id)
	if err != nil {
		return err
	}
	if c.Data == nil {
		c.Data = make(map[string]any, len(updates))
	}
	for k, v := range updates {
		if v == nil {
			delete(c.Data, k)
			continue
		}
		c.Data[k] = v
	}
	return s.PutContact(ctx, *c)
}
