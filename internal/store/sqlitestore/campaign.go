package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/driaug/plunk/internal/condition"
	"github.com/driaug/plunk/internal/domain"
	"github.com/driaug/plunk/internal/perr"
)

func (s *Store) GetCampaign(ctx context.Context, id string) (*domain.Campaign, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM campaigns WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &perr.NotFoundError{Resource: "campaign", ID: id}
	}
	if err != nil {
		return nil, err
	}
	var c domain.Campaign
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) PutCampaign(ctx context.Context, c domain.Campaign) error {
	data, err := marshal(c)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO campaigns (id, project_id, data) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET data=excluded.data`,
		c.ID, c.ProjectID, data)
	return err
}

func (s *Store) GetSegment(ctx context.Context, id string) (*domain.Segment, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM segments WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &perr.NotFoundError{Resource: "segment", ID: id}
	}
	if err != nil {
		return nil, err
	}
	var seg domain.Segment
	if err := json.Unmarshal([]byte(data), &seg); err != nil {
		return nil, err
	}
	return &seg, nil
}

// audienceScanChunk bounds how many candidate contact rows AudiencePage
// pulls per round-trip while filtering in application code; filters run
// against the contact's free-form Data map, which a JSON-blob schema can't
// push down into SQL.
const audienceScanChunk = 500

// AudiencePage returns up to limit+1 subscribed contact IDs in projectID
// matching filters, ordered by id ascending, starting strictly after
// cursor. Since AudienceFilter fields live inside the JSON blob, matching
// happens in Go over successive chunks of candidate rows rather than in
// the SQL WHERE clause.
func (s *Store) AudiencePage(ctx context.Context, projectID string, filters []domain.AudienceFilter, cursor string, limit int) ([]string, error) {
	var out []string
	after := cursor
	for len(out) < limit+1 {
		rows, err := s.db.QueryContext(ctx,
			`SELECT id, data FROM contacts
			 WHERE project_id = ? AND subscribed = 1 AND id > ?
			 ORDER BY id ASC LIMIT ?`,
			projectID, after, audienceScanChunk)
		if err != nil {
			return nil, err
		}

		n := 0
		for rows.Next() {
			var id, data string
			if err := rows.Scan(&id, &data); err != nil {
				rows.Close()
				return nil, err
			}
			n++
			after = id

			var c domain.Contact
			if err := json.Unmarshal([]byte(data), &c); err != nil {
				rows.Close()
				return nil, err
			}
			if condition.MatchFilters(filters, c.Data) {
				out = append(out, id)
				if len(out) >= limit+1 {
					break
				}
			}
		}
		closeErr := rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
		if closeErr != nil {
			return nil, closeErr
		}
		if n < audienceScanChunk || len(out) >= limit+1 {
			break
		}
	}
	return out, nil
}
