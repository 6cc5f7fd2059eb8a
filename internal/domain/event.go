package domain

import "time"

// Event is an append-only record of something that happened to a contact
// (or, for system events, a project): a named occurrence that can trigger a
// new WorkflowExecution or resume a WAITING one (see internal/eventrouter).
type Event struct {
	ID        string
	ProjectID string
	ContactID string
	EmailID   string
	Name      string
	Data      map[string]any
	CreatedAt time.Time
}

// Contact is referenced, not owned, by the core — created and maintained
// by an external collaborator. The core only reads Contact.Data for
// rendering/condition resolution and writes it back via UPDATE_CONTACT
// steps.
type Contact struct {
	ID         string
	ProjectID  string
	Email      string
	Subscribed bool
	Data       map[string]any
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
