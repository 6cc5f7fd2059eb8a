// Package store defines the persistence boundary for workflows, executions,
// emails, campaigns, segments, events, and contacts. Two implementations are
// provided: an in-memory store (memstore subpackage) used by tests and the
// single-process default, and a sqlite-backed store (sqlitestore subpackage)
// for durability across restarts.
package store

import (
	"context"
	"time"

	"github.com/driaug/plunk/internal/domain"
)

// WorkflowStore persists Workflow definitions.
type WorkflowStore interface {
	GetWorkflow(ctx context.Context, id string) (*domain.Workflow, error)
	// EnabledByTrigger returns enabled workflows in projectID whose
	// TriggerEventName equals eventName. Backs internal/eventrouter's
	// trigger lookup (cached upstream with a 5-minute TTL).
	EnabledByTrigger(ctx context.Context, projectID, eventName string) ([]domain.Workflow, error)
	PutWorkflow(ctx context.Context, w domain.Workflow) error
}

// ExecutionStore persists WorkflowExecutions and their StepExecutions.
type ExecutionStore interface {
	GetExecution(ctx context.Context, id string) (*domain.WorkflowExecution, error)
	PutExecution(ctx context.Context, e domain.WorkflowExecution) error

	// RunningExecution returns the RUNNING execution for (workflowID,
	// contactID), if any, used by the re-entry guard.
	RunningExecution(ctx context.Context, workflowID, contactID string) (*domain.WorkflowExecution, error)
	// AnyExecution returns whether any execution, in any status, exists
	// for (workflowID, contactID) — used when AllowReentry is false.
	AnyExecution(ctx context.Context, workflowID, contactID string) (bool, error)

	GetStepExecution(ctx context.Context, id string) (*domain.StepExecution, error)
	// StepExecutionFor returns the non-terminal StepExecution for
	// (executionID, stepID), if one exists.
	StepExecutionFor(ctx context.Context, executionID, stepID string) (*domain.StepExecution, error)
	PutStepExecution(ctx context.Context, se domain.StepExecution) error

	// PutWaitingStepExecution persists se (typically a WAIT_FOR_EVENT step
	// moving to/out of WAITING) and maintains the (projectID, eventName)
	// side-index WaitingForEvent queries. Callers pass the Step's
	// config.eventName as eventName even when se.Status is no longer
	// WAITING, so implementations can clean the index entry up.
	PutWaitingStepExecution(ctx context.Context, se domain.StepExecution, projectID, eventName string) error

	// TryAdvance atomically transitions a StepExecution from `from` to
	// `to`, returning ok=false if the row is not currently `from` — the
	// at-most-one-advancement guard that keeps concurrent resumes from
	// double-processing the same step.
	TryAdvance(ctx context.Context, stepExecutionID string, from, to domain.StepExecutionStatus) (ok bool, err error)

	// WaitingForEvent returns WAITING StepExecutions whose Step is
	// WAIT_FOR_EVENT with config.eventName == eventName, scoped to
	// projectID and optionally contactID (Open Question b, resolved:
	// indexed by (projectID, eventName), not a full scan).
	WaitingForEvent(ctx context.Context, projectID, eventName, contactID string) ([]domain.StepExecution, error)
}

// EmailStore persists Emails.
type EmailStore interface {
	GetEmail(ctx context.Context, id string) (*domain.Email, error)
	PutEmail(ctx context.Context, e domain.Email) error
	// RecentByContact lists an Email's activity-feed rows for a contact
	// within [start, end), newest first, up to limit.
	RecentEmails(ctx context.Context, projectID string, contactID string, start, end time.Time, limit int) ([]domain.Email, error)
}

// CampaignStore persists Campaigns and resolves their audiences.
type CampaignStore interface {
	GetCampaign(ctx context.Context, id string) (*domain.Campaign, error)
	PutCampaign(ctx context.Context, c domain.Campaign) error
	GetSegment(ctx context.Context, id string) (*domain.Segment, error)

	// AudiencePage returns up to limit+1 subscribed contact IDs in
	// projectID matching the given filters, ordered by id ascending,
	// starting strictly after cursor (empty cursor = from the start).
	AudiencePage(ctx context.Context, projectID string, filters []domain.AudienceFilter, cursor string, limit int) ([]string, error)
}

// EventStore persists the append-only Event log.
type EventStore interface {
	AppendEvent(ctx context.Context, e domain.Event) error
	RecentEvents(ctx context.Context, projectID string, contactID string, start, end time.Time, limit int) ([]domain.Event, error)
}

// ExecutionFeedStore supplies the WorkflowExecution-derived rows of the
// activity feed (start/complete timestamps), kept separate from
// ExecutionStore's mutation-path methods for clarity.
type ExecutionFeedStore interface {
	RecentExecutions(ctx context.Context, projectID string, contactID string, start, end time.Time, limit int) ([]domain.WorkflowExecution, error)
}

// ContactStore is the narrow slice of contact access the core needs:
// reading data for render/condition resolution and merging UPDATE_CONTACT
// writes. The contact record itself is owned by an external collaborator.
type ContactStore interface {
	GetContact(ctx context.Context, id string) (*domain.Contact, error)
	MergeContactData(ctx context.Context, id string, updates map[string]any) error
}

// Store is the full persistence boundary a runtime/campaign/eventrouter/
// activity component depends on.
type Store interface {
	WorkflowStore
	ExecutionStore
	EmailStore
	CampaignStore
	EventStore
	ExecutionFeedStore
	ContactStore
}
