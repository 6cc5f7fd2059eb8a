// Package domain defines the core entities of the workflow/campaign engine:
// Workflow, Step, Transition, WorkflowExecution, StepExecution, Email,
// Campaign, Segment, Event, and the Contact reference type. These are plain
// data types; behavior lives in internal/runtime, internal/campaign, and
// internal/eventrouter.
package domain

import "time"

// StepType identifies the behavior a Step dispatches to.
type StepType string

const (
	StepTrigger       StepType = "TRIGGER"
	StepSendEmail     StepType = "SEND_EMAIL"
	StepDelay         StepType = "DELAY"
	StepWaitForEvent  StepType = "WAIT_FOR_EVENT"
	StepCondition     StepType = "CONDITION"
	StepExit          StepType = "EXIT"
	StepWebhook       StepType = "WEBHOOK"
	StepUpdateContact StepType = "UPDATE_CONTACT"
)

// Workflow is a named graph of steps with a single trigger event, owned by a
// project. Its shape is immutable while executions are in flight.
type Workflow struct {
	ID               string
	ProjectID        string
	Name             string
	Enabled          bool
	AllowReentry     bool
	TriggerEventName string
	Steps            []Step
	Transitions      []Transition
}

// Step is one node in a Workflow's graph. Config is a discriminated union
// keyed on Type; see internal/domain/stepconfig.go for the concrete shapes.
type Step struct {
	ID          string
	WorkflowID  string
	Type        StepType
	Name        string
	Config      map[string]any
	TemplateRef string
}

// TransitionCondition gates which outgoing Transition a completed Step
// selects. Exactly one of Branch/Fallback is meaningful; both zero means
// unconditional.
type TransitionCondition struct {
	Branch   string // "yes" | "no" | "timeout"
	Fallback bool
}

// IsZero reports whether the condition is the "unconditional" sentinel.
func (c TransitionCondition) IsZero() bool {
	return c.Branch == "" && !c.Fallback
}

// Transition is a directed edge between two Steps in a Workflow, ordered by
// Priority (ascending; ties broken by ID) among the edges leaving FromStepID.
type Transition struct {
	ID         string
	FromStepID string
	ToStepID   string
	Priority   int
	Condition  TransitionCondition
}

// ExecutionStatus is the lifecycle state of a WorkflowExecution.
type ExecutionStatus string

const (
	ExecutionRunning   ExecutionStatus = "RUNNING"
	ExecutionWaiting   ExecutionStatus = "WAITING"
	ExecutionCompleted ExecutionStatus = "COMPLETED"
	ExecutionFailed    ExecutionStatus = "FAILED"
	ExecutionExited    ExecutionStatus = "EXITED"
	ExecutionCancelled ExecutionStatus = "CANCELLED"
)

// Terminal reports whether the status admits no further transitions.
func (s ExecutionStatus) Terminal() bool {
	switch s {
	case ExecutionCompleted, ExecutionFailed, ExecutionExited, ExecutionCancelled:
		return true
	default:
		return false
	}
}

// WorkflowExecution is one traversal of a Workflow for one Contact.
type WorkflowExecution struct {
	ID            string
	WorkflowID    string
	ContactID     string
	Status        ExecutionStatus
	CurrentStepID string
	StartedAt     time.Time
	CompletedAt   *time.Time
	ExitReason    string
	Context       map[string]any
	StepCount     int // runaway guard accumulator, see internal/runtime
}

// StepExecutionStatus is the lifecycle state of a StepExecution.
type StepExecutionStatus string

const (
	StepPending   StepExecutionStatus = "PENDING"
	StepRunning   StepExecutionStatus = "RUNNING"
	StepWaiting   StepExecutionStatus = "WAITING"
	StepCompleted StepExecutionStatus = "COMPLETED"
	StepFailed    StepExecutionStatus = "FAILED"
)

// NonTerminal reports whether the status counts against the "at most one
// non-terminal StepExecution per (executionId, stepId)" invariant.
func (s StepExecutionStatus) NonTerminal() bool {
	switch s {
	case StepPending, StepRunning, StepWaiting:
		return true
	default:
		return false
	}
}

// StepOutput carries the result of a dispatched Step, consumed by transition
// selection (Branch) and the activity/caller surface (Data/Success).
type StepOutput struct {
	Branch  string
	Success bool
	Data    map[string]any
}

// StepExecution is a runtime record of one visit to a Step within a
// WorkflowExecution.
type StepExecution struct {
	ID           string
	ExecutionID  string
	StepID       string
	Status       StepExecutionStatus
	StartedAt    *time.Time
	CompletedAt  *time.Time
	ExecuteAfter *time.Time
	Output       *StepOutput
	Error        string
}
