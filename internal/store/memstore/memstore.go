// Package memstore is the in-memory Store implementation used by tests and
// single-process deployments. It deep-copies on every read and write (via
// a JSON round-trip) so callers can freely mutate returned values without
// corrupting internal state, and maintains the (projectId, eventName)
// side-index internal/eventrouter's HandleEvent needs.
package memstore

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/driaug/plunk/internal/domain"
	"github.com/driaug/plunk/internal/perr"
)

// Store is the in-memory implementation of store.Store.
type Store struct {
	mu sync.RWMutex

	workflows       map[string]domain.Workflow
	executions      map[string]domain.WorkflowExecution
	stepExecutions  map[string]domain.StepExecution
	emails          map[string]domain.Email
	campaigns       map[string]domain.Campaign
	segments        map[string]domain.Segment
	events          []domain.Event
	contacts        map[string]domain.Contact

	// nonTerminalSE indexes the single non-terminal StepExecution per
	// (executionID, stepID), keyed "executionID|stepID".
	nonTerminalSE map[string]string

	// waitingEvent indexes WAITING WAIT_FOR_EVENT StepExecutions by
	// "projectID|eventName" -> set of stepExecutionIDs.
	waitingEvent map[string]map[string]struct{}
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		workflows:      make(map[string]domain.Workflow),
		executions:     make(map[string]domain.WorkflowExecution),
		stepExecutions: make(map[string]domain.StepExecution),
		emails:         make(map[string]domain.Email),
		campaigns:      make(map[string]domain.Campaign),
		segments:       make(map[string]domain.Segment),
		contacts:       make(map[string]domain.Contact),
		nonTerminalSE:  make(map[string]string),
		waitingEvent:   make(map[string]map[string]struct{}),
	}
}

func deepCopy[T any](v T) T {
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}

// --- Workflows ---

func (s *Store) GetWorkflow(_ context.Context, id string) (*domain.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.workflows[id]
	if !ok {
		return nil, &perr.NotFoundError{Resource: "workflow", ID: id}
	}
	cp := deepCopy(w)
	return &cp, nil
}

func (s *Store) EnabledByTrigger(_ context.Context, projectID, eventName string) ([]domain.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Workflow
	for _, w := range s.workflows {
		if w.ProjectID == projectID && w.Enabled && w.TriggerEventName == eventName {
			out = append(out, deepCopy(w))
		}
	}
	return out, nil
}

func (s *Store) PutWorkflow(_ context.Context, w domain.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workflows[w.ID] = deepCopy(w)
	return nil
}

// --- Executions ---

func (s *Store) GetExecution(_ context.Context, id string) (*domain.WorkflowExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.executions[id]
	if !ok {
		return nil, &perr.NotFoundError{Resource: "execution", ID: id}
	}
	cp := deepCopy(e)
	return &cp, nil
}

func (s *Store) PutExecution(_ context.Context, e domain.WorkflowExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executions[e.ID] = deepCopy(e)
	return nil
}

func (s *Store) RunningExecution(_ context.Context, workflowID, contactID string) (*domain.WorkflowExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.executions {
		if e.WorkflowID == workflowID && e.ContactID == contactID && e.Status == domain.ExecutionRunning {
			cp := deepCopy(e)
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Store) AnyExecution(_ context.Context, workflowID, contactID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.executions {
		if e.WorkflowID == workflowID && e.ContactID == contactID {
			return true, nil
		}
	}
	return false, nil
}

// --- Step executions ---

func (s *Store) GetStepExecution(_ context.Context, id string) (*domain.StepExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	se, ok := s.stepExecutions[id]
	if !ok {
		return nil, &perr.NotFoundError{Resource: "step_execution", ID: id}
	}
	cp := deepCopy(se)
	return &cp, nil
}

func (s *Store) StepExecutionFor(_ context.Context, executionID, stepID string) (*domain.StepExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.nonTerminalSE[nonTerminalKey(executionID, stepID)]
	if !ok {
		return nil, nil
	}
	se := s.stepExecutions[id]
	cp := deepCopy(se)
	return &cp, nil
}

func (s *Store) PutStepExecution(ctx context.Context, se domain.StepExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putStepExecutionLocked(se)
	return nil
}

func (s *Store) putStepExecutionLocked(se domain.StepExecution) {
	s.stepExecutions[se.ID] = deepCopy(se)

	key := nonTerminalKey(se.ExecutionID, se.StepID)
	if se.Status.NonTerminal() {
		s.nonTerminalSE[key] = se.ID
	} else if s.nonTerminalSE[key] == se.ID {
		delete(s.nonTerminalSE, key)
	}
}

func nonTerminalKey(executionID, stepID string) string {
	return executionID + "|" + stepID
}

func waitingKey(projectID, eventName string) string {
	return projectID + "|" + eventName
}

// PutWaitingStepExecution persists se and maintains the (projectID,
// eventName) waiting-event index: indexed while se.Status is WAITING,
// removed otherwise (resumed by event, fired by timeout, or failed).
func (s *Store) PutWaitingStepExecution(_ context.Context, se domain.StepExecution, projectID, eventName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.putStepExecutionLocked(se)

	key := waitingKey(projectID, eventName)
	if se.Status == domain.StepWaiting {
		if s.waitingEvent[key] == nil {
			s.waitingEvent[key] = make(map[string]struct{})
		}
		s.waitingEvent[key][se.ID] = struct{}{}
	} else if set, ok := s.waitingEvent[key]; ok {
		delete(set, se.ID)
	}
	return nil
}

func (s *Store) TryAdvance(_ context.Context, stepExecutionID string, from, to domain.StepExecutionStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	se, ok := s.stepExecutions[stepExecutionID]
	if !ok {
		return false, &perr.NotFoundError{Resource: "step_execution", ID: stepExecutionID}
	}
	if se.Status != from {
		return false, nil
	}
	se.Status = to
	s.putStepExecutionLocked(se)
	return true, nil
}

func (s *Store) WaitingForEvent(_ context.Context, projectID, eventName, contactID string) ([]domain.StepExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set := s.waitingEvent[waitingKey(projectID, eventName)]
	out := make([]domain.StepExecution, 0, len(set))
	for id := range set {
		se, ok := s.stepExecutions[id]
		if !ok || se.Status != domain.StepWaiting {
			continue
		}
		if contactID != "" {
			exec, ok := s.executions[se.ExecutionID]
			if !ok || exec.ContactID != contactID {
				continue
			}
		}
		out = append(out, deepCopy(se))
	}
	return out, nil
}

// --- Emails ---

func (s *Store) GetEmail(_ context.Context, id string) (*domain.Email, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.emails[id]
	if !ok {
		return nil, &perr.NotFoundError{Resource: "email", ID: id}
	}
	cp := deepCopy(e)
	return &cp, nil
}

func (s *Store) PutEmail(_ context.Context, e domain.Email) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emails[e.ID] = deepCopy(e)
	return nil
}

func (s *Store) RecentEmails(_ context.Context, projectID, contactID string, start, end time.Time, limit int) ([]domain.Email, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Email
	for _, e := range s.emails {
		if e.ProjectID != projectID {
			continue
		}
		if contactID != "" && e.ContactID != contactID {
			continue
		}
		if ts := emailTimestamp(e); ts == nil || ts.Before(start) || ts.After(end) {
			continue
		}
		out = append(out, deepCopy(e))
	}
	sort.Slice(out, func(i, j int) bool {
		return emailTimestamp(out[i]).After(*emailTimestamp(out[j]))
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func emailTimestamp(e domain.Email) *time.Time {
	switch {
	case e.ClickedAt != nil:
		return e.ClickedAt
	case e.OpenedAt != nil:
		return e.OpenedAt
	case e.DeliveredAt != nil:
		return e.DeliveredAt
	case e.BouncedAt != nil:
		return e.BouncedAt
	case e.SentAt != nil:
		return e.SentAt
	default:
		return nil
	}
}

// --- Campaigns / Segments ---

func (s *Store) GetCampaign(_ context.Context, id string) (*domain.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.campaigns[id]
	if !ok {
		return nil, &perr.NotFoundError{Resource: "campaign", ID: id}
	}
	cp := deepCopy(c)
	return &cp, nil
}

func (s *Store) PutCampaign(_ context.Context, c domain.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.campaigns[c.ID] = deepCopy(c)
	return nil
}

func (s *Store) GetSegment(_ context.Context, id string) (*domain.Segment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seg, ok := s.segments[id]
	if !ok {
		return nil, &perr.NotFoundError{Resource: "segment", ID: id}
	}
	cp := deepCopy(seg)
	return &cp, nil
}

// PutSegment is a test/seed helper; segments are authored out-of-band.
func (s *Store) PutSegment(seg domain.Segment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.segments[seg.ID] = deepCopy(seg)
}

func (s *Store) AudiencePage(_ context.Context, projectID string, filters []domain.AudienceFilter, cursor string, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for _, c := range s.contacts {
		if c.ProjectID != projectID || !c.Subscribed {
			continue
		}
		if cursor != "" && c.ID <= cursor {
			continue
		}
		if !matchFilters(filters, c.Data) {
			continue
		}
		ids = append(ids, c.ID)
	}
	sort.Strings(ids)
	if len(ids) > limit+1 {
		ids = ids[:limit+1]
	}
	return ids, nil
}

func matchFilters(filters []domain.AudienceFilter, data map[string]any) bool {
	for _, f := range filters {
		val, ok := data[f.Field]
		if !ok {
			return false
		}
		if !compareForAudience(f.Operator, val, f.Value) {
			return false
		}
	}
	return true
}

// compareForAudience is a tiny local reimplementation of the required
// operator table limited to equals/notEquals (the only operators
// AudienceFilter needs); the full table lives in internal/condition and is
// used directly by CONDITION steps.
func compareForAudience(op domain.ConditionOperator, actual, expected any) bool {
	switch op {
	case domain.OpNotEquals:
		return actual != expected
	default:
		return actual == expected
	}
}

// --- Events ---

func (s *Store) AppendEvent(_ context.Context, e domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, deepCopy(e))
	return nil
}

func (s *Store) RecentEvents(_ context.Context, projectID, contactID string, start, end time.Time, limit int) ([]domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Event
	for _, e := range s.events {
		if e.ProjectID != projectID {
			continue
		}
		if contactID != "" && e.ContactID != contactID {
			continue
		}
		if e.CreatedAt.Before(start) || e.CreatedAt.After(end) {
			continue
		}
		out = append(out, deepCopy(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) RecentExecutions(_ context.Context, projectID, contactID string, start, end time.Time, limit int) ([]domain.WorkflowExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.WorkflowExecution
	for _, e := range s.executions {
		w, ok := s.workflows[e.WorkflowID]
		if !ok || w.ProjectID != projectID {
			continue
		}
		if contactID != "" && e.ContactID != contactID {
			continue
		}
		if e.StartedAt.Before(start) || e.StartedAt.After(end) {
			continue
		}
		out = append(out, deepCopy(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- Contacts ---

func (s *Store) GetContact(_ context.Context, id string) (*domain.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contacts[id]
	if !ok {
		return nil, &perr.NotFoundError{Resource: "contact", ID: id}
	}
	cp := deepCopy(c)
	return &cp, nil
}

// PutContact is a test/seed helper; contacts are owned by an external
// collaborator in production.
func (s *Store) PutContact(c domain.Contact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contacts[c.ID] = deepCopy(c)
}

func (s *Store) MergeContactData(_ context.Context, id string, updates map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.contacts[id]
	if !ok {
		return &perr.NotFoundError{Resource: "contact", ID: id}
	}
	if c.Data == nil {
		c.Data = make(map[string]any)
	}
	for k, v := range updates {
		c.Data[k] = v
	}
	c.UpdatedAt = time.Now()
	s.contacts[id] = deepCopy(c)
	return nil
}
