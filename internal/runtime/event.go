package runtime

import (
	"context"
	"log/slog"
	"time"

	"github.com/driaug/plunk/internal/domain"
	"github.com/driaug/plunk/internal/perr"
	"github.com/driaug/plunk/internal/queue"
)

// HandleEvent resumes every WAITING WAIT_FOR_EVENT StepExecution matching
// (projectID, eventName[, contactID]). Each match is resumed independently;
// one failing to resume does not block the others.
func (e *Engine) HandleEvent(ctx context.Context, projectID, eventName, contactID string, data map[string]any) error {
	waiting, err := e.store.WaitingForEvent(ctx, projectID, eventName, contactID)
	if err != nil {
		return err
	}
	for i := range waiting {
		se := waiting[i]
		if err := e.resumeWaiting(ctx, projectID, eventName, &se, data); err != nil {
			e.logErr("failed to resume waiting step execution", err, slog.String("step_execution_id", se.ID))
		}
	}
	return nil
}

// resumeWaiting completes a single WAITING StepExecution with the matched
// event's data, cancels its pending timeout job, records the event payload
// on the execution's context for downstream CONDITION steps, and follows
// the "yes" branch transition.
func (e *Engine) resumeWaiting(ctx context.Context, projectID, eventName string, se *domain.StepExecution, data map[string]any) error {
	if se.Status != domain.StepWaiting {
		return nil
	}

	exec, err := e.store.GetExecution(ctx, se.ExecutionID)
	if err != nil {
		return err
	}
	if exec.Status.Terminal() {
		return nil
	}

	wf, err := e.store.GetWorkflow(ctx, exec.WorkflowID)
	if err != nil {
		return err
	}

	if _, err := e.queue.Cancel(ctx, queue.TimeoutKey(se.ID)); err != nil {
		e.logErr("failed to cancel timeout job on event resume", err, slog.String("step_execution_id", se.ID))
	}

	if exec.Context == nil {
		exec.Context = make(map[string]any)
	}
	exec.Context["data"] = data

	now := time.Now()
	se.Status = domain.StepCompleted
	se.CompletedAt = &now
	se.Output = &domain.StepOutput{Success: true, Branch: "yes", Data: data}
	if err := e.store.PutWaitingStepExecution(ctx, *se, projectID, eventName); err != nil {
		return err
	}

	exec.Status = domain.ExecutionRunning
	if err := e.store.PutExecution(ctx, *exec); err != nil {
		return err
	}

	return e.advance(ctx, wf, exec, se, stepResult{output: se.Output})
}

// ProcessTimeout fires the timeout branch of a WAIT_FOR_EVENT step whose
// ExecuteAfter has elapsed without a matching event. If the StepExecution
// already resumed (or the execution already finished) first, this is a
// no-op: the timeout job lost the race, which is expected and not an error.
func (e *Engine) ProcessTimeout(ctx context.Context, executionID, stepID, stepExecutionID string) error {
	se, err := e.store.GetStepExecution(ctx, stepExecutionID)
	if err != nil {
		return err
	}
	if se.Status != domain.StepWaiting {
		return &perr.ConcurrencyNoOpError{Resource: "step_execution", ID: stepExecutionID, Reason: "already resumed or no longer waiting"}
	}

	exec, err := e.store.GetExecution(ctx, executionID)
	if err != nil {
		return err
	}
	if exec.Status.Terminal() {
		return &perr.ConcurrencyNoOpError{Resource: "execution", ID: executionID, Reason: "already " + string(exec.Status)}
	}

	wf, err := e.store.GetWorkflow(ctx, exec.WorkflowID)
	if err != nil {
		return err
	}
	step, ok := stepByID(wf, stepID)
	if !ok {
		return &perr.ValidationError{Field: "stepId", Message: "step " + stepID + " not found in workflow " + wf.ID}
	}
	var cfg domain.WaitForEventConfig
	if err := decodeConfig(step.Config, &cfg); err != nil {
		return err
	}

	now := time.Now()
	se.Status = domain.StepCompleted
	se.CompletedAt = &now
	se.Output = &domain.StepOutput{Success: true, Branch: "timeout"}
	if err := e.store.PutWaitingStepExecution(ctx, *se, wf.ProjectID, cfg.EventName); err != nil {
		return err
	}

	exec.Status = domain.ExecutionRunning
	if err := e.store.PutExecution(ctx, *exec); err != nil {
		return err
	}

	transition, ok := selectTimeoutTransition(wf, step.ID)
	return e.applyTransition(ctx, wf, exec, transition, ok)
}

// ProcessDelay resumes a DELAY step whose timer has elapsed. The step
// itself already completed when the delay was first dispatched (advance
// marked it COMPLETED and put the execution WAITING); this only runs once
// the scheduled resume job fires, flipping the execution back to RUNNING
// and following the transition out of the delayed step. If the execution
// already finished, or isn't WAITING on this delay, the job lost a race
// and is a no-op, not an error.
func (e *Engine) ProcessDelay(ctx context.Context, executionID, stepID, stepExecutionID string) error {
	se, err := e.store.GetStepExecution(ctx, stepExecutionID)
	if err != nil {
		return err
	}
	if se.Status != domain.StepCompleted {
		return &perr.ConcurrencyNoOpError{Resource: "step_execution", ID: stepExecutionID, Reason: "not a completed DELAY step"}
	}

	exec, err := e.store.GetExecution(ctx, executionID)
	if err != nil {
		return err
	}
	if exec.Status.Terminal() {
		return &perr.ConcurrencyNoOpError{Resource: "execution", ID: executionID, Reason: "already " + string(exec.Status)}
	}
	if exec.Status != domain.ExecutionWaiting {
		return &perr.ConcurrencyNoOpError{Resource: "execution", ID: executionID, Reason: "not currently WAITING on a delay"}
	}

	wf, err := e.store.GetWorkflow(ctx, exec.WorkflowID)
	if err != nil {
		return err
	}

	exec.Status = domain.ExecutionRunning
	if err := e.store.PutExecution(ctx, *exec); err != nil {
		return err
	}

	transition, ok := selectTransition(wf, stepID, se.Output)
	return e.applyTransition(ctx, wf, exec, transition, ok)
}
