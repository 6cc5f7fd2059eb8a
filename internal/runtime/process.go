package runtime

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/driaug/plunk/internal/domain"
	"github.com/driaug/plunk/internal/log"
	"github.com/driaug/plunk/internal/perr"
	"github.com/driaug/plunk/internal/queue"
	"github.com/driaug/plunk/pkg/observability"
)

// ProcessStep advances one StepExecution: dispatches its Step, persists the
// outcome, and creates+enqueues the next StepExecution per the selected
// Transition. It is the Queue handler for queue.KindProcessStep.
//
// It is safe to deliver more than once for the same (executionId, stepId):
// a PENDING StepExecution only ever advances once, guarded by
// store.TryAdvance, absorbing duplicate concurrent delivery. A StepExecution
// already RUNNING is treated as a retry of a prior attempt whose dispatch
// failed transiently, and is re-dispatched rather than skipped.
func (e *Engine) ProcessStep(ctx context.Context, executionID, stepID string) (err error) {
	if e.tracer != nil {
		var span observability.SpanHandle
		ctx, span = e.tracer.Start(ctx, "ProcessStep", observability.WithAttributes(map[string]any{
			"execution.id": executionID,
			"step.id":      stepID,
		}))
		defer func() {
			if err != nil {
				span.RecordError(err)
			}
			span.End()
		}()
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

	se, err := e.store.StepExecutionFor(ctx, executionID, stepID)
	if err != nil {
		return err
	}
	if se == nil {
		return &perr.ConcurrencyNoOpError{Resource: "step_execution", ID: stepID, Reason: "no non-terminal step execution (already advanced)"}
	}

	switch se.Status {
	case domain.StepPending:
		advanced, err := e.store.TryAdvance(ctx, se.ID, domain.StepPending, domain.StepRunning)
		if err != nil {
			return err
		}
		if !advanced {
			return &perr.ConcurrencyNoOpError{Resource: "step_execution", ID: se.ID, Reason: "concurrent delivery already advanced it"}
		}
		now := time.Now()
		se.Status = domain.StepRunning
		se.StartedAt = &now

		exec.StepCount++
		if exec.StepCount > MaxStepExecutions {
			return e.failExecution(ctx, exec, se, "exceeded maximum step executions for this workflow execution")
		}
		if err := e.store.PutExecution(ctx, *exec); err != nil {
			return err
		}
	case domain.StepRunning:
		// Redelivery after a previous attempt's dispatch error; retry it
		// rather than treating the job as stale.
	default:
		return &perr.ConcurrencyNoOpError{Resource: "step_execution", ID: se.ID, Reason: "already " + string(se.Status)}
	}

	contact, err := e.store.GetContact(ctx, exec.ContactID)
	if err != nil {
		return err
	}

	dispatchStart := time.Now()
	result, dispatchErr := e.dispatchStep(ctx, wf, step, exec, contact)
	if e.metrics != nil {
		e.metrics.RecordStep(ctx, wf.ID, string(step.Type), dispatchErr == nil, time.Since(dispatchStart))
	}
	if dispatchErr != nil {
		if isStepPermanent(dispatchErr) {
			return e.failExecution(ctx, exec, se, dispatchErr.Error())
		}
		se.Error = dispatchErr.Error()
		if err := e.store.PutStepExecution(ctx, *se); err != nil {
			e.logErr("failed to persist step execution error", err, slog.String(log.ExecutionIDKey, exec.ID), slog.String(log.StepIDKey, se.ID))
		}
		return dispatchErr
	}

	return e.advance(ctx, wf, exec, se, result)
}

// advance persists a successfully-dispatched Step's outcome and follows the
// graph: EXIT terminates the execution, WAIT_FOR_EVENT suspends it, and
// everything else selects and enqueues the next Transition.
func (e *Engine) advance(ctx context.Context, wf *domain.Workflow, exec *domain.WorkflowExecution, se *domain.StepExecution, result stepResult) error {
	now := time.Now()

	if result.exit {
		se.Status = domain.StepCompleted
		se.Output = result.output
		se.CompletedAt = &now
		if err := e.store.PutStepExecution(ctx, *se); err != nil {
			return err
		}
		exec.Status = domain.ExecutionExited
		exec.ExitReason = result.exitReason
		exec.CompletedAt = &now
		if err := e.store.PutExecution(ctx, *exec); err != nil {
			return err
		}
		e.recordExecutionComplete(ctx, exec)
		return nil
	}

	if result.suspend {
		se.Status = domain.StepWaiting
		se.ExecuteAfter = result.executeAfter
		if err := e.store.PutWaitingStepExecution(ctx, *se, wf.ProjectID, result.waitEvent); err != nil {
			return err
		}
		exec.Status = domain.ExecutionWaiting
		exec.CurrentStepID = se.StepID
		if err := e.store.PutExecution(ctx, *exec); err != nil {
			return err
		}
		if result.executeAfter != nil {
			return e.enqueueTimeout(ctx, exec.ID, se.StepID, se.ID, time.Until(*result.executeAfter))
		}
		return nil
	}

	se.Status = domain.StepCompleted
	se.Output = result.output
	se.CompletedAt = &now
	if err := e.store.PutStepExecution(ctx, *se); err != nil {
		return err
	}

	if result.resumeDelay > 0 {
		exec.Status = domain.ExecutionWaiting
		if err := e.store.PutExecution(ctx, *exec); err != nil {
			return err
		}
		return e.enqueueDelayResume(ctx, exec.ID, se.StepID, se.ID, result.resumeDelay)
	}

	transition, ok := selectTransition(wf, se.StepID, result.output)
	return e.applyTransition(ctx, wf, exec, transition, ok)
}

// applyTransition creates and enqueues the StepExecution transition targets,
// or completes exec when there is none. Shared by advance's normal-path
// completion, ProcessDelay's resume, and ProcessTimeout's timeout-branch
// selection.
func (e *Engine) applyTransition(ctx context.Context, wf *domain.Workflow, exec *domain.WorkflowExecution, transition domain.Transition, ok bool) error {
	now := time.Now()
	if !ok {
		exec.Status = domain.ExecutionCompleted
		exec.CompletedAt = &now
		if err := e.store.PutExecution(ctx, *exec); err != nil {
			return err
		}
		e.recordExecutionComplete(ctx, exec)
		return nil
	}

	nextStep, ok := stepByID(wf, transition.ToStepID)
	if !ok {
		return &perr.ValidationError{Field: "transitions", Message: "transition targets unknown step " + transition.ToStepID}
	}

	nextSE := domain.StepExecution{
		ID:          uuid.NewString(),
		ExecutionID: exec.ID,
		StepID:      nextStep.ID,
		Status:      domain.StepPending,
	}
	if err := e.store.PutStepExecution(ctx, nextSE); err != nil {
		return err
	}

	exec.Status = domain.ExecutionRunning
	exec.CurrentStepID = nextStep.ID
	if err := e.store.PutExecution(ctx, *exec); err != nil {
		return err
	}

	return e.enqueueStep(ctx, exec.ID, nextStep.ID)
}

// failExecution marks se (if still non-terminal) and exec FAILED with
// reason, used both for a permanent dispatch error and for the runaway
// StepExecution-count guard.
func (e *Engine) failExecution(ctx context.Context, exec *domain.WorkflowExecution, se *domain.StepExecution, reason string) error {
	now := time.Now()
	if se != nil && se.Status.NonTerminal() {
		se.Status = domain.StepFailed
		se.Error = reason
		se.CompletedAt = &now
		if err := e.store.PutStepExecution(ctx, *se); err != nil {
			e.logErr("failed to persist failed step execution", err, slog.String(log.ExecutionIDKey, exec.ID), slog.String(log.StepIDKey, se.ID))
		}
	}
	exec.Status = domain.ExecutionFailed
	exec.ExitReason = reason
	exec.CompletedAt = &now
	if err := e.store.PutExecution(ctx, *exec); err != nil {
		return err
	}
	e.recordExecutionComplete(ctx, exec)
	return nil
}

// FailFromDeadLetter marks the WorkflowExecution driving a dead-lettered
// queue.KindProcessStep/KindProcessTimeout/KindProcessDelay job FAILED.
// Wired as the queue.Pool's onExhausted callback so a StepExecution stuck
// RUNNING or WAITING on a job that exhausted its retries doesn't sit there
// forever with no path to a terminal state. A job already racing past this
// (execution finished by some other path first) is a no-op.
func (e *Engine) FailFromDeadLetter(ctx context.Context, job *queue.Job, reason string) error {
	executionID, _ := job.Payload["executionId"].(string)
	if executionID == "" {
		return nil
	}
	exec, err := e.store.GetExecution(ctx, executionID)
	if err != nil {
		return err
	}
	if exec.Status.Terminal() {
		return nil
	}

	var se *domain.StepExecution
	if stepID, _ := job.Payload["stepId"].(string); stepID != "" {
		se, err = e.store.StepExecutionFor(ctx, executionID, stepID)
		if err != nil {
			return err
		}
	}
	return e.failExecution(ctx, exec, se, "job dead-lettered: "+reason)
}

// recordExecutionComplete reports exec's terminal status and total duration
// to the metrics collector, if one is configured.
func (e *Engine) recordExecutionComplete(ctx context.Context, exec *domain.WorkflowExecution) {
	if e.metrics == nil {
		return
	}
	e.metrics.RecordExecutionComplete(ctx, exec.ID, exec.WorkflowID, string(exec.Status), time.Since(exec.StartedAt))
}

// isStepPermanent mirrors internal/queue's own permanent-error
// classification: a step dispatch error that will never succeed on retry
// fails the execution immediately instead of leaving it RUNNING for the
// queue to redeliver against.
func isStepPermanent(err error) bool {
	return perr.IsValidation(err) || perr.IsNotFound(err) || perr.IsInvalidState(err)
}
