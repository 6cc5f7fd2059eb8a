package runtime

import (
	"context"
	"fmt"

	"github.com/driaug/plunk/internal/perr"
	"github.com/driaug/plunk/internal/queue"
)

// RegisterHandlers binds the engine's queue.KindProcessStep,
// queue.KindProcessTimeout, and queue.KindProcessDelay handlers onto pool.
// KindSendEmail and the campaign kinds are registered by their own packages
// against the same pool, since delivery and audience fan-out are not this
// engine's concern.
func (e *Engine) RegisterHandlers(pool *queue.Pool) {
	pool.Register(queue.KindProcessStep, e.handleProcessStepJob)
	pool.Register(queue.KindProcessTimeout, e.handleProcessTimeoutJob)
	pool.Register(queue.KindProcessDelay, e.handleProcessDelayJob)
}

func (e *Engine) handleProcessStepJob(ctx context.Context, job *queue.Job) error {
	executionID, stepID, err := stepJobIDs(job)
	if err != nil {
		return err
	}
	return e.ProcessStep(ctx, executionID, stepID)
}

func (e *Engine) handleProcessTimeoutJob(ctx context.Context, job *queue.Job) error {
	executionID, stepID, err := stepJobIDs(job)
	if err != nil {
		return err
	}
	stepExecutionID, ok := job.Payload["stepExecutionId"].(string)
	if !ok || stepExecutionID == "" {
		return &perr.ValidationError{Field: "payload.stepExecutionId", Message: "process_timeout job missing stepExecutionId"}
	}
	return e.ProcessTimeout(ctx, executionID, stepID, stepExecutionID)
}

func (e *Engine) handleProcessDelayJob(ctx context.Context, job *queue.Job) error {
	executionID, stepID, err := stepJobIDs(job)
	if err != nil {
		return err
	}
	stepExecutionID, ok := job.Payload["stepExecutionId"].(string)
	if !ok || stepExecutionID == "" {
		return &perr.ValidationError{Field: "payload.stepExecutionId", Message: "process_delay job missing stepExecutionId"}
	}
	return e.ProcessDelay(ctx, executionID, stepID, stepExecutionID)
}

func stepJobIDs(job *queue.Job) (executionID, stepID string, err error) {
	executionID, ok := job.Payload["executionId"].(string)
	if !ok || executionID == "" {
		return "", "", &perr.ValidationError{Field: "payload.executionId", Message: fmt.Sprintf("%s job missing executionId", job.Kind)}
	}
	stepID, ok = job.Payload["stepId"].(string)
	if !ok || stepID == "" {
		return "", "", &perr.ValidationError{Field: "payload.stepId", Message: fmt.Sprintf("%s job missing stepId", job.Kind)}
	}
	return executionID, stepID, nil
}
