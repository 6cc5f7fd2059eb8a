// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package runtime is the workflow execution engine: ProcessStep advances one
// StepExecution at a time, HandleEvent resumes WAITING WAIT_FOR_EVENT steps,
// ProcessTimeout fires their timeout branch, and StartExecution begins a new
// traversal of a Workflow for a Contact. Every suspension persists state and
// returns; the engine holds no in-memory wait.
package runtime

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/driaug/plunk/internal/condition"
	"github.com/driaug/plunk/internal/domain"
	"github.com/driaug/plunk/internal/log"
	"github.com/driaug/plunk/internal/metrics"
	"github.com/driaug/plunk/internal/perr"
	"github.com/driaug/plunk/internal/queue"
	"github.com/driaug/plunk/internal/store"
	"github.com/driaug/plunk/internal/webhook"
	"github.com/driaug/plunk/pkg/observability"
)

// MaxStepExecutions is the runaway guard: a single WorkflowExecution that
// crosses this many StepExecutions is treated as a malformed cyclic
// graph, not a long-running legitimate flow.
const MaxStepExecutions = 10000

// Engine wires the Store, Queue, and step-behavior collaborators together.
type Engine struct {
	store     store.Store
	queue     queue.Queue
	condition *condition.Evaluator
	webhook   *webhook.Caller
	templates TemplateProvider
	metrics   *metrics.Collector
	tracer    observability.Tracer
	logger    *slog.Logger
}

// New builds an Engine. wh may be nil if no WEBHOOK steps are expected to
// run (calling one without a Caller returns a ConfigError). templates may
// be nil if no SEND_EMAIL steps are expected to run, for the same reason.
// mc may be nil to run without metrics instrumentation. tracer may be nil
// to run without span instrumentation.
func New(st store.Store, q queue.Queue, cond *condition.Evaluator, wh *webhook.Caller, templates TemplateProvider, mc *metrics.Collector, tracer observability.Tracer, logger *slog.Logger) *Engine {
	if cond == nil {
		cond = condition.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:     st,
		queue:     q,
		condition: cond,
		webhook:   wh,
		templates: templates,
		metrics:   mc,
		tracer:    tracer,
		logger:    log.WithComponent(logger, "runtime"),
	}
}

// StartExecution begins a new traversal of workflowId for contactId,
// honoring the Workflow's re-entry policy.
func (e *Engine) StartExecution(ctx context.Context, workflowID, contactID string, execContext map[string]any) (*domain.WorkflowExecution, error) {
	wf, err := e.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if !wf.Enabled {
		return nil, &perr.InvalidStateError{Resource: "workflow", ID: workflowID, State: "disabled", Want: "enabled"}
	}

	if wf.AllowReentry {
		running, err := e.store.RunningExecution(ctx, workflowID, contactID)
		if err != nil {
			return nil, err
		}
		if running != nil {
			return nil, &perr.InvalidStateError{Resource: "execution", ID: running.ID, State: "RUNNING", Want: "no running execution (allowReentry=true still refuses concurrent runs)"}
		}
	} else {
		exists, err := e.store.AnyExecution(ctx, workflowID, contactID)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, &perr.InvalidStateError{Resource: "workflow", ID: workflowID, State: "already executed for contact", Want: "allowReentry=true to re-enter"}
		}
	}

	triggerStep, ok := findStep(wf, domain.StepTrigger)
	if !ok {
		return nil, &perr.ValidationError{Field: "steps", Message: "workflow has no TRIGGER step"}
	}

	if execContext == nil {
		execContext = make(map[string]any)
	}
	exec := domain.WorkflowExecution{
		ID:            uuid.NewString(),
		WorkflowID:    workflowID,
		ContactID:     contactID,
		Status:        domain.ExecutionRunning,
		CurrentStepID: triggerStep.ID,
		StartedAt:     time.Now(),
		Context:       execContext,
	}
	if err := e.store.PutExecution(ctx, exec); err != nil {
		return nil, err
	}

	se := domain.StepExecution{
		ID:          uuid.NewString(),
		ExecutionID: exec.ID,
		StepID:      triggerStep.ID,
		Status:      domain.StepPending,
	}
	if err := e.store.PutStepExecution(ctx, se); err != nil {
		return nil, err
	}

	if err := e.enqueueStep(ctx, exec.ID, triggerStep.ID); err != nil {
		return nil, err
	}
	if e.metrics != nil {
		e.metrics.RecordExecutionStart(ctx, exec.ID, workflowID)
	}
	return &exec, nil
}

func findStep(wf *domain.Workflow, t domain.StepType) (domain.Step, bool) {
	for _, s := range wf.Steps {
		if s.Type == t {
			return s, true
		}
	}
	return domain.Step{}, false
}

func (e *Engine) enqueueStep(ctx context.Context, executionID, stepID string) error {
	return e.queue.Enqueue(ctx, &queue.Job{
		ID:     uuid.NewString(),
		Kind:   queue.KindProcessStep,
		FireAt: time.Now(),
		Payload: map[string]any{
			"executionId": executionID,
			"stepId":      stepID,
		},
	})
}

func (e *Engine) enqueueTimeout(ctx context.Context, executionID, stepID, stepExecutionID string, delay time.Duration) error {
	return e.queue.Enqueue(ctx, &queue.Job{
		ID:     uuid.NewString(),
		Kind:   queue.KindProcessTimeout,
		Key:    queue.TimeoutKey(stepExecutionID),
		FireAt: time.Now().Add(delay),
		Payload: map[string]any{
			"executionId":     executionID,
			"stepId":          stepID,
			"stepExecutionId": stepExecutionID,
		},
	})
}

// enqueueDelayResume schedules the job that resumes a DELAY step's
// execution once its timer elapses, flipping the execution back to
// RUNNING and following the normal (non-timeout) transition from the
// step the delay completed on.
func (e *Engine) enqueueDelayResume(ctx context.Context, executionID, stepID, stepExecutionID string, delay time.Duration) error {
	return e.queue.Enqueue(ctx, &queue.Job{
		ID:     uuid.NewString(),
		Kind:   queue.KindProcessDelay,
		FireAt: time.Now().Add(delay),
		Payload: map[string]any{
			"executionId":     executionID,
			"stepId":          stepID,
			"stepExecutionId": stepExecutionID,
		},
	})
}

func (e *Engine) enqueueSendEmail(ctx context.Context, emailID string) error {
	return e.queue.Enqueue(ctx, &queue.Job{
		ID:      uuid.NewString(),
		Kind:    queue.KindSendEmail,
		FireAt:  time.Now(),
		Payload: map[string]any{"emailId": emailID},
	})
}

func (e *Engine) logErr(msg string, err error, attrs ...slog.Attr) {
	args := make([]any, 0, len(attrs)+2)
	args = append(args, log.Error(err))
	for _, a := range attrs {
		args = append(args, a)
	}
	e.logger.Error(msg, args...)
}
