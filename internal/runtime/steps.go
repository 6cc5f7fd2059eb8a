package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/driaug/plunk/internal/condition"
	"github.com/driaug/plunk/internal/domain"
	"github.com/driaug/plunk/internal/perr"
	"github.com/driaug/plunk/internal/render"
)

// stepResult is the internal outcome of dispatching one Step, before
// process.go persists it. Exactly one of (output, suspend, exit) applies.
type stepResult struct {
	output *domain.StepOutput

	suspend      bool // WAIT_FOR_EVENT: StepExecution itself becomes WAITING
	executeAfter *time.Time
	waitEvent    string

	resumeDelay time.Duration // DELAY: gap before the next step's job fires

	exit       bool // EXIT: execution becomes EXITED
	exitReason string
}

func decodeConfig(raw map[string]any, out any) error {
	b, err := json.Marshal(raw)
	if err != nil {
		return &perr.ValidationError{Field: "config", Message: err.Error()}
	}
	if err := json.Unmarshal(b, out); err != nil {
		return &perr.ValidationError{Field: "config", Message: err.Error()}
	}
	return nil
}

// eventData returns the most recent event payload carried in an
// execution's Context, under the "data" key — set by StartExecution's
// trigger event and by HandleEvent on every resume — for CONDITION steps
// that branch on `{data....}`.
func eventData(execContext map[string]any) map[string]any {
	if v, ok := execContext["data"].(map[string]any); ok {
		return v
	}
	return map[string]any{}
}

func (e *Engine) dispatchStep(ctx context.Context, wf *domain.Workflow, step domain.Step, exec *domain.WorkflowExecution, contact *domain.Contact) (stepResult, error) {
	switch step.Type {
	case domain.StepTrigger:
		return e.handleTrigger()
	case domain.StepSendEmail:
		return e.handleSendEmail(ctx, wf, step, exec, contact)
	case domain.StepDelay:
		return e.handleDelay(step)
	case domain.StepWaitForEvent:
		return e.handleWaitForEvent(step)
	case domain.StepCondition:
		return e.handleCondition(step, exec, contact)
	case domain.StepExit:
		return e.handleExit(step)
	case domain.StepWebhook:
		return e.handleWebhook(ctx, wf, step, exec, contact)
	case domain.StepUpdateContact:
		return e.handleUpdateContact(ctx, step, exec)
	default:
		return stepResult{}, &perr.ValidationError{Field: "type", Message: fmt.Sprintf("unknown step type %q", step.Type)}
	}
}

func (e *Engine) handleTrigger() (stepResult, error) {
	return stepResult{output: &domain.StepOutput{Success: true}}, nil
}

func (e *Engine) handleSendEmail(ctx context.Context, wf *domain.Workflow, step domain.Step, exec *domain.WorkflowExecution, contact *domain.Contact) (stepResult, error) {
	if step.TemplateRef == "" {
		return stepResult{}, &perr.ValidationError{Field: "templateRef", Message: "SEND_EMAIL step requires a templateRef"}
	}
	if e.templates == nil {
		return stepResult{}, &perr.ConfigError{Key: "templates", Reason: "no template provider configured"}
	}

	tmpl, err := e.templates.GetTemplate(ctx, step.TemplateRef)
	if err != nil {
		return stepResult{}, err
	}

	root := render.Flatten(map[string]any{"email": contact.Email}, contact.Data, exec.Context)
	subject := render.Render(tmpl.Subject, root)
	body := render.Render(tmpl.Body, root)

	sourceType := domain.SourceWorkflow
	if tmpl.Transactional {
		sourceType = domain.SourceTransactional
	}

	email := domain.Email{
		ID:                      uuid.NewString(),
		ProjectID:               wf.ProjectID,
		ContactID:               exec.ContactID,
		TemplateRef:             step.TemplateRef,
		WorkflowExecutionID:     exec.ID,
		WorkflowStepExecutionID: step.ID,
		SourceType:              sourceType,
		Subject:                 subject,
		Body:                    body,
		Status:                  domain.EmailPending,
	}
	if err := e.store.PutEmail(ctx, email); err != nil {
		return stepResult{}, err
	}

	if err := e.enqueueSendEmail(ctx, email.ID); err != nil {
		return stepResult{}, err
	}
	if e.metrics != nil {
		e.metrics.RecordEmailEnqueued(ctx, string(sourceType))
	}

	return stepResult{output: &domain.StepOutput{Success: true, Data: map[string]any{"emailId": email.ID}}}, nil
}

func (e *Engine) handleDelay(step domain.Step) (stepResult, error) {
	var cfg domain.DelayConfig
	if err := decodeConfig(step.Config, &cfg); err != nil {
		return stepResult{}, err
	}
	if cfg.Amount <= 0 {
		return stepResult{}, &perr.ValidationError{Field: "amount", Message: "DELAY amount must be > 0"}
	}

	var unit time.Duration
	switch cfg.Unit {
	case domain.DelayMinutes:
		unit = time.Minute
	case domain.DelayHours:
		unit = time.Hour
	case domain.DelayDays:
		unit = 24 * time.Hour
	default:
		return stepResult{}, &perr.ValidationError{Field: "unit", Message: fmt.Sprintf("unsupported DELAY unit %q", cfg.Unit)}
	}

	return stepResult{
		output:      &domain.StepOutput{Success: true},
		resumeDelay: time.Duration(cfg.Amount) * unit,
	}, nil
}

func (e *Engine) handleWaitForEvent(step domain.Step) (stepResult, error) {
	var cfg domain.WaitForEventConfig
	if err := decodeConfig(step.Config, &cfg); err != nil {
		return stepResult{}, err
	}
	if cfg.EventName == "" {
		return stepResult{}, &perr.ValidationError{Field: "eventName", Message: "WAIT_FOR_EVENT requires eventName"}
	}

	res := stepResult{suspend: true, waitEvent: cfg.EventName}
	if cfg.Timeout > 0 {
		at := time.Now().Add(time.Duration(cfg.Timeout) * time.Second)
		res.executeAfter = &at
	}
	return res, nil
}

func (e *Engine) handleCondition(step domain.Step, exec *domain.WorkflowExecution, contact *domain.Contact) (stepResult, error) {
	var cfg domain.ConditionConfig
	if err := decodeConfig(step.Config, &cfg); err != nil {
		return stepResult{}, err
	}
	root := condition.Root(contact.Data, eventData(exec.Context), exec.Context)
	branch, err := e.condition.EvaluateStep(cfg, root)
	if err != nil {
		return stepResult{}, err
	}
	return stepResult{output: &domain.StepOutput{Branch: branch, Success: true}}, nil
}

func (e *Engine) handleExit(step domain.Step) (stepResult, error) {
	var cfg domain.ExitConfig
	if err := decodeConfig(step.Config, &cfg); err != nil {
		return stepResult{}, err
	}
	return stepResult{exit: true, exitReason: cfg.Reason}, nil
}

func (e *Engine) handleWebhook(ctx context.Context, wf *domain.Workflow, step domain.Step, exec *domain.WorkflowExecution, contact *domain.Contact) (stepResult, error) {
	if e.webhook == nil {
		return stepResult{}, &perr.ConfigError{Key: "webhook", Reason: "no webhook caller configured"}
	}
	var cfg domain.WebhookConfig
	if err := decodeConfig(step.Config, &cfg); err != nil {
		return stepResult{}, err
	}
	if cfg.Body == nil {
		cfg.Body = map[string]any{
			"contact":   contact,
			"workflow":  map[string]any{"id": wf.ID, "name": wf.Name},
			"execution": map[string]any{"id": exec.ID, "context": exec.Context},
		}
	}

	callStart := time.Now()
	result, err := e.webhook.Call(ctx, cfg)
	if e.metrics != nil {
		statusCode := 0
		ok := false
		if result != nil {
			statusCode = result.StatusCode
			ok = result.OK
		}
		e.metrics.RecordWebhookCall(ctx, err == nil && ok, statusCode, time.Since(callStart))
	}
	if err != nil {
		return stepResult{}, err
	}
	return stepResult{output: &domain.StepOutput{
		Success: result.OK,
		Data: map[string]any{
			"statusCode": result.StatusCode,
			"ok":         result.OK,
			"response":   result.Projected,
		},
	}}, nil
}

func (e *Engine) handleUpdateContact(ctx context.Context, step domain.Step, exec *domain.WorkflowExecution) (stepResult, error) {
	var cfg domain.UpdateContactConfig
	if err := decodeConfig(step.Config, &cfg); err != nil {
		return stepResult{}, err
	}
	if err := e.store.MergeContactData(ctx, exec.ContactID, cfg.Updates); err != nil {
		return stepResult{}, err
	}
	return stepResult{output: &domain.StepOutput{Success: true}}, nil
}
