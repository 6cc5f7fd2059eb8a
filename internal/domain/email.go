package domain

import "time"

// EmailSourceType distinguishes why an Email exists, governing footer/
// compliance rendering downstream (handled by the caller, not this type).
type EmailSourceType string

const (
	SourceTransactional EmailSourceType = "TRANSACTIONAL"
	SourceCampaign      EmailSourceType = "CAMPAIGN"
	SourceWorkflow      EmailSourceType = "WORKFLOW"
)

// EmailStatus tracks delivery progress. Progression is monotone: PENDING ->
// SENDING -> SENT -> (DELIVERED|BOUNCED|FAILED); OPENED/CLICKED/COMPLAINED
// are independent timestamps that may be set once SENT regardless of the
// terminal delivery outcome.
type EmailStatus string

const (
	EmailPending   EmailStatus = "PENDING"
	EmailSending   EmailStatus = "SENDING"
	EmailSent      EmailStatus = "SENT"
	EmailDelivered EmailStatus = "DELIVERED"
	EmailBounced   EmailStatus = "BOUNCED"
	EmailFailed    EmailStatus = "FAILED"
)

// Email is one message dispatched by the core, whether standalone
// transactional, part of a Campaign batch, or emitted by a workflow
// SEND_EMAIL step.
type Email struct {
	ID                      string
	ProjectID               string
	ContactID               string
	TemplateRef             string
	CampaignID              string
	WorkflowExecutionID     string
	WorkflowStepExecutionID string
	SourceType              EmailSourceType
	Subject                 string
	Body                    string
	From                    string
	ReplyTo                 string
	Status                  EmailStatus
	SentAt                  *time.Time
	DeliveredAt             *time.Time
	OpenedAt                *time.Time
	ClickedAt               *time.Time
	BouncedAt               *time.Time
	ComplainedAt            *time.Time
	Opens                   int
	Clicks                  int
	MessageID               string
	Error                   string
}
