package domain

import "time"

// AudienceType determines how a Campaign's recipient set is computed.
type AudienceType string

const (
	AudienceAll      AudienceType = "ALL"
	AudienceSegment  AudienceType = "SEGMENT"
	AudienceFiltered AudienceType = "FILTERED"
)

// CampaignStatus tracks a Campaign's lifecycle. Mutation (subject, body,
// audience) is only permitted in DRAFT or SCHEDULED.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "DRAFT"
	CampaignScheduled CampaignStatus = "SCHEDULED"
	CampaignSending   CampaignStatus = "SENDING"
	CampaignSent      CampaignStatus = "SENT"
	CampaignCancelled CampaignStatus = "CANCELLED"
	CampaignFailed    CampaignStatus = "FAILED"
)

// AudienceFilter is one predicate in a Segment's or Campaign's inline filter
// list; filters AND together over contact.data.
type AudienceFilter struct {
	Field    string
	Operator ConditionOperator
	Value    any
}

// Campaign is one template fanned out to a computed audience in batches.
type Campaign struct {
	ID             string
	ProjectID      string
	Name           string
	Subject        string
	Body           string
	From           string
	ReplyTo        string
	AudienceType   AudienceType
	SegmentID      string
	AudienceFilter []AudienceFilter
	Transactional  bool // exempt from the unsubscribe footer
	Status         CampaignStatus
	ScheduledFor   *time.Time
	TotalRecipients int
	SentCount      int
	DeliveredCount int
	OpenedCount    int
	ClickedCount   int
	BouncedCount   int
	SentAt         *time.Time
	Error          string // set when Status is FAILED
}

// DeliveryRate is deliveredCount/sentCount, 0 when sentCount is 0 — it
// never silently reads as 100% before any bounces are recorded.
func (c Campaign) DeliveryRate() float64 {
	if c.SentCount == 0 {
		return 0
	}
	return float64(c.DeliveredCount) / float64(c.SentCount)
}

// Segment is a saved AudienceFilter list reused across SEGMENT campaigns.
type Segment struct {
	ID        string
	ProjectID string
	Name      string
	Filters   []AudienceFilter
}
