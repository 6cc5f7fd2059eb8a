package campaign

import (
	"context"

	"github.com/driaug/plunk/internal/domain"
	"github.com/driaug/plunk/internal/perr"
	"github.com/driaug/plunk/internal/queue"
)

// RegisterHandlers binds queue.KindStartCampaign and queue.KindCampaignBatch
// onto pool.
func (e *Engine) RegisterHandlers(pool *queue.Pool) {
	pool.Register(queue.KindStartCampaign, e.handleStartCampaignJob)
	pool.Register(queue.KindCampaignBatch, e.handleCampaignBatchJob)
}

func (e *Engine) handleStartCampaignJob(ctx context.Context, job *queue.Job) error {
	campaignID, ok := job.Payload["campaignId"].(string)
	if !ok || campaignID == "" {
		return &perr.ValidationError{Field: "payload.campaignId", Message: "start_campaign job missing campaignId"}
	}
	return e.StartSending(ctx, campaignID)
}

func (e *Engine) handleCampaignBatchJob(ctx context.Context, job *queue.Job) error {
	campaignID, ok := job.Payload["campaignId"].(string)
	if !ok || campaignID == "" {
		return &perr.ValidationError{Field: "payload.campaignId", Message: "campaign_batch job missing campaignId"}
	}
	batchNumber, _ := toInt(job.Payload["batchNumber"])
	limit, _ := toInt(job.Payload["limit"])
	if limit <= 0 {
		limit = e.batchSize
	}
	cursor, _ := job.Payload["cursor"].(string)
	return e.ProcessBatch(ctx, campaignID, batchNumber, limit, cursor)
}

// FailFromDeadLetter marks the Campaign driving a dead-lettered
// queue.KindStartCampaign/KindCampaignBatch job FAILED. Wired as the
// queue.Pool's onExhausted callback so a campaign whose batch chain hits a
// job that exhausts its retries doesn't sit in SENDING (or SCHEDULED, for
// a start job) forever with no further batch ever enqueued. A campaign
// that already reached a terminal status by some other path is a no-op.
func (e *Engine) FailFromDeadLetter(ctx context.Context, job *queue.Job, reason string) error {
	campaignID, _ := job.Payload["campaignId"].(string)
	if campaignID == "" {
		return nil
	}
	c, err := e.store.GetCampaign(ctx, campaignID)
	if err != nil {
		return err
	}
	if c.Status != domain.CampaignSending && c.Status != domain.CampaignScheduled {
		return nil
	}
	c.Status = domain.CampaignFailed
	c.Error = reason
	return e.store.PutCampaign(ctx, *c)
}

// toInt handles the int/float64 split a Job.Payload value can arrive in:
// set directly as int by this package's own enqueueBatch, or decoded from
// JSON (sqlite-backed queue persistence, if added later) as float64.
func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
