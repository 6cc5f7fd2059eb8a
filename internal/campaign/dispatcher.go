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

// Package campaign fans a Campaign's template out to its resolved audience
// in cursor-paginated batches, one batch active at a time per campaign,
// chained by self-enqueueing the next batch's job.
package campaign

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/google/uuid"

	"github.com/driaug/plunk/internal/domain"
	"github.com/driaug/plunk/internal/log"
	"github.com/driaug/plunk/internal/metrics"
	"github.com/driaug/plunk/internal/perr"
	"github.com/driaug/plunk/internal/queue"
	"github.com/driaug/plunk/internal/render"
	"github.com/driaug/plunk/internal/store"
	"github.com/driaug/plunk/pkg/observability"
)

// DefaultBatchSize is the number of contacts ProcessBatch pages per call.
const DefaultBatchSize = 500

// DefaultSendConcurrency bounds per-batch fan-out: a semaphore of 20
// concurrent sends by default.
const DefaultSendConcurrency = 20

// Engine drives Campaign Send/StartSending/ProcessBatch/Cancel.
type Engine struct {
	store           store.Store
	queue           queue.Queue
	batchSize       int
	sendConcurrency int
	metrics         *metrics.Collector
	tracer          observability.Tracer
	logger          *slog.Logger
}

// New builds an Engine. mc may be nil to run without metrics instrumentation.
// tracer may be nil to run without span instrumentation.
func New(st store.Store, q queue.Queue, batchSize, sendConcurrency int, mc *metrics.Collector, tracer observability.Tracer, logger *slog.Logger) *Engine {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if sendConcurrency <= 0 {
		sendConcurrency = DefaultSendConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:           st,
		queue:           q,
		batchSize:       batchSize,
		sendConcurrency: sendConcurrency,
		metrics:         mc,
		tracer:          tracer,
		logger:          log.WithComponent(logger, "campaign"),
	}
}

// Send validates status, resolves the audience size up front, and either
// schedules or starts sending immediately.
func (e *Engine) Send(ctx context.Context, campaignID string, scheduledFor *time.Time) error {
	c, err := e.store.GetCampaign(ctx, campaignID)
	if err != nil {
		return err
	}
	if c.Status != domain.CampaignDraft && c.Status != domain.CampaignScheduled {
		return &perr.InvalidStateError{Resource: "campaign", ID: campaignID, State: string(c.Status), Want: "DRAFT or SCHEDULED"}
	}

	recipientCount, err := e.countAudience(ctx, *c)
	if err != nil {
		return err
	}
	if recipientCount == 0 {
		return &perr.ValidationError{Field: "audience", Message: "campaign audience resolves to zero recipients"}
	}

	if scheduledFor != nil && scheduledFor.After(time.Now()) {
		c.Status = domain.CampaignScheduled
		c.ScheduledFor = scheduledFor
		c.TotalRecipients = recipientCount
		if err := e.store.PutCampaign(ctx, *c); err != nil {
			return err
		}
		return e.queue.Enqueue(ctx, &queue.Job{
			ID:      uuid.NewString(),
			Kind:    queue.KindStartCampaign,
			Key:     queue.ScheduleKey(campaignID),
			FireAt:  *scheduledFor,
			Payload: map[string]any{"campaignId": campaignID},
		})
	}

	c.TotalRecipients = recipientCount
	if err := e.store.PutCampaign(ctx, *c); err != nil {
		return err
	}
	return e.StartSending(ctx, campaignID)
}

// Cancel handles cancellation. From SCHEDULED it cancels the scheduled
// job outright; from SENDING it flips to CANCELLED and relies
// on the in-flight batch to observe the new status on its next entry.
func (e *Engine) Cancel(ctx context.Context, campaignID string) error {
	c, err := e.store.GetCampaign(ctx, campaignID)
	if err != nil {
		return err
	}
	switch c.Status {
	case domain.CampaignScheduled:
		if _, err := e.queue.Cancel(ctx, queue.ScheduleKey(campaignID)); err != nil {
			e.logger.Warn("failed to cancel scheduled campaign job", log.Error(err), slog.String(log.CampaignIDKey, campaignID))
		}
	case domain.CampaignSending:
		// batch chain breaks on next ProcessBatch entry
	default:
		return &perr.InvalidStateError{Resource: "campaign", ID: campaignID, State: string(c.Status), Want: "SCHEDULED or SENDING"}
	}
	c.Status = domain.CampaignCancelled
	return e.store.PutCampaign(ctx, *c)
}

// StartSending marks the campaign SENDING and enqueues batch 1.
func (e *Engine) StartSending(ctx context.Context, campaignID string) error {
	c, err := e.store.GetCampaign(ctx, campaignID)
	if err != nil {
		return err
	}
	now := time.Now()
	c.Status = domain.CampaignSending
	c.SentAt = &now
	if err := e.store.PutCampaign(ctx, *c); err != nil {
		return err
	}
	return e.enqueueBatch(ctx, campaignID, 1, e.batchSize, "")
}

// ProcessBatch is a no-op if the campaign left SENDING underneath it
// (cancellation breaking the chain), else one page of sends followed by
// either the next batch or SENT.
func (e *Engine) ProcessBatch(ctx context.Context, campaignID string, batchNumber, limit int, cursor string) (err error) {
	if e.tracer != nil {
		var span observability.SpanHandle
		ctx, span = e.tracer.Start(ctx, "ProcessBatch", observability.WithAttributes(map[string]any{
			"campaign.id":  campaignID,
			"batch.number": batchNumber,
		}))
		defer func() {
			if err != nil {
				span.RecordError(err)
			}
			span.End()
		}()
	}

	c, err := e.store.GetCampaign(ctx, campaignID)
	if err != nil {
		return err
	}
	if c.Status != domain.CampaignSending {
		return nil
	}

	filters, err := e.audienceFilters(ctx, *c)
	if err != nil {
		return err
	}
	ids, err := e.store.AudiencePage(ctx, c.ProjectID, filters, cursor, limit)
	if err != nil {
		return err
	}
	hasMore := len(ids) > limit
	if hasMore {
		ids = ids[:limit]
	}
	var nextCursor string
	if hasMore && len(ids) > 0 {
		nextCursor = ids[len(ids)-1]
	}

	created := e.sendToContacts(ctx, *c, ids)
	if e.metrics != nil {
		e.metrics.RecordCampaignBatch(ctx, campaignID, created)
	}

	c, err = e.store.GetCampaign(ctx, campaignID)
	if err != nil {
		return err
	}
	if c.Status != domain.CampaignSending {
		return nil
	}
	c.SentCount += created
	if !hasMore {
		c.Status = domain.CampaignSent
	}
	if err := e.store.PutCampaign(ctx, *c); err != nil {
		return err
	}

	if !hasMore {
		return nil
	}
	return e.enqueueBatch(ctx, campaignID, batchNumber+1, limit, nextCursor)
}

// sendToContacts renders and queues an Email per contact, bounded to
// sendConcurrency in flight and paced by a token-bucket limiter so a large
// batch doesn't burst the (external) send-email executor all at once.
// Per-contact failures are logged and skipped; the batch continues.
func (e *Engine) sendToContacts(ctx context.Context, c domain.Campaign, contactIDs []string) int {
	sourceType := domain.SourceCampaign
	if c.Transactional {
		sourceType = domain.SourceTransactional
	}
	batchLogger := log.WithCampaignContext(e.logger, c.ID)

	limiter := rate.NewLimiter(rate.Limit(e.sendConcurrency), e.sendConcurrency)
	sem := make(chan struct{}, e.sendConcurrency)

	var created int32
	g, gctx := errgroup.WithContext(ctx)
	for _, contactID := range contactIDs {
		contactID := contactID
		g.Go(func() error {
			if err := limiter.Wait(gctx); err != nil {
				return nil
			}
			sem <- struct{}{}
			defer func() { <-sem }()

			if err := e.sendOne(gctx, c, sourceType, contactID); err != nil {
				batchLogger.Warn("campaign send failed for contact, skipping", log.Error(err), slog.String(log.ContactIDKey, contactID))
				return nil
			}
			atomic.AddInt32(&created, 1)
			return nil
		})
	}
	_ = g.Wait()
	return int(created)
}

func (e *Engine) sendOne(ctx context.Context, c domain.Campaign, sourceType domain.EmailSourceType, contactID string) error {
	contact, err := e.store.GetContact(ctx, contactID)
	if err != nil {
		return err
	}

	root := render.Flatten(map[string]any{"email": contact.Email}, contact.Data)
	subject := render.Render(c.Subject, root)
	body := render.Render(c.Body, root)

	email := domain.Email{
		ID:         uuid.NewString(),
		ProjectID:  c.ProjectID,
		ContactID:  contactID,
		CampaignID: c.ID,
		SourceType: sourceType,
		Subject:    subject,
		Body:       body,
		From:       c.From,
		ReplyTo:    c.ReplyTo,
		Status:     domain.EmailPending,
	}
	if err := e.store.PutEmail(ctx, email); err != nil {
		return err
	}
	return e.queue.Enqueue(ctx, &queue.Job{
		ID:      uuid.NewString(),
		Kind:    queue.KindSendEmail,
		FireAt:  time.Now(),
		Payload: map[string]any{"emailId": email.ID},
	})
}

func (e *Engine) enqueueBatch(ctx context.Context, campaignID string, batchNumber, limit int, cursor string) error {
	return e.queue.Enqueue(ctx, &queue.Job{
		ID:   uuid.NewString(),
		Kind: queue.KindCampaignBatch,
		Payload: map[string]any{
			"campaignId":  campaignID,
			"batchNumber": batchNumber,
			"limit":       limit,
			"cursor":      cursor,
		},
	})
}

// countAudience pages the full audience once at Send time to compute
// recipientCount up front; Send fails if this comes back zero.
func (e *Engine) countAudience(ctx context.Context, c domain.Campaign) (int, error) {
	filters, err := e.audienceFilters(ctx, c)
	if err != nil {
		return 0, err
	}
	total := 0
	cursor := ""
	for {
		ids, err := e.store.AudiencePage(ctx, c.ProjectID, filters, cursor, e.batchSize)
		if err != nil {
			return 0, err
		}
		hasMore := len(ids) > e.batchSize
		if hasMore {
			ids = ids[:e.batchSize]
		}
		total += len(ids)
		if !hasMore || len(ids) == 0 {
			return total, nil
		}
		cursor = ids[len(ids)-1]
	}
}

// audienceFilters resolves a campaign's audience: ALL uses just the base
// (projectId, subscribed) filter the Store applies unconditionally;
// SEGMENT resolves and returns the segment's stored filter list; FILTERED
// returns the campaign's own inline filters.
func (e *Engine) audienceFilters(ctx context.Context, c domain.Campaign) ([]domain.AudienceFilter, error) {
	switch c.AudienceType {
	case domain.AudienceFiltered:
		return c.AudienceFilter, nil
	case domain.AudienceSegment:
		seg, err := e.store.GetSegment(ctx, c.SegmentID)
		if err != nil {
			return nil, err
		}
		return seg.Filters, nil
	default:
		return nil, nil
	}
}
