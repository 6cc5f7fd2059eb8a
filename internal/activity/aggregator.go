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

// Package activity synthesizes a single, typed activity timeline out of
// three independent sources — Events, Emails, WorkflowExecutions — and
// aggregates stats over the same window.
package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/driaug/plunk/internal/cache"
	"github.com/driaug/plunk/internal/domain"
	"github.com/driaug/plunk/internal/log"
	"github.com/driaug/plunk/internal/store"
)

// Type identifies the kind of a synthesized Activity.
type Type string

const (
	TypeEventTriggered    Type = "event.triggered"
	TypeEmailSent         Type = "email.sent"
	TypeEmailDelivered    Type = "email.delivered"
	TypeEmailOpened       Type = "email.opened"
	TypeEmailClicked      Type = "email.clicked"
	TypeEmailBounced      Type = "email.bounced"
	TypeWorkflowStarted   Type = "workflow.started"
	TypeWorkflowCompleted Type = "workflow.completed"
)

// Activity is one synthesized timeline entry.
type Activity struct {
	Type      Type
	Timestamp time.Time
	ContactID string
	SourceID  string // the Event/Email/WorkflowExecution id this was derived from
	Data      map[string]any
}

// sourceFetchLimit bounds per-source rows fetched before merging. It is
// clamped to at least the caller's requested page size so a small page
// request doesn't starve one source relative to another.
const sourceFetchLimit = 200

// MaxActivitiesPerRequest is the hard cap on a single GetActivities page.
const MaxActivitiesPerRequest = 100

// StatsCacheTTL is the activity-stats cache window.
const StatsCacheTTL = 300 * time.Second

// DefaultWindow is the default lookback when no date range is given.
const DefaultWindow = 30 * 24 * time.Hour

// Engine aggregates activities and stats.
type Engine struct {
	store  store.Store
	cache  cache.Cache
	logger *slog.Logger
}

func New(st store.Store, c cache.Cache, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: st, cache: c, logger: log.WithComponent(logger, "activity")}
}

// Page is GetActivities' return shape.
type Page struct {
	Activities []Activity
	NextCursor string
	HasMore    bool
}

// GetActivities merges and paginates over the three sources, applying
// typeFilter both to which sources run at all (skipping a source the
// filter excludes entirely) and to the synthesized entries each source
// can produce multiple types of (an Email yields up to five).
func (e *Engine) GetActivities(ctx context.Context, projectID string, limit int, cursor string, typeFilter []Type, contactID string, start, end time.Time) (Page, error) {
	if limit <= 0 || limit > MaxActivitiesPerRequest {
		limit = MaxActivitiesPerRequest
	}
	if start.IsZero() && end.IsZero() {
		end = time.Now()
		start = end.Add(-DefaultWindow)
	}

	if cursor != "" {
		if cursorTime, _, ok := parseCursor(cursor); ok && cursorTime.Before(end) {
			end = cursorTime
		}
	}

	included := func(t Type) bool {
		if len(typeFilter) == 0 {
			return true
		}
		for _, f := range typeFilter {
			if f == t {
				return true
			}
		}
		return false
	}
	sourceIncluded := func(types ...Type) bool {
		if len(typeFilter) == 0 {
			return true
		}
		for _, t := range types {
			if included(t) {
				return true
			}
		}
		return false
	}

	fetchLimit := sourceFetchLimit
	if limit > fetchLimit {
		fetchLimit = limit
	}

	var merged []Activity
	var sourcesAtCapacity bool

	if sourceIncluded(TypeEventTriggered) {
		events, err := e.store.RecentEvents(ctx, projectID, contactID, start, end, fetchLimit)
		if err != nil {
			return Page{}, err
		}
		if len(events) >= fetchLimit {
			sourcesAtCapacity = true
		}
		for _, evt := range events {
			if !included(TypeEventTriggered) {
				continue
			}
			merged = append(merged, Activity{
				Type:      TypeEventTriggered,
				Timestamp: evt.CreatedAt,
				ContactID: evt.ContactID,
				SourceID:  evt.ID,
				Data:      map[string]any{"name": evt.Name, "data": evt.Data},
			})
		}
	}

	if sourceIncluded(TypeEmailSent, TypeEmailDelivered, TypeEmailOpened, TypeEmailClicked, TypeEmailBounced) {
		emails, err := e.store.RecentEmails(ctx, projectID, contactID, start, end, fetchLimit)
		if err != nil {
			return Page{}, err
		}
		if len(emails) >= fetchLimit {
			sourcesAtCapacity = true
		}
		for _, em := range emails {
			for _, a := range emailActivities(em) {
				if included(a.Type) {
					merged = append(merged, a)
				}
			}
		}
	}

	if sourceIncluded(TypeWorkflowStarted, TypeWorkflowCompleted) {
		execs, err := e.store.RecentExecutions(ctx, projectID, contactID, start, end, fetchLimit)
		if err != nil {
			return Page{}, err
		}
		if len(execs) >= fetchLimit {
			sourcesAtCapacity = true
		}
		for _, exec := range execs {
			if included(TypeWorkflowStarted) {
				merged = append(merged, Activity{
					Type:      TypeWorkflowStarted,
					Timestamp: exec.StartedAt,
					ContactID: exec.ContactID,
					SourceID:  exec.ID,
					Data:      map[string]any{"workflowId": exec.WorkflowID},
				})
			}
			if included(TypeWorkflowCompleted) && exec.CompletedAt != nil {
				merged = append(merged, Activity{
					Type:      TypeWorkflowCompleted,
					Timestamp: *exec.CompletedAt,
					ContactID: exec.ContactID,
					SourceID:  exec.ID,
					Data:      map[string]any{"workflowId": exec.WorkflowID, "status": string(exec.Status)},
				})
			}
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Timestamp.After(merged[j].Timestamp)
	})

	hasMore := sourcesAtCapacity || len(merged) > limit
	if len(merged) > limit {
		merged = merged[:limit]
	}

	var nextCursor string
	if hasMore && len(merged) > 0 {
		last := merged[len(merged)-1]
		nextCursor = formatCursor(last.Timestamp, last.SourceID)
	}

	return Page{Activities: merged, NextCursor: nextCursor, HasMore: hasMore}, nil
}

// emailActivities synthesizes up to five Activities per Email, one per
// timestamp that's actually set.
func emailActivities(em domain.Email) []Activity {
	var out []Activity
	add := func(t Type, ts *time.Time) {
		if ts != nil {
			out = append(out, Activity{Type: t, Timestamp: *ts, ContactID: em.ContactID, SourceID: em.ID, Data: map[string]any{"subject": em.Subject}})
		}
	}
	add(TypeEmailSent, em.SentAt)
	add(TypeEmailDelivered, em.DeliveredAt)
	add(TypeEmailOpened, em.OpenedAt)
	add(TypeEmailClicked, em.ClickedAt)
	add(TypeEmailBounced, em.BouncedAt)
	return out
}

// Stats is GetStats' aggregate result.
type Stats struct {
	EventCount             int     `json:"eventCount"`
	SentCount              int     `json:"sentCount"`
	DeliveredCount         int     `json:"deliveredCount"`
	OpenedCount            int     `json:"openedCount"`
	ClickedCount           int     `json:"clickedCount"`
	BouncedCount           int     `json:"bouncedCount"`
	DeliveryRate           float64 `json:"deliveryRate"`
	WorkflowStartedCount   int     `json:"workflowStartedCount"`
	WorkflowCompletedCount int     `json:"workflowCompletedCount"`
}

// statsFetchLimit bounds the in-Go aggregation scan per source; a project
// generating more than this many rows in one window needs a dedicated
// aggregate query, which is out of scope here (see DESIGN.md).
const statsFetchLimit = 10000

// GetStats aggregates counts and rates over [start, end), cached for
// StatsCacheTTL under "activity:stats:{projectId}:{start}:{end}".
func (e *Engine) GetStats(ctx context.Context, projectID string, start, end time.Time) (Stats, error) {
	if start.IsZero() && end.IsZero() {
		end = time.Now()
		start = end.Add(-DefaultWindow)
	}
	key := statsCacheKey(projectID, start, end)

	if e.cache != nil {
		if raw, ok, err := e.cache.Get(ctx, key); err == nil && ok {
			var s Stats
			if err := json.Unmarshal(raw, &s); err == nil {
				return s, nil
			}
		}
	}

	events, err := e.store.RecentEvents(ctx, projectID, "", start, end, statsFetchLimit)
	if err != nil {
		return Stats{}, err
	}
	emails, err := e.store.RecentEmails(ctx, projectID, "", start, end, statsFetchLimit)
	if err != nil {
		return Stats{}, err
	}
	execs, err := e.store.RecentExecutions(ctx, projectID, "", start, end, statsFetchLimit)
	if err != nil {
		return Stats{}, err
	}

	var s Stats
	s.EventCount = len(events)
	for _, em := range emails {
		if em.SentAt != nil {
			s.SentCount++
		}
		if em.DeliveredAt != nil {
			s.DeliveredCount++
		}
		if em.OpenedAt != nil {
			s.OpenedCount++
		}
		if em.ClickedAt != nil {
			s.ClickedCount++
		}
		if em.BouncedAt != nil {
			s.BouncedCount++
		}
	}
	if s.SentCount > 0 {
		s.DeliveryRate = float64(s.DeliveredCount) / float64(s.SentCount)
	}
	for _, exec := range execs {
		s.WorkflowStartedCount++
		if exec.CompletedAt != nil {
			s.WorkflowCompletedCount++
		}
	}

	if e.cache != nil {
		if raw, err := json.Marshal(s); err == nil {
			if err := e.cache.Set(ctx, key, raw, StatsCacheTTL); err != nil {
				e.logger.Warn("failed to cache activity stats", log.Error(err), slog.String(log.ProjectIDKey, projectID))
			}
		}
	}
	return s, nil
}

// InvalidateStats deletes every cached stats window for projectID via
// prefix-based invalidation.
func (e *Engine) InvalidateStats(ctx context.Context, projectID string) error {
	if e.cache == nil {
		return nil
	}
	return e.cache.DeleteByPrefix(ctx, "activity:stats:"+projectID+":")
}

// GetRecentActivityCount sums event+email+workflow counts in the trailing
// window, a fast path for polling.
func (e *Engine) GetRecentActivityCount(ctx context.Context, projectID string, minutes int) (int, error) {
	end := time.Now()
	start := end.Add(-time.Duration(minutes) * time.Minute)

	events, err := e.store.RecentEvents(ctx, projectID, "", start, end, statsFetchLimit)
	if err != nil {
		return 0, err
	}
	emails, err := e.store.RecentEmails(ctx, projectID, "", start, end, statsFetchLimit)
	if err != nil {
		return 0, err
	}
	execs, err := e.store.RecentExecutions(ctx, projectID, "", start, end, statsFetchLimit)
	if err != nil {
		return 0, err
	}
	return len(events) + len(emails) + len(execs), nil
}

func statsCacheKey(projectID string, start, end time.Time) string {
	return fmt.Sprintf("activity:stats:%s:%d:%d", projectID, start.UnixMilli(), end.UnixMilli())
}

func formatCursor(ts time.Time, id string) string {
	return fmt.Sprintf("%d_%s", ts.UnixMilli(), id)
}

func parseCursor(cursor string) (time.Time, string, bool) {
	idx := strings.IndexByte(cursor, '_')
	if idx < 0 {
		return time.Time{}, "", false
	}
	millis, err := strconv.ParseInt(cursor[:idx], 10, 64)
	if err != nil {
		return time.Time{}, "", false
	}
	return time.UnixMilli(millis), cursor[idx+1:], true
}
