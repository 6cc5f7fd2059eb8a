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

package activity

import (
	"context"
	"testing"
	"time"

	"github.com/driaug/plunk/internal/cache"
	"github.com/driaug/plunk/internal/domain"
	"github.com/driaug/plunk/internal/store/memstore"
)

func seedTimeline(t *testing.T, st *memstore.Store) {
	t.Helper()
	ctx := context.Background()
	now := time.Now()

	if err := st.PutWorkflow(ctx, domain.Workflow{ID: "wf-1", ProjectID: "proj-1", Name: "welcome"}); err != nil {
		t.Fatalf("PutWorkflow: %v", err)
	}

	if err := st.AppendEvent(ctx, domain.Event{
		ID: "evt-1", ProjectID: "proj-1", ContactID: "contact-1",
		Name: "signup", CreatedAt: now.Add(-3 * time.Minute),
	}); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}

	sentAt := now.Add(-2 * time.Minute)
	openedAt := now.Add(-time.Minute)
	if err := st.PutEmail(ctx, domain.Email{
		ID: "email-1", ProjectID: "proj-1", ContactID: "contact-1",
		Subject: "welcome", SentAt: &sentAt, OpenedAt: &openedAt,
	}); err != nil {
		t.Fatalf("PutEmail: %v", err)
	}

	completedAt := now.Add(-30 * time.Second)
	if err := st.PutExecution(ctx, domain.WorkflowExecution{
		ID: "exec-1", WorkflowID: "wf-1", ContactID: "contact-1",
		Status: domain.ExecutionExited, StartedAt: now.Add(-3*time.Minute - time.Second), CompletedAt: &completedAt,
	}); err != nil {
		t.Fatalf("PutExecution: %v", err)
	}
}

func TestGetActivities_MergesAndOrdersAllSources(t *testing.T) {
	st := memstore.New()
	seedTimeline(t, st)
	e := New(st, nil, nil)

	page, err := e.GetActivities(context.Background(), "proj-1", 50, "", nil, "", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("GetActivities: %v", err)
	}
	// 1 event + 2 email activities (sent, opened) + 2 workflow activities (started, completed).
	if len(page.Activities) != 5 {
		t.Fatalf("want 5 merged activities, got %d: %+v", len(page.Activities), page.Activities)
	}
	for i := 1; i < len(page.Activities); i++ {
		if page.Activities[i-1].Timestamp.Before(page.Activities[i].Timestamp) {
			t.Fatalf("activities not sorted newest-first at index %d", i)
		}
	}
	if page.HasMore {
		t.Error("want HasMore false when every source is under its fetch limit")
	}
}

func TestGetActivities_TypeFilterSkipsUnrequestedSources(t *testing.T) {
	st := memstore.New()
	seedTimeline(t, st)
	e := New(st, nil, nil)

	page, err := e.GetActivities(context.Background(), "proj-1", 50, "", []Type{TypeEventTriggered}, "", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("GetActivities: %v", err)
	}
	if len(page.Activities) != 1 || page.Activities[0].Type != TypeEventTriggered {
		t.Fatalf("want only the event.triggered activity, got %+v", page.Activities)
	}
}

func TestGetActivities_LimitCapsAtMaxActivitiesPerRequest(t *testing.T) {
	st := memstore.New()
	ctx := context.Background()
	now := time.Now()
	for i := 0; i < 150; i++ {
		if err := st.AppendEvent(ctx, domain.Event{
			ID: "evt", ProjectID: "proj-1", ContactID: "contact-1",
			Name: "ping", CreatedAt: now.Add(-time.Duration(i) * time.Second),
		}); err != nil {
			t.Fatalf("AppendEvent: %v", err)
		}
	}
	e := New(st, nil, nil)

	page, err := e.GetActivities(ctx, "proj-1", 1000, "", nil, "", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("GetActivities: %v", err)
	}
	if len(page.Activities) != MaxActivitiesPerRequest {
		t.Errorf("want capped at %d, got %d", MaxActivitiesPerRequest, len(page.Activities))
	}
	if !page.HasMore {
		t.Error("want HasMore true when truncated by the request cap")
	}
	if page.NextCursor == "" {
		t.Error("want a non-empty cursor when HasMore is true")
	}
}

func TestGetActivities_ContactFilterScoped(t *testing.T) {
	st := memstore.New()
	ctx := context.Background()
	seedTimeline(t, st)
	if err := st.AppendEvent(ctx, domain.Event{
		ID: "evt-other", ProjectID: "proj-1", ContactID: "contact-2",
		Name: "signup", CreatedAt: time.Now(),
	}); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}
	e := New(st, nil, nil)

	page, err := e.GetActivities(ctx, "proj-1", 50, "", nil, "contact-2", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("GetActivities: %v", err)
	}
	if len(page.Activities) != 1 || page.Activities[0].ContactID != "contact-2" {
		t.Fatalf("want only contact-2's activity, got %+v", page.Activities)
	}
}

func TestGetStats_AggregatesCountsAndDeliveryRate(t *testing.T) {
	st := memstore.New()
	seedTimeline(t, st)
	e := New(st, nil, nil)

	stats, err := e.GetStats(context.Background(), "proj-1", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.EventCount != 1 {
		t.Errorf("EventCount = %d, want 1", stats.EventCount)
	}
	if stats.SentCount != 1 || stats.OpenedCount != 1 {
		t.Errorf("SentCount/OpenedCount = %d/%d, want 1/1", stats.SentCount, stats.OpenedCount)
	}
	if stats.DeliveredCount != 0 {
		t.Errorf("DeliveredCount = %d, want 0 (no DeliveredAt set)", stats.DeliveredCount)
	}
	// DeliveryRate is deliveredCount/sentCount: 0/1, not 100% just because
	// nothing bounced (Open Question (a), see DESIGN.md).
	if stats.DeliveryRate != 0 {
		t.Errorf("DeliveryRate = %v, want 0 when nothing has been marked delivered yet", stats.DeliveryRate)
	}
	if stats.WorkflowStartedCount != 1 || stats.WorkflowCompletedCount != 1 {
		t.Errorf("WorkflowStartedCount/CompletedCount = %d/%d, want 1/1", stats.WorkflowStartedCount, stats.WorkflowCompletedCount)
	}
}

func TestGetStats_CachesWithinTTL(t *testing.T) {
	st := memstore.New()
	seedTimeline(t, st)
	c := cache.NewMemoryCache()
	e := New(st, c, nil)
	ctx := context.Background()

	start, end := time.Time{}, time.Time{}
	first, err := e.GetStats(ctx, "proj-1", start, end)
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}

	// Mutate the underlying data after the first call; a cache hit should
	// still return the stale (first) result rather than recomputing.
	if err := st.AppendEvent(ctx, domain.Event{ID: "evt-2", ProjectID: "proj-1", Name: "ping", CreatedAt: time.Now()}); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}

	second, err := e.GetStats(ctx, "proj-1", start, end)
	if err != nil {
		t.Fatalf("GetStats (cached): %v", err)
	}
	if second.EventCount != first.EventCount {
		t.Errorf("want the cached EventCount %d unchanged by a later write, got %d", first.EventCount, second.EventCount)
	}
}

func TestInvalidateStats_ForcesRecompute(t *testing.T) {
	st := memstore.New()
	seedTimeline(t, st)
	c := cache.NewMemoryCache()
	e := New(st, c, nil)
	ctx := context.Background()

	start, end := time.Time{}, time.Time{}
	if _, err := e.GetStats(ctx, "proj-1", start, end); err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if err := st.AppendEvent(ctx, domain.Event{ID: "evt-2", ProjectID: "proj-1", Name: "ping", CreatedAt: time.Now()}); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}
	if err := e.InvalidateStats(ctx, "proj-1"); err != nil {
		t.Fatalf("InvalidateStats: %v", err)
	}

	got, err := e.GetStats(ctx, "proj-1", start, end)
	if err != nil {
		t.Fatalf("GetStats after invalidate: %v", err)
	}
	if got.EventCount != 2 {
		t.Errorf("EventCount after invalidate = %d, want 2", got.EventCount)
	}
}

func TestInvalidateStats_NilCacheIsNoop(t *testing.T) {
	st := memstore.New()
	e := New(st, nil, nil)
	if err := e.InvalidateStats(context.Background(), "proj-1"); err != nil {
		t.Errorf("InvalidateStats with nil cache should no-op, got %v", err)
	}
}

func TestGetRecentActivityCount_SumsAllSourcesInWindow(t *testing.T) {
	st := memstore.New()
	seedTimeline(t, st)
	e := New(st, nil, nil)

	got, err := e.GetRecentActivityCount(context.Background(), "proj-1", 10)
	if err != nil {
		t.Fatalf("GetRecentActivityCount: %v", err)
	}
	if got != 3 {
		t.Errorf("want 1 event + 1 email + 1 execution = 3, got %d", got)
	}
}

func TestGetRecentActivityCount_WindowExcludesOlderActivity(t *testing.T) {
	st := memstore.New()
	seedTimeline(t, st)
	e := New(st, nil, nil)

	got, err := e.GetRecentActivityCount(context.Background(), "proj-1", 0)
	if err != nil {
		t.Fatalf("GetRecentActivityCount: %v", err)
	}
	if got != 0 {
		t.Errorf("want 0 activity in a zero-width window, got %d", got)
	}
}
