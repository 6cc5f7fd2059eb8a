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

package sqlitestore

import (
	"context"
	"testing"
	"time"

	"github.com/driaug/plunk/internal/domain"
)

func TestAppendEvent_ThenRecentEventsOrdersNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	_ = s.AppendEvent(ctx, domain.Event{ID: "ev-1", ProjectID: "proj-1", ContactID: "c-1", Name: "signup", CreatedAt: now.Add(-time.Minute)})
	_ = s.AppendEvent(ctx, domain.Event{ID: "ev-2", ProjectID: "proj-1", ContactID: "c-1", Name: "purchase", CreatedAt: now})

	out, err := s.RecentEvents(ctx, "proj-1", "c-1", now.Add(-time.Hour), now.Add(time.Hour), 10)
	if err != nil {
		t.Fatalf("RecentEvents: %v", err)
	}
	if len(out) != 2 || out[0].ID != "ev-2" || out[1].ID != "ev-1" {
		t.Errorf("RecentEvents = %+v, want ev-2 then ev-1", out)
	}
}

func TestRecentEvents_ScopesToProjectAndContact(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()
	_ = s.AppendEvent(ctx, domain.Event{ID: "ev-1", ProjectID: "proj-1", ContactID: "c-1", Name: "signup", CreatedAt: now})
	_ = s.AppendEvent(ctx, domain.Event{ID: "ev-2", ProjectID: "proj-1", ContactID: "c-2", Name: "signup", CreatedAt: now})
	_ = s.AppendEvent(ctx, domain.Event{ID: "ev-3", ProjectID: "proj-2", ContactID: "c-1", Name: "signup", CreatedAt: now})

	out, err := s.RecentEvents(ctx, "proj-1", "c-1", now.Add(-time.Minute), now.Add(time.Minute), 10)
	if err != nil {
		t.Fatalf("RecentEvents: %v", err)
	}
	if len(out) != 1 || out[0].ID != "ev-1" {
		t.Errorf("RecentEvents = %+v, want only ev-1", out)
	}
}

func TestRecentExecutions_JoinsWorkflowForProjectScoping(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()
	_ = s.PutWorkflow(ctx, domain.Workflow{ID: "wf-1", ProjectID: "proj-1", Name: "welcome"})
	_ = s.PutExecution(ctx, domain.WorkflowExecution{ID: "exec-1", WorkflowID: "wf-1", ContactID: "c-1", Status: domain.ExecutionExited, StartedAt: now})

	out, err := s.RecentExecutions(ctx, "proj-1", "c-1", now.Add(-time.Minute), now.Add(time.Minute), 10)
	if err != nil {
		t.Fatalf("RecentExecutions: %v", err)
	}
	if len(out) != 1 || out[0].ID != "exec-1" {
		t.Errorf("RecentExecutions = %+v, want exec-1", out)
	}

	// An execution whose workflow belongs to a different project is excluded
	// by the join, even though the execution row itself carries no project_id.
	out, err = s.RecentExecutions(ctx, "proj-2", "c-1", now.Add(-time.Minute), now.Add(time.Minute), 10)
	if err != nil {
		t.Fatalf("RecentExecutions: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("RecentExecutions scoped to proj-2 = %+v, want empty", out)
	}
}
