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

	"github.com/driaug/plunk/internal/domain"
	"github.com/driaug/plunk/internal/perr"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestWorkflow_PutThenGetRoundTrips(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	want := domain.Workflow{ID: "wf-1", ProjectID: "proj-1", Name: "welcome", Enabled: true, TriggerEventName: "signup"}
	if err := s.PutWorkflow(ctx, want); err != nil {
		t.Fatalf("PutWorkflow: %v", err)
	}
	got, err := s.GetWorkflow(ctx, "wf-1")
	if err != nil {
		t.Fatalf("GetWorkflow: %v", err)
	}
	if got.Name != want.Name || got.TriggerEventName != want.TriggerEventName {
		t.Errorf("GetWorkflow = %+v, want %+v", got, want)
	}
}

func TestWorkflow_GetMissingIsNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetWorkflow(context.Background(), "missing")
	if _, ok := err.(*perr.NotFoundError); !ok {
		t.Errorf("err = %v (%T), want *perr.NotFoundError", err, err)
	}
}

func TestWorkflow_PutIsUpsert(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	_ = s.PutWorkflow(ctx, domain.Workflow{ID: "wf-1", ProjectID: "proj-1", Name: "v1"})
	_ = s.PutWorkflow(ctx, domain.Workflow{ID: "wf-1", ProjectID: "proj-1", Name: "v2"})

	got, err := s.GetWorkflow(ctx, "wf-1")
	if err != nil {
		t.Fatalf("GetWorkflow: %v", err)
	}
	if got.Name != "v2" {
		t.Errorf("Name = %q after upsert, want v2", got.Name)
	}
}

func TestEnabledByTrigger_FiltersProjectEventAndEnabled(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	_ = s.PutWorkflow(ctx, domain.Workflow{ID: "a", ProjectID: "p1", Enabled: true, TriggerEventName: "signup"})
	_ = s.PutWorkflow(ctx, domain.Workflow{ID: "b", ProjectID: "p1", Enabled: false, TriggerEventName: "signup"})
	_ = s.PutWorkflow(ctx, domain.Workflow{ID: "c", ProjectID: "p2", Enabled: true, TriggerEventName: "signup"})
	_ = s.PutWorkflow(ctx, domain.Workflow{ID: "d", ProjectID: "p1", Enabled: true, TriggerEventName: "purchase"})

	out, err := s.EnabledByTrigger(ctx, "p1", "signup")
	if err != nil {
		t.Fatalf("EnabledByTrigger: %v", err)
	}
	if len(out) != 1 || out[0].ID != "a" {
		t.Errorf("EnabledByTrigger = %+v, want only workflow a", out)
	}
}
