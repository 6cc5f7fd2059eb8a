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

func TestCampaign_PutThenGetRoundTrips(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	want := domain.Campaign{ID: "camp-1", ProjectID: "proj-1", Name: "spring sale", Status: domain.CampaignDraft, AudienceType: domain.AudienceAll}
	if err := s.PutCampaign(ctx, want); err != nil {
		t.Fatalf("PutCampaign: %v", err)
	}
	got, err := s.GetCampaign(ctx, "camp-1")
	if err != nil {
		t.Fatalf("GetCampaign: %v", err)
	}
	if got.Name != want.Name || got.Status != want.Status {
		t.Errorf("GetCampaign = %+v, want %+v", got, want)
	}
}

func TestCampaign_PutIsUpsert(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	_ = s.PutCampaign(ctx, domain.Campaign{ID: "camp-1", ProjectID: "proj-1", Status: domain.CampaignDraft})
	_ = s.PutCampaign(ctx, domain.Campaign{ID: "camp-1", ProjectID: "proj-1", Status: domain.CampaignSending})

	got, err := s.GetCampaign(ctx, "camp-1")
	if err != nil {
		t.Fatalf("GetCampaign: %v", err)
	}
	if got.Status != domain.CampaignSending {
		t.Errorf("Status = %q after upsert, want SENDING", got.Status)
	}
}

func TestCampaign_GetMissingIsNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetCampaign(context.Background(), "missing")
	if _, ok := err.(*perr.NotFoundError); !ok {
		t.Errorf("err = %v (%T), want *perr.NotFoundError", err, err)
	}
}

func TestSegment_GetMissingIsNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetSegment(context.Background(), "missing")
	if _, ok := err.(*perr.NotFoundError); !ok {
		t.Errorf("err = %v (%T), want *perr.NotFoundError", err, err)
	}
}

func TestSegment_GetDecodesStoredRow(t *testing.T) {
	s := openTestStore(t)
	// Segments are authored out-of-band (no writer method on this store);
	// seed the row directly the way an external admin surface would.
	data, err := marshal(domain.Segment{ID: "seg-1", ProjectID: "proj-1", Name: "power users", Filters: []domain.AudienceFilter{
		{Field: "plan", Operator: domain.OpEquals, Value: "pro"},
	}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if _, err := s.db.ExecContext(context.Background(), `INSERT INTO segments (id, project_id, data) VALUES (?, ?, ?)`, "seg-1", "proj-1", data); err != nil {
		t.Fatalf("seed insert: %v", err)
	}

	got, err := s.GetSegment(context.Background(), "seg-1")
	if err != nil {
		t.Fatalf("GetSegment: %v", err)
	}
	if got.Name != "power users" || len(got.Filters) != 1 {
		t.Errorf("GetSegment = %+v, want power users with one filter", got)
	}
}

func TestAudiencePage_FiltersByAudienceFilterAndRespectsCursorAndLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	for _, c := range []domain.Contact{
		{ID: "c-1", ProjectID: "proj-1", Subscribed: true, Data: map[string]any{"plan": "pro"}},
		{ID: "c-2", ProjectID: "proj-1", Subscribed: true, Data: map[string]any{"plan": "free"}},
		{ID: "c-3", ProjectID: "proj-1", Subscribed: true, Data: map[string]any{"plan": "pro"}},
		{ID: "c-4", ProjectID: "proj-1", Subscribed: false, Data: map[string]any{"plan": "pro"}},
	} {
		if err := s.PutContact(ctx, c); err != nil {
			t.Fatalf("PutContact(%s): %v", c.ID, err)
		}
	}

	filters := []domain.AudienceFilter{{Field: "plan", Operator: domain.OpEquals, Value: "pro"}}
	page, err := s.AudiencePage(ctx, "proj-1", filters, "", 10)
	if err != nil {
		t.Fatalf("AudiencePage: %v", err)
	}
	if len(page) != 2 || page[0] != "c-1" || page[1] != "c-3" {
		t.Errorf("AudiencePage = %v, want [c-1 c-3] (unsubscribed and non-matching excluded)", page)
	}

	page, err = s.AudiencePage(ctx, "proj-1", filters, "c-1", 10)
	if err != nil {
		t.Fatalf("AudiencePage after cursor c-1: %v", err)
	}
	if len(page) != 1 || page[0] != "c-3" {
		t.Errorf("AudiencePage after cursor c-1 = %v, want [c-3]", page)
	}
}
