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

func TestExecution_PutThenGetRoundTrips(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	want := domain.WorkflowExecution{ID: "exec-1", WorkflowID: "wf-1", ContactID: "c-1", Status: domain.ExecutionRunning, StartedAt: time.Now()}
	if err := s.PutExecution(ctx, want); err != nil {
		t.Fatalf("PutExecution: %v", err)
	}
	got, err := s.GetExecution(ctx, "exec-1")
	if err != nil {
		t.Fatalf("GetExecution: %v", err)
	}
	if got.Status != domain.ExecutionRunning || got.ContactID != "c-1" {
		t.Errorf("GetExecution = %+v, want %+v", got, want)
	}
}

func TestRunningExecution_OnlyMatchesRunningStatus(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	_ = s.PutExecution(ctx, domain.WorkflowExecution{ID: "exec-1", WorkflowID: "wf-1", ContactID: "c-1", Status: domain.ExecutionCompleted, StartedAt: time.Now()})

	got, err := s.RunningExecution(ctx, "wf-1", "c-1")
	if err != nil {
		t.Fatalf("RunningExecution: %v", err)
	}
	if got != nil {
		t.Errorf("RunningExecution = %+v, want nil", got)
	}

	_ = s.PutExecution(ctx, domain.WorkflowExecution{ID: "exec-2", WorkflowID: "wf-1", ContactID: "c-1", Status: domain.ExecutionRunning, StartedAt: time.Now()})
	got, err = s.RunningExecution(ctx, "wf-1", "c-1")
	if err != nil {
		t.Fatalf("RunningExecution: %v", err)
	}
	if got == nil || got.ID != "exec-2" {
		t.Errorf("RunningExecution = %+v, want exec-2", got)
	}
}

func TestAnyExecution_TrueForAnyStatus(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ok, err := s.AnyExecution(ctx, "wf-1", "c-1")
	if err != nil {
		t.Fatalf("AnyExecution: %v", err)
	}
	if ok {
		t.Error("want false before any execution exists")
	}
	_ = s.PutExecution(ctx, domain.WorkflowExecution{ID: "exec-1", WorkflowID: "wf-1", ContactID: "c-1", Status: domain.ExecutionExited, StartedAt: time.Now()})
	ok, err = s.AnyExecution(ctx, "wf-1", "c-1")
	if err != nil {
		t.Fatalf("AnyExecution: %v", err)
	}
	if !ok {
		t.Error("want true once a terminal execution exists")
	}
}

func TestTryAdvance_OnlySucceedsFromExpectedState(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	_ = s.PutStepExecution(ctx, domain.StepExecution{ID: "se-1", ExecutionID: "exec-1", StepID: "step-1", Status: domain.StepPending})

	ok, err := s.TryAdvance(ctx, "se-1", domain.StepRunning, domain.StepCompleted)
	if err != nil {
		t.Fatalf("TryAdvance: %v", err)
	}
	if ok {
		t.Error("want TryAdvance to fail when `from` doesn't match the current status")
	}

	ok, err = s.TryAdvance(ctx, "se-1", domain.StepPending, domain.StepRunning)
	if err != nil {
		t.Fatalf("TryAdvance: %v", err)
	}
	if !ok {
		t.Error("want TryAdvance to succeed when `from` matches")
	}

	se, err := s.GetStepExecution(ctx, "se-1")
	if err != nil {
		t.Fatalf("GetStepExecution: %v", err)
	}
	if se.Status != domain.StepRunning {
		t.Errorf("status after TryAdvance = %q, want RUNNING", se.Status)
	}
}

func TestStepExecutionFor_ReturnsOnlyNonTerminalRow(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	_ = s.PutStepExecution(ctx, domain.StepExecution{ID: "se-1", ExecutionID: "exec-1", StepID: "step-1", Status: domain.StepRunning})

	got, err := s.StepExecutionFor(ctx, "exec-1", "step-1")
	if err != nil {
		t.Fatalf("StepExecutionFor: %v", err)
	}
	if got == nil || got.ID != "se-1" {
		t.Fatalf("StepExecutionFor = %+v, want se-1", got)
	}

	_ = s.PutStepExecution(ctx, domain.StepExecution{ID: "se-1", ExecutionID: "exec-1", StepID: "step-1", Status: domain.StepCompleted})
	got, err = s.StepExecutionFor(ctx, "exec-1", "step-1")
	if err != nil {
		t.Fatalf("StepExecutionFor: %v", err)
	}
	if got != nil {
		t.Errorf("StepExecutionFor after completion = %+v, want nil", got)
	}
}

func TestWaitingForEvent_IndexedByProjectEventNameAndContactScope(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	_ = s.PutExecution(ctx, domain.WorkflowExecution{ID: "exec-1", WorkflowID: "wf-1", ContactID: "c-1", Status: domain.ExecutionWaiting, StartedAt: time.Now()})
	if err := s.PutWaitingStepExecution(ctx, domain.StepExecution{ID: "se-1", ExecutionID: "exec-1", StepID: "step-1", Status: domain.StepWaiting}, "proj-1", "reply"); err != nil {
		t.Fatalf("PutWaitingStepExecution: %v", err)
	}

	out, err := s.WaitingForEvent(ctx, "proj-1", "reply", "")
	if err != nil {
		t.Fatalf("WaitingForEvent: %v", err)
	}
	if len(out) != 1 || out[0].ID != "se-1" {
		t.Fatalf("WaitingForEvent = %+v, want se-1", out)
	}

	out, err = s.WaitingForEvent(ctx, "proj-1", "reply", "someone-else")
	if err != nil {
		t.Fatalf("WaitingForEvent: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("WaitingForEvent scoped to a different contact = %+v, want empty", out)
	}

	if err := s.PutWaitingStepExecution(ctx, domain.StepExecution{ID: "se-1", ExecutionID: "exec-1", StepID: "step-1", Status: domain.StepCompleted}, "proj-1", "reply"); err != nil {
		t.Fatalf("PutWaitingStepExecution: %v", err)
	}
	out, err = s.WaitingForEvent(ctx, "proj-1", "reply", "")
	if err != nil {
		t.Fatalf("WaitingForEvent: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("WaitingForEvent after resume = %+v, want empty", out)
	}
}
