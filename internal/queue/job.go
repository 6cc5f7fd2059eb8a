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

// Package queue is the delayed job queue backing the runtime's timer/event
// resumption, outbound email sends, and campaign batch fan-out. A Job fires
// no earlier than FireAt; the worker pool in pool.go polls for due work and
// dispatches it to a per-Kind Handler with bounded retry.
package queue

import "time"

// Kind identifies which handler a Job's Payload is destined for.
type Kind string

const (
	KindProcessStep    Kind = "process_step"
	KindProcessTimeout Kind = "process_timeout"
	KindProcessDelay   Kind = "process_delay"
	KindSendEmail      Kind = "send_email"
	KindCampaignBatch  Kind = "campaign_batch"
	KindStartCampaign  Kind = "start_campaign"
)

// Job is a unit of delayed work. Key, when non-empty, is a stable
// cancellation handle — `timeout:{stepExecutionId}` for a WAIT_FOR_EVENT
// timeout, `schedule:{campaignId}` for a ScheduleCampaign one-shot — and at
// most one live job may hold a given Key at a time.
type Job struct {
	ID       string
	Kind     Kind
	Key      string
	FireAt   time.Time
	Payload  map[string]any
	Attempts int
}

// TimeoutKey derives the cancellation key for a WAIT_FOR_EVENT timeout job.
func TimeoutKey(stepExecutionID string) string {
	return "timeout:" + stepExecutionID
}

// ScheduleKey derives the cancellation key for a ScheduleCampaign job.
func ScheduleKey(campaignID string) string {
	return "schedule:" + campaignID
}
