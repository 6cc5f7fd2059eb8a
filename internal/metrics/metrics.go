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

// Package metrics collects Prometheus-compatible OpenTelemetry metrics for
// the workflow runtime, event router, and campaign dispatcher: execution
// and step counters/durations, queue depth, webhook call outcomes, and
// campaign batch progress.
package metrics

import (
	"context"
	"runtime"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Collector holds the instruments registered against one meter.
type Collector struct {
	meter metric.Meter

	executionsTotal    metric.Int64Counter
	stepsTotal         metric.Int64Counter
	webhookCallsTotal  metric.Int64Counter
	emailsEnqueued     metric.Int64Counter
	campaignBatchTotal metric.Int64Counter

	executionDuration metric.Float64Histogram
	stepDuration      metric.Float64Histogram
	webhookLatency    metric.Float64Histogram

	activeExecutionsMu sync.RWMutex
	activeExecutions   map[string]bool

	queueDepthMu sync.RWMutex
	queueDepth   int64
}

// New creates a Collector registering all instruments against meterProvider.
func New(meterProvider metric.MeterProvider) (*Collector, error) {
	meter := meterProvider.Meter("plunk")

	c := &Collector{
		meter:            meter,
		activeExecutions: make(map[string]bool),
	}

	var err error

	if c.executionsTotal, err = meter.Int64Counter(
		"plunk_executions_total",
		metric.WithDescription("Total number of workflow executions started"),
		metric.WithUnit("{execution}"),
	); err != nil {
		return nil, err
	}

	if c.stepsTotal, err = meter.Int64Counter(
		"plunk_steps_total",
		metric.WithDescription("Total number of workflow steps dispatched"),
		metric.WithUnit("{step}"),
	); err != nil {
		return nil, err
	}

	if c.webhookCallsTotal, err = meter.Int64Counter(
		"plunk_webhook_calls_total",
		metric.WithDescription("Total number of outbound webhook calls"),
		metric.WithUnit("{call}"),
	); err != nil {
		return nil, err
	}

	if c.emailsEnqueued, err = meter.Int64Counter(
		"plunk_emails_enqueued_total",
		metric.WithDescription("Total number of emails enqueued for sending"),
		metric.WithUnit("{email}"),
	); err != nil {
		return nil, err
	}

	if c.campaignBatchTotal, err = meter.Int64Counter(
		"plunk_campaign_batches_total",
		metric.WithDescription("Total number of campaign batches processed"),
		metric.WithUnit("{batch}"),
	); err != nil {
		return nil, err
	}

	if c.executionDuration, err = meter.Float64Histogram(
		"plunk_execution_duration_seconds",
		metric.WithDescription("Workflow execution duration in seconds, from StartExecution to a terminal status"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if c.stepDuration, err = meter.Float64Histogram(
		"plunk_step_duration_seconds",
		metric.WithDescription("Step dispatch duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if c.webhookLatency, err = meter.Float64Histogram(
		"plunk_webhook_latency_seconds",
		metric.WithDescription("Outbound webhook call latency in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if _, err = meter.Int64ObservableGauge(
		"plunk_active_executions",
		metric.WithDescription("Number of currently RUNNING or WAITING workflow executions tracked by this process"),
		metric.WithUnit("{execution}"),
		metric.WithInt64Callback(func(_ context.Context, observer metric.Int64Observer) error {
			c.activeExecutionsMu.RLock()
			count := len(c.activeExecutions)
			c.activeExecutionsMu.RUnlock()
			observer.Observe(int64(count))
			return nil
		}),
	); err != nil {
		return nil, err
	}

	if _, err = meter.Int64ObservableGauge(
		"plunk_queue_depth",
		metric.WithDescription("Number of jobs pending in the delayed job queue"),
		metric.WithUnit("{job}"),
		metric.WithInt64Callback(func(_ context.Context, observer metric.Int64Observer) error {
			c.queueDepthMu.RLock()
			depth := c.queueDepth
			c.queueDepthMu.RUnlock()
			observer.Observe(depth)
			return nil
		}),
	); err != nil {
		return nil, err
	}

	if _, err = meter.Int64ObservableGauge(
		"plunk_goroutines",
		metric.WithDescription("Number of active goroutines"),
		metric.WithUnit("{goroutine}"),
		metric.WithInt64Callback(func(_ context.Context, observer metric.Int64Observer) error {
			observer.Observe(int64(runtime.NumGoroutine()))
			return nil
		}),
	); err != nil {
		return nil, err
	}

	if _, err = meter.Int64ObservableGauge(
		"plunk_heap_bytes",
		metric.WithDescription("Current heap allocation in bytes"),
		metric.WithUnit("By"),
		metric.WithInt64Callback(func(_ context.Context, observer metric.Int64Observer) error {
			var m runtime.MemStats
			runtime.ReadMemStats(&m)
			observer.Observe(int64(m.HeapAlloc))
			return nil
		}),
	); err != nil {
		return nil, err
	}

	return c, nil
}

// RecordExecutionStart tracks executionID as active for the gauge and
// increments the executions-started counter.
func (c *Collector) RecordExecutionStart(ctx context.Context, executionID, workflowID string) {
	c.activeExecutionsMu.Lock()
	c.activeExecutions[executionID] = true
	c.activeExecutionsMu.Unlock()

	c.executionsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("workflow", workflowID)))
}

// RecordExecutionComplete stops tracking executionID as active and records
// its terminal status and total duration.
func (c *Collector) RecordExecutionComplete(ctx context.Context, executionID, workflowID, status string, duration time.Duration) {
	c.activeExecutionsMu.Lock()
	delete(c.activeExecutions, executionID)
	c.activeExecutionsMu.Unlock()

	attrs := metric.WithAttributes(
		attribute.String("workflow", workflowID),
		attribute.String("status", status),
	)
	c.executionDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordStep records one step dispatch's outcome and duration.
func (c *Collector) RecordStep(ctx context.Context, workflowID string, stepType string, success bool, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("workflow", workflowID),
		attribute.String("step_type", stepType),
		attribute.Bool("success", success),
	)
	c.stepsTotal.Add(ctx, 1, attrs)
	c.stepDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordWebhookCall records an outbound webhook call's outcome and latency.
func (c *Collector) RecordWebhookCall(ctx context.Context, ok bool, statusCode int, latency time.Duration) {
	attrs := metric.WithAttributes(
		attribute.Bool("ok", ok),
		attribute.Int("status_code", statusCode),
	)
	c.webhookCallsTotal.Add(ctx, 1, attrs)
	c.webhookLatency.Record(ctx, latency.Seconds(), attrs)
}

// RecordEmailEnqueued increments the emails-enqueued counter for
// sourceType (WORKFLOW, CAMPAIGN, or TRANSACTIONAL).
func (c *Collector) RecordEmailEnqueued(ctx context.Context, sourceType string) {
	c.emailsEnqueued.Add(ctx, 1, metric.WithAttributes(attribute.String("source_type", sourceType)))
}

// RecordCampaignBatch records one processed campaign batch and how many
// Emails it created.
func (c *Collector) RecordCampaignBatch(ctx context.Context, campaignID string, created int) {
	c.campaignBatchTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("campaign", campaignID)))
	if created > 0 {
		c.emailsEnqueued.Add(ctx, int64(created), metric.WithAttributes(attribute.String("source_type", "CAMPAIGN")))
	}
}

// SetQueueDepth reports the queue's current pending-job count for the
// plunk_queue_depth gauge; callers sample queue.Queue.Len periodically.
func (c *Collector) SetQueueDepth(depth int) {
	c.queueDepthMu.Lock()
	c.queueDepth = int64(depth)
	c.queueDepthMu.Unlock()
}
