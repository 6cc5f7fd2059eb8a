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

package metrics

import (
	"context"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestCollector(t *testing.T) (*Collector, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	c, err := New(mp)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) (metricdata.Metrics, bool) {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m, true
			}
		}
	}
	return metricdata.Metrics{}, false
}

func sumValue(t *testing.T, m metricdata.Metrics) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %s is not an int64 sum", m.Name)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestRecordExecutionStartAndComplete(t *testing.T) {
	c, reader := newTestCollector(t)
	ctx := context.Background()

	c.RecordExecutionStart(ctx, "exec-1", "wf-1")
	c.RecordExecutionStart(ctx, "exec-2", "wf-1")

	rm := collect(t, reader)
	m, ok := findMetric(rm, "plunk_executions_total")
	if !ok {
		t.Fatal("plunk_executions_total not exported")
	}
	if got := sumValue(t, m); got != 2 {
		t.Errorf("plunk_executions_total = %d, want 2", got)
	}

	gauge, ok := findMetric(rm, "plunk_active_executions")
	if !ok {
		t.Fatal("plunk_active_executions not exported")
	}
	g, ok := gauge.Data.(metricdata.Gauge[int64])
	if !ok || len(g.DataPoints) != 1 || g.DataPoints[0].Value != 2 {
		t.Errorf("plunk_active_executions want 2 active, got %+v", gauge.Data)
	}

	c.RecordExecutionComplete(ctx, "exec-1", "wf-1", "COMPLETED", 500*time.Millisecond)

	rm = collect(t, reader)
	gauge, _ = findMetric(rm, "plunk_active_executions")
	g = gauge.Data.(metricdata.Gauge[int64])
	if len(g.DataPoints) != 1 || g.DataPoints[0].Value != 1 {
		t.Errorf("plunk_active_executions after one completion want 1, got %+v", g.DataPoints)
	}

	dur, ok := findMetric(rm, "plunk_execution_duration_seconds")
	if !ok {
		t.Fatal("plunk_execution_duration_seconds not exported")
	}
	hist, ok := dur.Data.(metricdata.Histogram[float64])
	if !ok || len(hist.DataPoints) != 1 || hist.DataPoints[0].Count != 1 {
		t.Errorf("plunk_execution_duration_seconds want one recorded sample, got %+v", dur.Data)
	}
}

func TestRecordStep(t *testing.T) {
	c, reader := newTestCollector(t)
	ctx := context.Background()

	c.RecordStep(ctx, "wf-1", "SEND_EMAIL", true, 10*time.Millisecond)
	c.RecordStep(ctx, "wf-1", "WEBHOOK", false, 20*time.Millisecond)

	rm := collect(t, reader)
	m, ok := findMetric(rm, "plunk_steps_total")
	if !ok {
		t.Fatal("plunk_steps_total not exported")
	}
	if got := sumValue(t, m); got != 2 {
		t.Errorf("plunk_steps_total = %d, want 2", got)
	}
}

func TestRecordWebhookCall(t *testing.T) {
	c, reader := newTestCollector(t)
	ctx := context.Background()

	c.RecordWebhookCall(ctx, true, 200, 15*time.Millisecond)
	c.RecordWebhookCall(ctx, false, 500, 30*time.Millisecond)

	rm := collect(t, reader)
	m, ok := findMetric(rm, "plunk_webhook_calls_total")
	if !ok {
		t.Fatal("plunk_webhook_calls_total not exported")
	}
	if got := sumValue(t, m); got != 2 {
		t.Errorf("plunk_webhook_calls_total = %d, want 2", got)
	}
}

func TestRecordEmailEnqueuedAndCampaignBatch(t *testing.T) {
	c, reader := newTestCollector(t)
	ctx := context.Background()

	c.RecordEmailEnqueued(ctx, "WORKFLOW")
	c.RecordCampaignBatch(ctx, "camp-1", 5)

	rm := collect(t, reader)
	m, ok := findMetric(rm, "plunk_emails_enqueued_total")
	if !ok {
		t.Fatal("plunk_emails_enqueued_total not exported")
	}
	// One direct WORKFLOW enqueue plus five attributed to the campaign batch.
	if got := sumValue(t, m); got != 6 {
		t.Errorf("plunk_emails_enqueued_total = %d, want 6", got)
	}

	batches, ok := findMetric(rm, "plunk_campaign_batches_total")
	if !ok {
		t.Fatal("plunk_campaign_batches_total not exported")
	}
	if got := sumValue(t, batches); got != 1 {
		t.Errorf("plunk_campaign_batches_total = %d, want 1", got)
	}
}

func TestRecordCampaignBatch_ZeroCreatedSkipsEmailCounter(t *testing.T) {
	c, reader := newTestCollector(t)
	ctx := context.Background()

	c.RecordCampaignBatch(ctx, "camp-empty", 0)

	rm := collect(t, reader)
	if m, ok := findMetric(rm, "plunk_emails_enqueued_total"); ok {
		if got := sumValue(t, m); got != 0 {
			t.Errorf("plunk_emails_enqueued_total = %d, want 0 for a zero-created batch", got)
		}
	}
}

func TestSetQueueDepth(t *testing.T) {
	c, reader := newTestCollector(t)

	c.SetQueueDepth(42)

	rm := collect(t, reader)
	m, ok := findMetric(rm, "plunk_queue_depth")
	if !ok {
		t.Fatal("plunk_queue_depth not exported")
	}
	g, ok := m.Data.(metricdata.Gauge[int64])
	if !ok || len(g.DataPoints) != 1 || g.DataPoints[0].Value != 42 {
		t.Errorf("plunk_queue_depth want 42, got %+v", m.Data)
	}

	c.SetQueueDepth(0)
	rm = collect(t, reader)
	m, _ = findMetric(rm, "plunk_queue_depth")
	g = m.Data.(metricdata.Gauge[int64])
	if g.DataPoints[0].Value != 0 {
		t.Errorf("plunk_queue_depth want 0 after drain, got %d", g.DataPoints[0].Value)
	}
}

func TestCollector_ConcurrentAccess(t *testing.T) {
	c, _ := newTestCollector(t)
	ctx := context.Background()

	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func(n int) {
			for j := 0; j < 50; j++ {
				c.RecordExecutionStart(ctx, "exec", "wf")
				c.RecordStep(ctx, "wf", "CONDITION", true, time.Millisecond)
				c.SetQueueDepth(n)
			}
			done <- struct{}{}
		}(i)
	}
	for i := 0; i < 10; i++ {
		<-done
	}
}
