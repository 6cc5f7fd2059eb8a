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

/*
Package tracing provides distributed tracing for plunkd.

This package implements OpenTelemetry-based tracing for workflow execution,
campaign sends, and outbound webhook calls, plus correlation ID propagation
for linking related log lines. Metric recording lives in internal/metrics,
against the metric.MeterProvider this package's OTelProvider exposes.

# Overview

The tracing package supports:

  - Distributed tracing via OpenTelemetry
  - A Prometheus-backed metric.MeterProvider for internal/metrics
  - Correlation ID propagation across services
  - Span creation around ProcessStep, ProcessBatch, and TrackEvent

# Quick Start

Create an OTel provider:

	cfg := tracing.Config{
	    Enabled:        true,
	    ServiceName:    "plunkd",
	    ServiceVersion: "1.0.0",
	    Sampling: tracing.SamplingConfig{
	        Rate: 0.1, // 10% sampling
	    },
	}

	provider, err := tracing.NewOTelProviderWithConfig(cfg)

Get a tracer and create spans:

	tracer := provider.Tracer("runtime")

	ctx, span := tracer.Start(ctx, "ProcessStep",
	    trace.WithAttributes(
	        attribute.String("step.id", stepID),
	    ),
	)
	defer span.End()

# Correlation IDs

internal/queue.Pool.process generates a fresh correlation ID per job and
stores it on the job's context; webhook.Caller.Call reads it back and sets
it on every outbound WEBHOOK step request, alongside W3C trace context
headers, so a receiving service's logs can be joined to the job that
triggered them:

	ctx = tracing.ToContext(ctx, tracing.NewCorrelationID())

	// later, in webhook.Caller.Call
	tracing.InjectIntoRequest(ctx, req)
	tracing.InjectHTTPHeaders(ctx, req)

# Metrics

provider.MeterProvider() returns the SDK's metric.MeterProvider, registered
with a Prometheus reader and exposed via provider.MetricsHandler() at
/metrics. internal/metrics.New(provider.MeterProvider()) builds the
execution/step/webhook/campaign instruments described there.

# Configuration

Full configuration options:

	tracing:
	  enabled: true
	  service_name: plunkd
	  sampling:
	    type: ratio
	    rate: 0.1
	    always_sample_errors: true
	  exporters:
	    - type: otlp
	      endpoint: localhost:4317

# Key Components

  - OTelProvider: OpenTelemetry SDK wrapper
  - CorrelationID: Request correlation across services
  - Sampler: Configurable trace sampling
  - Exporter: Trace export to backends (OTLP, etc.)
*/
package tracing
