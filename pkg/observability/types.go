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

// Package observability defines the Tracer/SpanHandle seam runtime,
// eventrouter, and campaign instrument against, independent of any one
// tracing backend. internal/tracing's OTelProvider is the only
// implementation; a nil Tracer disables instrumentation entirely.
package observability

// SpanKind categorizes the type of work represented by a span.
type SpanKind string

const (
	// SpanKindInternal represents work happening within the application.
	SpanKindInternal SpanKind = "internal"

	// SpanKindClient represents an outbound synchronous call.
	SpanKindClient SpanKind = "client"

	// SpanKindServer represents handling an inbound synchronous request.
	SpanKindServer SpanKind = "server"

	// SpanKindProducer represents sending a message to a queue/broker.
	SpanKindProducer SpanKind = "producer"

	// SpanKindConsumer represents receiving a message from a queue/broker.
	SpanKindConsumer SpanKind = "consumer"
)

// StatusCode represents the outcome of a span.
type StatusCode int

const (
	// StatusCodeUnset indicates no status was explicitly set.
	StatusCodeUnset StatusCode = 0

	// StatusCodeOK indicates successful completion.
	StatusCodeOK StatusCode = 1

	// StatusCodeError indicates an error occurred.
	StatusCodeError StatusCode = 2
)

// TraceContext contains the propagation information for distributed tracing.
// This follows the W3C Trace Context specification.
type TraceContext struct {
	// TraceID uniquely identifies the trace.
	TraceID string

	// SpanID identifies the current span.
	SpanID string

	// TraceFlags contains trace-level flags (sampled, debug, etc).
	TraceFlags byte

	// TraceState holds vendor-specific trace information.
	TraceState string
}
