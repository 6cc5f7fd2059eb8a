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

// Package perr defines the typed error kinds used across the runtime, queue,
// router, and dispatcher. Each kind implements error and, where it wraps a
// cause, Unwrap, so callers use errors.Is/errors.As rather than string
// matching.
package perr

import (
	"fmt"
)

// ValidationError represents malformed config or a missing required field.
// Reject at mutation time.
type ValidationError struct {
	Field      string
	Message    string
	Suggestion string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// NotFoundError represents a missing workflow/execution/step/campaign/email.
// The caller treats this as a no-op: log and return.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// InvalidStateError represents a status precondition failure, e.g. mutating
// a campaign that isn't DRAFT or SCHEDULED. Reject the caller synchronously.
type InvalidStateError struct {
	Resource string
	ID       string
	State    string
	Want     string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s %s is %s, want %s", e.Resource, e.ID, e.State, e.Want)
}

// ProviderError represents an SMTP/HTTP/network failure from an external
// collaborator (email-provider adapter, webhook target). Marks the
// StepExecution FAILED; the runtime does not auto-retry it, relying on the
// queue's own retry policy.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
	RequestID  string
	Cause      error
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("provider %s error", e.Provider)
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s [HTTP %d]", msg, e.StatusCode)
	}
	msg = fmt.Sprintf("%s: %s", msg, e.Message)
	if e.RequestID != "" {
		msg = fmt.Sprintf("%s (request-id: %s)", msg, e.RequestID)
	}
	return msg
}

func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// CacheError represents a Redis/cache-backend failure. Callers log and
// degrade to a direct store query; a cache miss or cache write failure must
// never fail the user path.
type CacheError struct {
	Op    string
	Cause error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("cache %s failed: %v", e.Op, e.Cause)
}

func (e *CacheError) Unwrap() error {
	return e.Cause
}

// ConfigError represents a configuration problem: a missing setting or an
// invalid config value.
type ConfigError struct {
	Key    string
	Reason string
	Cause  error
}

func (e *ConfigError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("config error at %s: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("config error: %s", e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// ConcurrencyNoOpError marks an attempt to process a job whose state has
// already advanced (e.g. a StepExecution that is no longer PENDING, or a
// WAIT_FOR_EVENT step that already resumed). Callers return silently; this
// type exists so the no-op can still be observed by a caller that wants to
// log it at debug level instead of swallowing it unconditionally.
type ConcurrencyNoOpError struct {
	Resource string
	ID       string
	Reason   string
}

func (e *ConcurrencyNoOpError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Resource, e.ID, e.Reason)
}
