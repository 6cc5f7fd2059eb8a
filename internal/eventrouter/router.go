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

// Package eventrouter is the single entry point named occurrences take into
// the workflow engine: TrackEvent appends the Event, starts a new execution
// for every enabled workflow triggered by it, and resumes any execution
// already WAITING on it.
package eventrouter

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/driaug/plunk/internal/cache"
	"github.com/driaug/plunk/internal/domain"
	"github.com/driaug/plunk/internal/log"
	"github.com/driaug/plunk/internal/perr"
	"github.com/driaug/plunk/internal/runtime"
	"github.com/driaug/plunk/internal/store"
	"github.com/driaug/plunk/pkg/observability"
)

// EnabledWorkflowsTTL is how long a project's triggered-workflow lookup is
// cached before falling back to the store.
const EnabledWorkflowsTTL = 5 * time.Minute

// Engine starts and resumes executions from TrackEvent.
type Engine struct {
	store   store.Store
	runtime *runtime.Engine
	cache   cache.Cache
	tracer  observability.Tracer
	logger  *slog.Logger
}

// New builds an Engine. tracer may be nil to run without span instrumentation.
func New(st store.Store, rt *runtime.Engine, c cache.Cache, tracer observability.Tracer, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: st, runtime: rt, cache: c, tracer: tracer, logger: log.WithComponent(logger, "eventrouter")}
}

// TrackEvent appends the event, then triggers new executions and resumes
// waiting ones. Events are processed to completion before returning; the caller is responsible
// for retrying on error, and for deduplicating repeated calls upstream —
// TrackEvent itself starts a new execution on every enabled trigger match,
// even for an identical (contactId, eventName, data) delivered twice.
func (e *Engine) TrackEvent(ctx context.Context, projectID, eventName, contactID, emailID string, data map[string]any) (err error) {
	if e.tracer != nil {
		var span observability.SpanHandle
		ctx, span = e.tracer.Start(ctx, "TrackEvent", observability.WithAttributes(map[string]any{
			"project.id": projectID,
			"event.name": eventName,
			"contact.id": contactID,
		}))
		defer func() {
			if err != nil {
				span.RecordError(err)
			}
			span.End()
		}()
	}

	evt := domain.Event{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		ContactID: contactID,
		EmailID:   emailID,
		Name:      eventName,
		Data:      data,
		CreatedAt: time.Now(),
	}
	if err := e.store.AppendEvent(ctx, evt); err != nil {
		return err
	}

	if contactID != "" {
		workflows, err := e.enabledByTrigger(ctx, projectID, eventName)
		if err != nil {
			return err
		}
		for _, wf := range workflows {
			execContext := map[string]any{"data": data}
			if _, err := e.runtime.StartExecution(ctx, wf.ID, contactID, execContext); err != nil {
				if perr.IsInvalidState(err) {
					// Already running, or already executed and reentry is
					// disallowed: not this call's concern to surface.
					continue
				}
				e.logErr("failed to start triggered execution", err, wf.ID, contactID)
			}
		}
	}

	if err := e.runtime.HandleEvent(ctx, projectID, eventName, contactID, data); err != nil {
		return err
	}
	return nil
}

// enabledByTrigger is store.EnabledByTrigger behind a read-through cache,
// invalidated by InvalidateWorkflow on every workflow mutation.
func (e *Engine) enabledByTrigger(ctx context.Context, projectID, eventName string) ([]domain.Workflow, error) {
	key := enabledByTriggerKey(projectID, eventName)
	if e.cache != nil {
		if raw, ok, err := e.cache.Get(ctx, key); err == nil && ok {
			var workflows []domain.Workflow
			if err := json.Unmarshal(raw, &workflows); err == nil {
				return workflows, nil
			}
		}
	}

	workflows, err := e.store.EnabledByTrigger(ctx, projectID, eventName)
	if err != nil {
		return nil, err
	}

	if e.cache != nil {
		if raw, err := json.Marshal(workflows); err == nil {
			if err := e.cache.Set(ctx, key, raw, EnabledWorkflowsTTL); err != nil {
				e.logger.Warn("failed to cache enabled-by-trigger lookup", log.Error(err), slog.String(log.ProjectIDKey, projectID), slog.String(log.EventKey, eventName))
			}
		}
	}
	return workflows, nil
}

// InvalidateWorkflow drops the enabled-by-trigger cache entry for
// (projectID, triggerEventName), called by the workflow-mutation path on
// every create/update/delete so a stale trigger list never outlives the
// 5-minute TTL's worst case.
func (e *Engine) InvalidateWorkflow(ctx context.Context, projectID, triggerEventName string) error {
	if e.cache == nil {
		return nil
	}
	return e.cache.Delete(ctx, enabledByTriggerKey(projectID, triggerEventName))
}

func enabledByTriggerKey(projectID, eventName string) string {
	return "workflow:enabled_by_trigger:" + projectID + ":" + eventName
}

func (e *Engine) logErr(msg string, err error, workflowID, contactID string) {
	e.logger.Error(msg, log.Error(err), slog.String(log.WorkflowIDKey, workflowID), slog.String(log.ContactIDKey, contactID))
}
