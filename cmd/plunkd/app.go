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

package main

import (
	"context"
	"log/slog"
	goruntime "runtime"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/driaug/plunk/internal/activity"
	"github.com/driaug/plunk/internal/cache"
	"github.com/driaug/plunk/internal/campaign"
	"github.com/driaug/plunk/internal/condition"
	"github.com/driaug/plunk/internal/config"
	"github.com/driaug/plunk/internal/eventrouter"
	"github.com/driaug/plunk/internal/log"
	"github.com/driaug/plunk/internal/metrics"
	"github.com/driaug/plunk/internal/queue"
	"github.com/driaug/plunk/internal/runtime"
	"github.com/driaug/plunk/internal/store"
	"github.com/driaug/plunk/internal/store/sqlitestore"
	"github.com/driaug/plunk/internal/tracing"
	"github.com/driaug/plunk/internal/webhook"
	"github.com/driaug/plunk/pkg/httpclient"
	"github.com/driaug/plunk/pkg/observability"
)

// app holds every collaborator built from config, shared by both the
// long-running serve command and the short-lived operator subcommands.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	store    store.Store
	cache    cache.Cache
	queue    queue.Queue
	pool     *queue.Pool
	tracing  *tracing.OTelProvider
	metrics  *metrics.Collector
	runtime  *runtime.Engine
	events   *eventrouter.Engine
	campaign *campaign.Engine
	activity *activity.Engine
}

// newApp opens the store and builds every collaborator the daemon needs,
// wiring real implementations (sqlite store, Redis or in-memory cache,
// OTel-backed metrics) from cfg.
func newApp(cfg config.Config) (*app, error) {
	logger := log.New(cfg.ToLogConfig())

	st, err := sqlitestore.Open(cfg.StorePath)
	if err != nil {
		return nil, err
	}

	var c cache.Cache = cache.NewMemoryCache()
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisCache(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}))
		c = cache.NewDegrading(redisCache, logger)
	}

	q := queue.NewMemoryQueue()

	var provider *tracing.OTelProvider
	var mc *metrics.Collector
	var runtimeTracer, campaignTracer, eventsTracer observability.Tracer
	if cfg.Tracing.Enabled {
		provider, err = tracing.NewOTelProviderWithConfig(cfg.Tracing)
		if err != nil {
			return nil, err
		}
		mc, err = metrics.New(provider.MeterProvider())
		if err != nil {
			return nil, err
		}
		runtimeTracer = provider.Tracer("runtime")
		campaignTracer = provider.Tracer("campaign")
		eventsTracer = provider.Tracer("eventrouter")
	}

	httpCfg := httpclient.DefaultConfig()
	if cfg.HTTPTimeout > 0 {
		httpCfg.Timeout = cfg.HTTPTimeout
	}
	wh, err := webhook.NewWithRetryConfig(httpCfg)
	if err != nil {
		return nil, err
	}

	templates := runtime.NewMemoryTemplateProvider()
	cond := condition.New().WithExpr(condition.NewExprEvaluator())
	rt := runtime.New(st, q, cond, wh, templates, mc, runtimeTracer, logger)
	events := eventrouter.New(st, rt, c, eventsTracer, logger)
	camp := campaign.New(st, q, cfg.CampaignBatchSize, cfg.CampaignFanoutConcurrency, mc, campaignTracer, logger)
	act := activity.New(st, c, logger)

	pool := queue.NewPool(q, queue.NewMemoryDeadLetter(), cfg.ResolvedQueueWorkers(goruntime.NumCPU()), logger)
	rt.RegisterHandlers(pool)
	camp.RegisterHandlers(pool)
	pool.SetOnExhausted(func(ctx context.Context, job *queue.Job, reason string) {
		var failErr error
		switch job.Kind {
		case queue.KindProcessStep, queue.KindProcessTimeout, queue.KindProcessDelay:
			failErr = rt.FailFromDeadLetter(ctx, job, reason)
		case queue.KindStartCampaign, queue.KindCampaignBatch:
			failErr = camp.FailFromDeadLetter(ctx, job, reason)
		}
		if failErr != nil {
			logger.Error("failed to fail execution for dead-lettered job", log.Error(failErr), slog.String("job_id", job.ID), slog.String("kind", string(job.Kind)))
		}
	})

	return &app{
		cfg:      cfg,
		logger:   logger,
		store:    st,
		cache:    c,
		queue:    q,
		pool:     pool,
		tracing:  provider,
		metrics:  mc,
		runtime:  rt,
		events:   events,
		campaign: camp,
		activity: act,
	}, nil
}

func loadConfig() (config.Config, error) {
	return config.Load(configPath)
}

func numCPU() int {
	return goruntime.NumCPU()
}

// runUntilDrained starts the worker pool, waits for the queue to empty
// (polling, since a one-shot operator command has no running `serve`
// process to hand work off to), then stops it. Campaign sends enqueue a
// chain of queue.KindCampaignBatch jobs that only make progress while a
// pool is running; `campaign send` runs its own pool rather than assuming
// one is already live, since there is no admin RPC surface for a
// short-lived command to hand work to a separate running daemon.
func (a *app) runUntilDrained(ctx context.Context, pollEvery time.Duration, idleRounds int) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.pool.Start(ctx)
	defer a.pool.Stop()

	ticker := time.NewTicker(pollEvery)
	defer ticker.Stop()

	empty := 0
	for empty < idleRounds {
		<-ticker.C
		if a.queue.Len() == 0 {
			empty++
		} else {
			empty = 0
		}
	}
}
