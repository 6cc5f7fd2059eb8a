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
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func newServeCommand() *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the queue worker pool, event router, and campaign dispatcher",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			return a.serve(cmd.Context(), metricsAddr)
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "address to serve /metrics on (empty disables it)")
	return cmd
}

// serve starts the worker pool and, if tracing is enabled, a /metrics
// HTTP server, then blocks until SIGINT/SIGTERM.
func (a *app) serve(ctx context.Context, metricsAddr string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.pool.Start(ctx)
	a.logger.Info("queue pool started", slog.Int("workers", a.cfg.ResolvedQueueWorkers(numCPU())))

	var metricsSrv *http.Server
	if metricsAddr != "" && a.tracing != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", a.tracing.MetricsHandler())
		metricsSrv = &http.Server{Addr: metricsAddr, Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				a.logger.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		a.logger.Info("metrics server listening", slog.String("addr", metricsAddr))
	}

	a.startQueueDepthSampler(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	a.logger.Info("shutting down")
	cancel()
	a.pool.Stop()
	if err := a.queue.Close(); err != nil {
		a.logger.Warn("error closing queue", slog.Any("error", err))
	}
	if metricsSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("error shutting down metrics server", slog.Any("error", err))
		}
	}
	if a.tracing != nil {
		if err := a.tracing.Shutdown(context.Background()); err != nil {
			a.logger.Warn("error shutting down tracing provider", slog.Any("error", err))
		}
	}
	return nil
}

// startQueueDepthSampler periodically reports the queue's pending-job
// count to the plunk_queue_depth gauge; internal/metrics has no
// background access to the Queue itself, so the caller samples it.
func (a *app) startQueueDepthSampler(ctx context.Context) {
	if a.metrics == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				a.metrics.SetQueueDepth(a.queue.Len())
			}
		}
	}()
}
