/**
 * @description
 * Worker Service Entry Point.
 * Runs the reconciler on a cron schedule:
 * 1. Marks symbols that stopped reporting as inactive.
 * 2. Rebuilds the daily analytics for the day that just ended.
 * Reconcile counters are served on METRICS_PORT.
 *
 * @dependencies
 * - backend/internal/config
 * - backend/internal/db
 * - backend/internal/metrics
 * - backend/internal/scheduler
 * - backend/internal/services
 */

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rhino-signals/backend/internal/config"
	"github.com/rhino-signals/backend/internal/db"
	"github.com/rhino-signals/backend/internal/logger"
	"github.com/rhino-signals/backend/internal/metrics"
	"github.com/rhino-signals/backend/internal/scheduler"
	"github.com/rhino-signals/backend/internal/services"
)

func main() {
	logger.Info("🔥 Starting RHINO Worker...")

	// 1. Load Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config: %v", err)
	}
	logger.Setup(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	// 2. Connect DB
	pgDB, err := db.ConnectPostgres(cfg)
	if err != nil {
		logger.Fatal("Postgres connection failed: %v", err)
	}
	if err := db.Migrate(pgDB); err != nil {
		logger.Fatal("Schema migration failed: %v", err)
	}

	// 3. Context with Cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 4. Initialize Services (counters only when someone can scrape them)
	var rec *metrics.Recorder
	if cfg.Server.MetricsPort != "" {
		rec = metrics.New(nil)
		addr := ":" + cfg.Server.MetricsPort
		go func() {
			logger.Info("Metrics listening on %s", addr)
			if err := metrics.ListenAndServe(ctx, addr, prometheus.DefaultGatherer); err != nil {
				logger.Error("Metrics listener failed: %v", err)
			}
		}()
	}
	reconciler := services.NewReconciler(pgDB, cfg.Reconciler.StaleAfter, rec)

	// 5. Schedule
	sched := scheduler.New(ctx, reconciler)
	if err := sched.Register(cfg.Reconciler.Cron); err != nil {
		logger.Fatal("Invalid RECONCILE_CRON: %v", err)
	}
	if cfg.Reconciler.RunOnStart {
		sched.RunNow()
	}
	sched.Start()
	logger.Info("Reconcile scheduled with %q (stale after %s)", cfg.Reconciler.Cron, cfg.Reconciler.StaleAfter)

	// 6. Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down worker...")
	cancel()
	sched.Stop()

	if sqlDB, err := pgDB.DB(); err == nil {
		_ = sqlDB.Close()
	}
	logger.Info("Worker exited.")
}
