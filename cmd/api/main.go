/**
 * @description
 * Main entry point for the RHINO signal backend API.
 * Loads configuration, connects the stores, wires the ingestion pipeline and serves
 * the webhook, the realtime streams, the job trigger and the metrics endpoint.
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2: Web framework
 * - backend/internal/config: Config loader
 * - backend/internal/db: Database connections, migration, category seeding
 * - backend/internal/services: Ingestion pipeline, signal hub, reconciler
 * - backend/internal/api/realtime: WebSocket listener
 *
 * @notes
 * - Redis is optional. Without it the signal hub only fans out inside this process.
 * - SIGINT/SIGTERM drains HTTP, closes the WebSocket listener and the hub.
 */

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rhino-signals/backend/internal/api"
	"github.com/rhino-signals/backend/internal/api/realtime"
	"github.com/rhino-signals/backend/internal/catalog"
	"github.com/rhino-signals/backend/internal/config"
	"github.com/rhino-signals/backend/internal/db"
	"github.com/rhino-signals/backend/internal/logger"
	"github.com/rhino-signals/backend/internal/metrics"
	"github.com/rhino-signals/backend/internal/services"
	"github.com/rhino-signals/backend/internal/signals"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config: %v", err)
	}
	logger.Setup(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	// 2. Initialize Database Connections
	pgDB, err := db.ConnectPostgres(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to Postgres: %v", err)
	}
	if err := db.Migrate(pgDB); err != nil {
		logger.Fatal("Failed to migrate schema: %v", err)
	}

	cat := catalog.Default()
	if cfg.Catalog.Path != "" {
		if cat, err = catalog.Load(cfg.Catalog.Path); err != nil {
			logger.Fatal("Failed to load catalog %s: %v", cfg.Catalog.Path, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	categoryIDs, err := db.SeedCategories(ctx, pgDB, cat)
	if err != nil {
		logger.Fatal("Failed to seed timeframe categories: %v", err)
	}

	// Redis (signal fan-out across instances)
	redisClient, err := db.ConnectRedis(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to Redis: %v", err)
	}

	// 3. Initialize Services
	rec := metrics.New(nil)
	hub := services.NewSignalHub(redisClient, cfg.Realtime.Channel, cfg.Realtime.SubscriberBuffer, rec)
	resolver := services.NewDimensionResolver(cat, categoryIDs, rec)
	recorder := services.NewSignalRecorder(pgDB, resolver, rec)
	ingest := services.NewIngestService(signals.NewValidator(), recorder, hub, rec)
	reconciler := services.NewReconciler(pgDB, cfg.Reconciler.StaleAfter, rec)

	// 4. Initialize Fiber App
	app := api.NewApp(cfg.Server.Env != "production")
	api.SetupRoutes(app, api.Dependencies{
		DB:         pgDB,
		Redis:      redisClient,
		Ingest:     ingest,
		Hub:        hub,
		Reconciler: reconciler,
		Metrics:    rec,
		JobSecret:  cfg.Jobs.Secret,
	})

	// 5. WebSocket listener
	wsServer := realtime.NewServer(hub, rec)
	go func() {
		addr := ":" + cfg.Server.WSPort
		logger.Info("Realtime: WebSocket listening on %s/ws", addr)
		if err := wsServer.ListenAndServe(ctx, addr); err != nil {
			logger.Error("Realtime: WebSocket server failed: %v", err)
		}
	}()

	// 6. Start Server
	go func() {
		logger.Info("🚀 Starting RHINO signal backend on port %s", cfg.Server.Port)
		if err := app.Listen(":" + cfg.Server.Port); err != nil {
			logger.Fatal("Failed to start server: %v", err)
		}
	}()

	// 7. Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down API...")
	cancel()
	hub.Close()
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Error("Error shutting down HTTP server: %v", err)
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
	if sqlDB, err := pgDB.DB(); err == nil {
		_ = sqlDB.Close()
	}
	logger.Info("API exited.")
}
