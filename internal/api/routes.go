/**
 * @description
 * API Route definitions.
 * Builds the Fiber app, sets up the router groups and assigns handlers.
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2
 * - github.com/prometheus/client_golang: /metrics
 * - backend/internal/api/handlers
 * - backend/internal/api/middleware
 * - backend/internal/services
 */

package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rhino-signals/backend/internal/api/handlers"
	"github.com/rhino-signals/backend/internal/api/middleware"
	"github.com/rhino-signals/backend/internal/metrics"
	"gorm.io/gorm"
)

// Dependencies are the services the HTTP API is built on.
type Dependencies struct {
	DB         *gorm.DB
	Redis      *redis.Client
	Ingest     handlers.Ingester
	Hub        interface {
		handlers.Subscriber
		Count() int
	}
	Reconciler handlers.ReconcileRunner
	Metrics    *metrics.Recorder
	Gatherer   prometheus.Gatherer
	JobSecret  string
}

// NewApp creates the Fiber app with global middleware.
func NewApp(requestLogging bool) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:       "RHINO Signal Backend",
		StrictRouting: true,
		CaseSensitive: true,
	})

	app.Use(recover.New()) // Panic recovery
	if requestLogging {
		app.Use(fiberlogger.New())
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, " + middleware.HeaderJobSecret,
		AllowMethods: "GET, POST, OPTIONS",
	}))

	return app
}

// SetupRoutes configures all API routes
func SetupRoutes(app *fiber.App, deps Dependencies) {
	webhookHandler := handlers.NewWebhookHandler(deps.Ingest)
	streamHandler := handlers.NewStreamHandler(deps.Hub, deps.Metrics)
	jobsHandler := handlers.NewJobsHandler(deps.Reconciler)
	healthHandler := handlers.NewHealthHandler(deps.DB, deps.Redis, deps.Hub)

	// The charting tool is configured with the bare path as well
	app.Post("/webhook", webhookHandler.ReceiveSignal)

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := app.Group("/api")
	v1 := api.Group("/v1")

	// Public Routes
	v1.Get("/health", healthHandler.Health)
	v1.Post("/webhook", webhookHandler.ReceiveSignal)
	v1.Get("/signals/stream", streamHandler.StreamSignals)

	// Job Routes (shared secret)
	jobs := v1.Group("/jobs", middleware.JobSecret(deps.JobSecret))
	jobs.Post("/reconcile", jobsHandler.Reconcile)
}
