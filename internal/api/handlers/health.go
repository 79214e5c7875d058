package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type HealthHandler struct {
	DB    *gorm.DB
	Redis *redis.Client
	Hub   interface{ Count() int }
}

func NewHealthHandler(db *gorm.DB, rdb *redis.Client, hub interface{ Count() int }) *HealthHandler {
	return &HealthHandler{DB: db, Redis: rdb, Hub: hub}
}

// Health reports store connectivity
// GET /api/v1/health
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	status := fiber.StatusOK
	body := fiber.Map{
		"status":  "ok",
		"service": "rhino-backend",
		"db":      "connected",
		"redis":   "disabled",
	}

	sqlDB, err := h.DB.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		status = fiber.StatusServiceUnavailable
		body["status"] = "degraded"
		body["db"] = "unreachable"
	}

	if h.Redis != nil {
		body["redis"] = "connected"
		if err := h.Redis.Ping(ctx).Err(); err != nil {
			body["status"] = "degraded"
			body["redis"] = "unreachable"
		}
	}

	if h.Hub != nil {
		body["subscribers"] = h.Hub.Count()
	}

	return c.Status(status).JSON(body)
}
