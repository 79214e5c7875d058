/**
 * @description
 * Job trigger handlers.
 * Lets an external scheduler run the reconciler over HTTP.
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2
 * - backend/internal/services
 */

package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rhino-signals/backend/internal/logger"
	"github.com/rhino-signals/backend/internal/services"
)

// ReconcileRunner performs a full reconcile pass for a date.
type ReconcileRunner interface {
	Run(ctx context.Context, date time.Time) *services.RunResult
}

type JobsHandler struct {
	Reconciler ReconcileRunner
}

func NewJobsHandler(reconciler ReconcileRunner) *JobsHandler {
	return &JobsHandler{Reconciler: reconciler}
}

// Reconcile runs the staleness sweep and the daily analytics recompute
// POST /api/v1/jobs/reconcile?date=YYYY-MM-DD
func (h *JobsHandler) Reconcile(c *fiber.Ctx) error {
	date := time.Now().UTC()
	if raw := c.Query("date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":   "Invalid date",
				"details": "date must be formatted as YYYY-MM-DD",
			})
		}
		date = parsed
	}

	result := h.Reconciler.Run(c.UserContext(), date)
	if len(result.Errors) > 0 {
		logger.Error("Reconcile: finished with %d failed steps", len(result.Errors))
		return c.Status(fiber.StatusInternalServerError).JSON(result)
	}
	return c.JSON(result)
}
