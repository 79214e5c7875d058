/**
 * @description
 * Shared-secret guard for job trigger endpoints.
 * Callers (cron services, operators) send the secret in X-Job-Secret.
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2: HTTP Context
 *
 * @notes
 * - An empty JOB_SYNC_SECRET disables the guarded routes entirely.
 */

package middleware

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
	"github.com/rhino-signals/backend/internal/logger"
)

// HeaderJobSecret carries the job trigger secret
const HeaderJobSecret = "X-Job-Secret"

// JobSecret only lets requests through whose X-Job-Secret header matches
// secret.
func JobSecret(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if secret == "" {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "Job triggers are disabled"})
		}

		provided := c.Get(HeaderJobSecret)
		if subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
			logger.Warn("JobSecret: rejected %s %s from %s", c.Method(), c.Path(), c.IP())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
		}
		return c.Next()
	}
}
