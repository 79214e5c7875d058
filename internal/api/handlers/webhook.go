/**
 * @description
 * Webhook API Handler.
 * Accepts RHINO score payloads from the charting tool and runs them through
 * the ingestion pipeline.
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2
 * - backend/internal/services
 */

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rhino-signals/backend/internal/logger"
	"github.com/rhino-signals/backend/internal/services"
	"github.com/rhino-signals/backend/internal/signals"
)

// Ingester runs one raw payload through validation, storage and fan-out.
type Ingester interface {
	Ingest(ctx context.Context, raw map[string]interface{}) (*services.IngestResult, error)
}

type WebhookHandler struct {
	Service Ingester
}

func NewWebhookHandler(service Ingester) *WebhookHandler {
	return &WebhookHandler{Service: service}
}

// ReceiveSignal processes one charting tool alert
// POST /api/v1/webhook
func (h *WebhookHandler) ReceiveSignal(c *fiber.Ctx) error {
	raw, err := decodeObject(c.Body())
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid webhook payload",
			"details": []signals.Violation{{
				Rule:    signals.RuleType,
				Message: err.Error(),
			}},
		})
	}

	res, err := h.Service.Ingest(c.UserContext(), raw)
	if err != nil {
		var verr *signals.ValidationError
		if errors.As(err, &verr) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":   "Invalid webhook payload",
				"details": verr.Violations,
			})
		}

		logger.Error("ReceiveSignal: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
	}

	return c.JSON(fiber.Map{
		"message":  "Signal processed successfully",
		"signalId": res.SignalID,
		"symbol":   res.Symbol,
		"score":    res.Score,
	})
}

// decodeObject parses body as a JSON object, keeping numbers as json.Number
// so prices keep every digit.
func decodeObject(body []byte) (map[string]interface{}, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errors.New("request body is empty")
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var raw map[string]interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, errors.New("request body must be a JSON object")
	}
	if raw == nil {
		return nil, errors.New("request body must be a JSON object")
	}
	if dec.More() {
		return nil, errors.New("request body must contain a single JSON object")
	}
	return raw, nil
}
