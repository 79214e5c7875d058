package handlers

import (
	"bufio"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rhino-signals/backend/internal/metrics"
)

const streamHeartbeat = 15 * time.Second

// Subscriber hands out live signal update subscriptions.
type Subscriber interface {
	Subscribe() (<-chan []byte, func())
}

type StreamHandler struct {
	Hub     Subscriber
	Metrics *metrics.Recorder
}

func NewStreamHandler(hub Subscriber, rec *metrics.Recorder) *StreamHandler {
	return &StreamHandler{Hub: hub, Metrics: rec}
}

// StreamSignals streams live signal updates over SSE
// GET /api/v1/signals/stream
func (h *StreamHandler) StreamSignals(c *fiber.Ctx) error {
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	requestCtx := c.Context()
	updates, unsubscribe := h.Hub.Subscribe()
	h.Metrics.AddSubscriber("sse", 1)

	requestCtx.SetBodyStreamWriter(func(w *bufio.Writer) {
		defer func() {
			unsubscribe()
			h.Metrics.AddSubscriber("sse", -1)
		}()

		ticker := time.NewTicker(streamHeartbeat)
		defer ticker.Stop()

		// Flush headers right away so clients see the stream open.
		fmt.Fprint(w, ": connected\n\n")
		if err := w.Flush(); err != nil {
			return
		}

		requestDone := requestCtx.Done()
		for {
			select {
			case <-requestDone:
				return
			case msg, ok := <-updates:
				if !ok {
					return
				}
				fmt.Fprintf(w, "data: %s\n\n", msg)
				if err := w.Flush(); err != nil {
					return
				}
			case <-ticker.C:
				// Flush fails once the client is gone
				fmt.Fprint(w, ": ping\n\n")
				if err := w.Flush(); err != nil {
					return
				}
			}
		}
	})

	return nil
}
