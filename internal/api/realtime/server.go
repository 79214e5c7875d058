/**
 * @description
 * WebSocket transport for live signal updates.
 * Runs on its own net/http listener; each connection is a SignalHub
 * subscriber with a read pump and a write pump.
 *
 * @dependencies
 * - github.com/gorilla/websocket
 * - backend/internal/services: SignalHub
 */

package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rhino-signals/backend/internal/logger"
	"github.com/rhino-signals/backend/internal/metrics"
	"github.com/rhino-signals/backend/internal/services"
)

const MessageTypeConnected = "CONNECTION_ESTABLISHED"

// Welcome is the first frame sent on every connection.
type Welcome struct {
	Type              string    `json:"type"`
	Message           string    `json:"message"`
	ActiveConnections int64     `json:"activeConnections"`
	Timestamp         time.Time `json:"timestamp"`
}

// Subscriber is the part of SignalHub the transport needs.
type Subscriber interface {
	Subscribe() (<-chan []byte, func())
}

type Server struct {
	hub      Subscriber
	metrics  *metrics.Recorder
	upgrader websocket.Upgrader
	active   atomic.Int64
}

func NewServer(hub Subscriber, rec *metrics.Recorder) *Server {
	return &Server{
		hub:     hub,
		metrics: rec,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Handler returns the HTTP routes served on the WebSocket port.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.ServeWS)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status":            "ok",
			"activeConnections": s.ActiveConnections(),
		})
	})
	return mux
}

// ActiveConnections is the number of open WebSocket sessions.
func (s *Server) ActiveConnections() int64 {
	return s.active.Load()
}

// ServeWS upgrades the request and attaches the connection to the hub.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("Realtime: websocket upgrade failed: %v", err)
		return
	}

	updates, cancel := s.hub.Subscribe()
	n := s.active.Add(1)
	s.metrics.AddSubscriber("websocket", 1)
	logger.Info("Realtime: websocket client connected (%d active)", n)

	welcome := Welcome{
		Type:              MessageTypeConnected,
		Message:           "Connected to RHINO signal stream",
		ActiveConnections: n,
		Timestamp:         time.Now().UTC(),
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(welcome); err != nil {
		cancel()
		conn.Close()
		s.disconnected()
		return
	}

	c := &client{server: s, conn: conn, updates: updates, cancel: cancel}
	go c.writePump()
	go c.readPump()
}

func (s *Server) disconnected() {
	n := s.active.Add(-1)
	s.metrics.AddSubscriber("websocket", -1)
	logger.Info("Realtime: websocket client disconnected (%d active)", n)
}

// ListenAndServe serves the WebSocket routes on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

var _ Subscriber = (*services.SignalHub)(nil)
