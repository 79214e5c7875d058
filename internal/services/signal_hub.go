package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rhino-signals/backend/internal/logger"
	"github.com/rhino-signals/backend/internal/metrics"
	"github.com/rhino-signals/backend/internal/models"
)

const (
	MessageTypeSignalUpdate = "SIGNAL_UPDATE"

	DefaultSignalsChannel = "rhino:signal_updates"

	outboxSize = 256
)

var (
	// subscribeTimeout bounds the wait for Redis to confirm a subscription.
	subscribeTimeout = 5 * time.Second
	// publishTimeout bounds one Redis PUBLISH made on behalf of a caller.
	publishTimeout = 2 * time.Second
)

// SignalUpdate is the message pushed to live viewers after a signal commits.
type SignalUpdate struct {
	Type      string      `json:"type"`
	Symbol    string      `json:"symbol"`
	Score     int         `json:"score"`
	Price     json.Number `json:"price"`
	Direction string      `json:"direction"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewSignalUpdate builds the notification for a stored signal.
func NewSignalUpdate(symbol string, sig models.Signal) SignalUpdate {
	return SignalUpdate{
		Type:      MessageTypeSignalUpdate,
		Symbol:    symbol,
		Score:     sig.TrendScore,
		Price:     json.Number(sig.Price.String()),
		Direction: string(sig.TrendDirection),
		Timestamp: sig.SignalTime.UTC(),
	}
}

// SignalHub fans signal updates out to every connected viewer. With a Redis
// client it relays through one pub/sub subscription per process so that
// viewers attached to any API instance see every signal.
type SignalHub struct {
	redis       *redis.Client
	channelName string
	bufferSize  int
	metrics     *metrics.Recorder

	mu          sync.RWMutex
	subscribers map[chan []byte]struct{}
	closed      bool

	outbox chan []byte
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSignalHub creates a hub. rdb may be nil for single-process delivery.
func NewSignalHub(rdb *redis.Client, channel string, bufferSize int, rec *metrics.Recorder) *SignalHub {
	if channel == "" {
		channel = DefaultSignalsChannel
	}
	if bufferSize <= 0 {
		bufferSize = 64
	}

	ctx, cancel := context.WithCancel(context.Background())
	hub := &SignalHub{
		redis:       rdb,
		channelName: channel,
		bufferSize:  bufferSize,
		metrics:     rec,
		subscribers: make(map[chan []byte]struct{}),
		cancel:      cancel,
	}

	if rdb == nil {
		return hub
	}

	// First subscription is made before returning so a publish right after
	// construction is not missed by this process.
	pubsub := hub.subscribe(ctx)
	hub.outbox = make(chan []byte, outboxSize)
	hub.wg.Add(2)
	go hub.run(ctx, pubsub)
	go hub.forward(ctx)

	return hub
}

func (h *SignalHub) subscribe(ctx context.Context) *redis.PubSub {
	pubsub := h.redis.Subscribe(ctx, h.channelName)

	waitCtx, cancel := context.WithTimeout(ctx, subscribeTimeout)
	defer cancel()
	if _, err := pubsub.Receive(waitCtx); err != nil {
		logger.Warn("SignalHub: subscribe to %s failed: %v", h.channelName, err)
	}
	return pubsub
}

func (h *SignalHub) run(ctx context.Context, pubsub *redis.PubSub) {
	defer h.wg.Done()

	for {
		h.relay(ctx, pubsub.Channel(redis.WithChannelSize(4096)))
		_ = pubsub.Close()

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
			// Avoid tight loop if Redis connection drops
		}

		pubsub = h.subscribe(ctx)
	}
}

func (h *SignalHub) relay(ctx context.Context, ch <-chan *redis.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.broadcast([]byte(msg.Payload), "redis")
		}
	}
}

// Subscribe registers a new listener and returns its channel plus an
// idempotent cleanup function. The channel is closed when the listener is
// removed, either by cleanup, by falling behind, or by Close.
func (h *SignalHub) Subscribe() (<-chan []byte, func()) {
	ch := make(chan []byte, h.bufferSize)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()

	unsubscribe := func() {
		h.remove(ch)
	}
	return ch, unsubscribe
}

func (h *SignalHub) remove(ch chan []byte) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subscribers[ch]; !ok {
		return false
	}
	delete(h.subscribers, ch)
	close(ch)
	return true
}

// Publish delivers update to every viewer. It never blocks the caller: with
// Redis the payload is queued for the forwarder, and a full queue falls back
// to local delivery. It only returns an error when the update cannot be
// encoded.
func (h *SignalHub) Publish(_ context.Context, update SignalUpdate) error {
	payload, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("encode signal update: %w", err)
	}

	if h.outbox != nil {
		select {
		case h.outbox <- payload:
			return nil
		default:
			logger.Warn("SignalHub: publish queue full, delivering locally")
			h.metrics.RecordPublishFailure()
		}
	}

	h.broadcast(payload, "local")
	return nil
}

// forward drains the outbox into Redis. Each PUBLISH gets its own deadline,
// so a hung server delays only this goroutine; a failed publish is
// delivered to local viewers instead.
func (h *SignalHub) forward(ctx context.Context) {
	defer h.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case payload := <-h.outbox:
			pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
			err := h.redis.Publish(pubCtx, h.channelName, payload).Err()
			cancel()
			if err == nil {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			logger.Warn("SignalHub: redis publish failed, delivering locally: %v", err)
			h.metrics.RecordPublishFailure()
			h.broadcast(payload, "local")
		}
	}
}

func (h *SignalHub) broadcast(payload []byte, source string) {
	var slow []chan []byte
	delivered := 0

	h.mu.RLock()
	for sub := range h.subscribers {
		select {
		case sub <- payload:
			delivered++
		default:
			slow = append(slow, sub)
		}
	}
	h.mu.RUnlock()

	h.metrics.RecordDelivered(source, delivered)

	for _, sub := range slow {
		if h.remove(sub) {
			logger.Warn("SignalHub: dropped subscriber with full buffer (%d)", h.bufferSize)
			h.metrics.RecordDroppedSubscriber()
		}
	}
}

// Count returns the number of connected listeners.
func (h *SignalHub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Close stops the Redis relay and disconnects every listener.
func (h *SignalHub) Close() {
	h.cancel()

	h.mu.Lock()
	if !h.closed {
		h.closed = true
		for sub := range h.subscribers {
			delete(h.subscribers, sub)
			close(sub)
		}
	}
	h.mu.Unlock()

	h.wg.Wait()
}
