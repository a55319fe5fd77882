package realtime

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30
	PongWait     = 60
)

// StatusPublisher publishes an event for cross-instance delivery.
type StatusPublisher interface {
	PublishStatusEvent(ev StatusEvent) error
}

// StatusSubscriber delivers events published on any instance.
type StatusSubscriber interface {
	SubscribeStatus(ctx context.Context, handler func(ev StatusEvent)) error
}

// Hub fans pipeline status events out to connected WebSocket clients.
// With Redis wired in, events are published rather than broadcast directly
// so every instance (including this one) delivers them exactly once via the
// subscription.
type Hub struct {
	clients map[string]*Client
	mu      sync.RWMutex
	logger  *zap.Logger
	pub     StatusPublisher
	sub     StatusSubscriber
}

// NewHub creates a status hub. pub and sub may be nil for single-instance
// deployments; events are then broadcast locally.
func NewHub(logger *zap.Logger, pub StatusPublisher, sub StatusSubscriber) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients: make(map[string]*Client),
		logger:  logger,
		pub:     pub,
		sub:     sub,
	}
}

// Start begins consuming the cross-instance subscription. No-op without one.
func (h *Hub) Start(ctx context.Context) error {
	if h.sub == nil {
		return nil
	}
	return h.sub.SubscribeStatus(ctx, h.broadcast)
}

// PublishStatus announces a recording status transition. Called by the
// pipeline between stages.
func (h *Hub) PublishStatus(recordingID int64, status string) {
	ev := StatusEvent{RecordingID: recordingID, Status: status, At: time.Now().Unix()}
	if h.pub != nil {
		if err := h.pub.PublishStatusEvent(ev); err != nil {
			h.logger.Warn("publish status event failed",
				zap.Int64("recording_id", recordingID),
				zap.Error(err),
			)
		}
		return
	}
	h.broadcast(ev)
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	count := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("status client connected", zap.String("client_id", c.ID), zap.Int("clients", count))
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	delete(h.clients, c.ID)
	count := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("status client disconnected", zap.String("client_id", c.ID), zap.Int("clients", count))
}

func (h *Hub) broadcast(ev StatusEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if c.recordingID != 0 && c.recordingID != ev.RecordingID {
			continue
		}
		select {
		case c.send <- ev:
		default:
			// buffer full, skip
		}
	}
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
