package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// StatusChannel carries pipeline status transitions across instances.
	StatusChannel = "pipeline:status"
	publishTTL    = 5 * time.Second
)

// StatusEvent is a single recording status transition.
type StatusEvent struct {
	RecordingID int64  `json:"recording_id"`
	Status      string `json:"status"`
	At          int64  `json:"at"`
}

// RedisPubSub bridges status events between instances. Workers publish,
// API instances subscribe and fan out to their WebSocket clients.
type RedisPubSub struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisPubSub creates a Redis pub/sub bridge for status events.
func NewRedisPubSub(client *redis.Client, logger *zap.Logger) *RedisPubSub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisPubSub{client: client, logger: logger}
}

// PublishStatusEvent publishes an event to the shared status channel.
func (r *RedisPubSub) PublishStatusEvent(ev StatusEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTTL)
	defer cancel()
	return r.client.Publish(ctx, StatusChannel, body).Err()
}

// SubscribeStatus subscribes to the status channel and calls handler for each
// event until ctx is cancelled.
func (r *RedisPubSub) SubscribeStatus(ctx context.Context, handler func(ev StatusEvent)) error {
	pubsub := r.client.Subscribe(ctx, StatusChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("subscribe: %w", err)
	}
	ch := pubsub.Channel()
	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev StatusEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					r.logger.Warn("invalid status event", zap.String("raw", msg.Payload))
					continue
				}
				handler(ev)
			}
		}
	}()
	return nil
}
