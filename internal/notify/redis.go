package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/go-redis/redis/v8"

	"github.com/izzacatering/backend/internal/models"
)

// DefaultChannel is the Redis channel notifications travel on.
const DefaultChannel = "izza:notifications"

// RedisRelay shares one notification stream between server instances.
// Publish sends to Redis; Run receives from Redis (including this
// instance's own messages) and delivers into the local Hub.
type RedisRelay struct {
	client  *redis.Client
	channel string
	hub     *Hub
	log     *slog.Logger
}

// NewRedisRelay connects to the Redis server at url and checks it with a
// PING.
func NewRedisRelay(ctx context.Context, url, channel string, hub *Hub, log *slog.Logger) (*RedisRelay, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return newRelay(client, channel, hub, log), nil
}

func newRelay(client *redis.Client, channel string, hub *Hub, log *slog.Logger) *RedisRelay {
	if channel == "" {
		channel = DefaultChannel
	}
	if log == nil {
		log = slog.Default()
	}
	return &RedisRelay{client: client, channel: channel, hub: hub, log: log}
}

// Publish sends n to every instance. When Redis is unreachable n is still
// delivered to this instance's subscribers and the error is returned.
func (r *RedisRelay) Publish(ctx context.Context, n models.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		r.hub.Deliver(n)
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// Run forwards channel messages into the hub until ctx is cancelled.
func (r *RedisRelay) Run(ctx context.Context) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	// Wait for the subscription to be confirmed before reporting ready.
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	r.log.Info("notification relay subscribed", "channel", r.channel)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			n, err := decode(msg.Payload)
			if err != nil {
				r.log.Warn("discarding malformed notification", "err", err)
				continue
			}
			r.hub.Deliver(n)
		}
	}
}

// Close closes the Redis client.
func (r *RedisRelay) Close() error {
	return r.client.Close()
}

func decode(payload string) (models.Notification, error) {
	var n models.Notification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		return n, fmt.Errorf("decode notification: %w", err)
	}
	if n.ID == "" || n.RecipientID == "" {
		return n, fmt.Errorf("decode notification: missing id or recipient")
	}
	return n, nil
}
