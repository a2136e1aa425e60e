package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	notification "esante-monitoring/internal/notification/domain"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	minResubscribeDelay = 500 * time.Millisecond
	maxResubscribeDelay = 30 * time.Second
)

type relayEnvelope struct {
	RecipientID  string                    `json:"recipientId"`
	Notification notification.Notification `json:"notification"`
}

// RedisRelay spreads broadcasts across service instances over Redis pub/sub.
// Every instance runs Serve, which feeds received notifications to its local hub.
type RedisRelay struct {
	client     *redis.Client
	channel    string
	local      *Hub
	logger     *zap.Logger
	subscribed atomic.Bool
}

// NewRedisRelay constructs a relay for the local hub.
func NewRedisRelay(client *redis.Client, channel string, local *Hub, logger *zap.Logger) (*RedisRelay, error) {
	if client == nil {
		return nil, errors.New("redis relay: nil client")
	}
	if channel == "" {
		return nil, errors.New("redis relay: empty channel")
	}
	if local == nil {
		return nil, errors.New("redis relay: nil hub")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisRelay{client: client, channel: channel, local: local, logger: logger}, nil
}

// Subscribed reports whether this instance currently receives relayed notifications.
func (r *RedisRelay) Subscribed() bool { return r.subscribed.Load() }

// Broadcast publishes n for all instances. While this instance is not
// subscribed, or Redis is unavailable, local streams are served directly.
func (r *RedisRelay) Broadcast(ctx context.Context, recipientID string, n notification.Notification) {
	payload, err := json.Marshal(relayEnvelope{RecipientID: recipientID, Notification: n})
	if err == nil {
		err = r.client.Publish(ctx, r.channel, payload).Err()
	}
	if err != nil {
		r.logger.Warn("redis relay publish failed, delivering locally",
			zap.String("notification_id", n.ID),
			zap.Error(err),
		)
		r.local.Broadcast(ctx, recipientID, n)
		return
	}
	if !r.subscribed.Load() {
		r.local.Broadcast(ctx, recipientID, n)
	}
}

// Serve keeps the relay subscribed until ctx is done, resubscribing with
// exponential backoff whenever the subscription ends.
func (r *RedisRelay) Serve(ctx context.Context) {
	delay := minResubscribeDelay
	for {
		subscribed, err := r.run(ctx)
		if ctx.Err() != nil {
			return
		}
		if subscribed {
			delay = minResubscribeDelay
		}
		r.logger.Warn("redis relay subscription ended",
			zap.String("channel", r.channel),
			zap.Duration("retry_in", delay),
			zap.Error(err),
		)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		delay *= 2
		if delay > maxResubscribeDelay {
			delay = maxResubscribeDelay
		}
	}
}

// Run subscribes to the relay channel once, until ctx is done or the
// subscription ends.
func (r *RedisRelay) Run(ctx context.Context) error {
	_, err := r.run(ctx)
	return err
}

func (r *RedisRelay) run(ctx context.Context) (bool, error) {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return false, err
	}
	r.subscribed.Store(true)
	defer r.subscribed.Store(false)
	r.logger.Info("redis relay subscribed", zap.String("channel", r.channel))

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return true, nil
		case msg, ok := <-messages:
			if !ok {
				return true, errors.New("redis relay: subscription closed")
			}
			var env relayEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				r.logger.Warn("redis relay decode failed", zap.Error(err))
				continue
			}
			r.local.Broadcast(ctx, env.RecipientID, env.Notification)
		}
	}
}
