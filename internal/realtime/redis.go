package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/zombar/feedbackpulse/internal/models"
)

// DefaultRedisChannel is the pub/sub channel shared by all instances
const DefaultRedisChannel = "feedbackpulse:dashboard"

// metricsUpdate is the pub/sub envelope
type metricsUpdate struct {
	Scope   models.Scope             `json:"scope"`
	Metrics *models.DashboardMetrics `json:"metrics"`
}

// RedisBridge publishes dashboard updates through Redis so every API instance
// can deliver them to its own WebSocket clients. Workers emit through the
// bridge; servers run it to forward into their hub.
type RedisBridge struct {
	client  *redis.Client
	channel string
	hub     *Hub
	logger  *slog.Logger
}

// NewRedisBridge creates a bridge. hub may be nil for publish-only processes.
func NewRedisBridge(client *redis.Client, hub *Hub, logger *slog.Logger) *RedisBridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisBridge{
		client:  client,
		channel: DefaultRedisChannel,
		hub:     hub,
		logger:  logger,
	}
}

// EmitMetricsUpdate publishes metrics for scope
func (b *RedisBridge) EmitMetricsUpdate(ctx context.Context, scope models.Scope, metrics *models.DashboardMetrics) error {
	data, err := json.Marshal(metricsUpdate{Scope: scope, Metrics: metrics})
	if err != nil {
		return fmt.Errorf("failed to marshal metrics update: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish metrics update: %w", err)
	}
	return nil
}

// Run forwards published updates into the local hub until ctx is done
func (b *RedisBridge) Run(ctx context.Context) error {
	if b.hub == nil {
		return fmt.Errorf("redis bridge has no hub to forward to")
	}

	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", b.channel, err)
	}
	b.logger.Info("forwarding dashboard updates from redis", "channel", b.channel)

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			scope, metrics, err := decodeUpdate([]byte(msg.Payload))
			if err != nil {
				b.logger.Warn("dropping malformed dashboard update", "error", err)
				continue
			}
			if err := b.hub.EmitMetricsUpdate(ctx, scope, metrics); err != nil {
				b.logger.Warn("failed to forward dashboard update", "error", err)
			}
		}
	}
}

func decodeUpdate(data []byte) (models.Scope, *models.DashboardMetrics, error) {
	var update metricsUpdate
	if err := json.Unmarshal(data, &update); err != nil {
		return models.Scope{}, nil, fmt.Errorf("failed to unmarshal metrics update: %w", err)
	}
	if update.Metrics == nil {
		return models.Scope{}, nil, fmt.Errorf("metrics update has no metrics")
	}
	return update.Scope, update.Metrics, nil
}

var _ Emitter = (*RedisBridge)(nil)
