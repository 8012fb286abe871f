package notify

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisPublisher fans messages out on one pub/sub channel per recipient.
type RedisPublisher struct {
	rdb    *redis.Client
	prefix string
	logger *zap.Logger
}

// NewRedisPublisher constructs the publisher. The client lifecycle stays with the caller.
func NewRedisPublisher(rdb *redis.Client, prefix string, logger *zap.Logger) *RedisPublisher {
	return &RedisPublisher{rdb: rdb, prefix: prefix, logger: logger}
}

// Channel returns the channel a recipient subscribes to.
func (p *RedisPublisher) Channel(recipientID string) string {
	return p.prefix + recipientID
}

// Publish implements Publisher.
func (p *RedisPublisher) Publish(ctx context.Context, msg Message) error {
	payload, err := encode(msg)
	if err != nil {
		return err
	}
	channel := p.Channel(msg.RecipientID)
	if err := p.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", channel, err)
	}
	p.logger.Debug("notification published",
		zap.String("channel", channel),
		zap.String("event", msg.Event))
	return nil
}

// Close implements Publisher.
func (p *RedisPublisher) Close() error { return nil }
