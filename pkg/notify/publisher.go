// Package notify hands committed notifications to an out-of-process delivery transport.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/dispatch-api/pkg/config"
)

// Message is the wire payload published for a single recipient.
type Message struct {
	RecipientID        string                 `json:"recipient_id"`
	Event              string                 `json:"event"`
	Category           string                 `json:"category"`
	Title              string                 `json:"title"`
	Body               string                 `json:"body"`
	Data               map[string]interface{} `json:"data,omitempty"`
	ReferenceRequestID string                 `json:"reference_request_id,omitempty"`
	PublishedAt        time.Time              `json:"published_at"`
}

// Publisher delivers messages. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

// New selects a publisher for the configured transport.
func New(cfg config.NotificationConfig, rdb *redis.Client, logger *zap.Logger) (Publisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Transport {
	case "", config.TransportNone:
		return NopPublisher{}, nil
	case config.TransportRedis:
		if rdb == nil {
			return nil, fmt.Errorf("notify: redis transport selected but redis is disabled")
		}
		return NewRedisPublisher(rdb, cfg.RedisChannelPrefix, logger), nil
	case config.TransportKafka:
		if len(cfg.KafkaBrokers) == 0 || cfg.KafkaTopic == "" {
			return nil, fmt.Errorf("notify: kafka transport requires brokers and topic")
		}
		return NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger), nil
	default:
		return nil, fmt.Errorf("notify: unknown transport %q", cfg.Transport)
	}
}

// NopPublisher drops every message.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, Message) error { return nil }

// Close implements Publisher.
func (NopPublisher) Close() error { return nil }

func encode(msg Message) ([]byte, error) {
	if msg.PublishedAt.IsZero() {
		msg.PublishedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal notification for %s: %w", msg.RecipientID, err)
	}
	return payload, nil
}
