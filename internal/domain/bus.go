package domain

import (
	"context"
)

// EventBus defines the interface for event-driven communication.
// Supports Go channels (community) or NATS (pro).
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, topic string, handler MessageHandler) (Subscription, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID        string            `json:"id"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving messages.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel", "nats" or "none"
	Type string `env:"BUS_TYPE"`

	// Channel settings (community tier)
	ChannelBufferSize int `env:"BUS_CHANNEL_BUFFER"`

	// NATS settings (pro tier)
	NATSUrl           string `env:"NATS_URL"`
	NATSToken         string `env:"NATS_TOKEN"`
	NATSMaxReconnects int    `env:"NATS_MAX_RECONNECTS"`
	NATSReconnectWait int    `env:"NATS_RECONNECT_WAIT"` // seconds

	// NATSQueueGroup load-balances subscriptions across service instances,
	// so each alert is handled once. Empty means every instance receives all.
	NATSQueueGroup string `env:"NATS_QUEUE_GROUP"`
}

// Standard topic names for score events.
const (
	TopicScoreRecorded = "riskscore.score.recorded"
	TopicScoreAlert    = "riskscore.score.alert"
)
